package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/dittorelay/pkg/relay"
)

// Record is one journaled relay event.
type Record struct {
	ID       string    `gorm:"primaryKey;size:36" json:"id" yaml:"id"`
	Relay    string    `gorm:"index:idx_relay_at,priority:1;not null;size:255" json:"relay" yaml:"relay"`
	Endpoint string    `gorm:"size:1024" json:"endpoint" yaml:"endpoint"`
	Kind     string    `gorm:"size:32;not null" json:"kind" yaml:"kind"`
	From     string    `gorm:"column:from_state;size:16" json:"from,omitempty" yaml:"from,omitempty"`
	To       string    `gorm:"column:to_state;size:16" json:"to,omitempty" yaml:"to,omitempty"`
	Intent   string    `gorm:"size:8" json:"switch,omitempty" yaml:"switch,omitempty"`
	Error    string    `gorm:"type:text" json:"error,omitempty" yaml:"error,omitempty"`
	At       time.Time `gorm:"index:idx_relay_at,priority:2;not null" json:"at" yaml:"at"`
}

// TableName returns the table name for Record.
func (Record) TableName() string {
	return "transitions"
}

// BeforeCreate assigns a UUID when none is set.
func (r *Record) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// FromEvent converts a relay event into a record.
func FromEvent(ev relay.Event) Record {
	rec := Record{
		Relay:    ev.Relay,
		Endpoint: ev.Endpoint,
		Kind:     string(ev.Kind),
		From:     string(ev.From),
		To:       string(ev.To),
		Intent:   string(ev.Intent),
		At:       ev.At.UTC(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}
