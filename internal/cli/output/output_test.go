package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayRows []struct{ name, state string }

func (r relayRows) Headers() []string { return []string{"NAME", "STATE"} }

func (r relayRows) Rows() [][]string {
	out := make([][]string, 0, len(r))
	for _, row := range r {
		out = append(out, []string{row.name, row.state})
	}
	return out
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"TABLE", FormatTable, false},
		{"json", FormatJSON, false},
		{" yml ", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)

	require.NoError(t, p.Print(relayRows{{"disk0", "ACTIVE"}, {"disk1", "IDLE"}}))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "disk0")
	assert.Contains(t, out, "IDLE")

	buf.Reset()
	p.Success("Relay suspended")
	assert.Equal(t, "Relay suspended\n", buf.String())
}

func TestPrinter_TableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"waiters": 2}))
	assert.JSONEq(t, `{"waiters":2}`, buf.String())
}

func TestPrinter_StructuredFormatsStayQuiet(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		p := NewPrinter(&buf, f, true)
		p.Success("done")
		p.Warning("careful")
		assert.Empty(t, buf.String(), f)
	}
}

func TestPrinter_YAML(t *testing.T) {
	var buf bytes.Buffer
	data := struct {
		Name    string `yaml:"name"`
		Waiters int    `yaml:"waiters"`
	}{"disk0", 3}

	require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(data))
	assert.Equal(t, "name: disk0\nwaiters: 3\n", buf.String())
}

func TestPrintKeyValue(t *testing.T) {
	var kv KeyValue
	kv.Add("Name", "disk0")
	kv.Add("State", "ACTIVE")

	var buf bytes.Buffer
	require.NoError(t, PrintKeyValue(&buf, kv))
	assert.Contains(t, buf.String(), "Name")
	assert.Contains(t, buf.String(), "ACTIVE")
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "0", Millis(0))
	assert.Equal(t, "1m30s", Millis(90000))
	assert.Equal(t, "250ms", Millis(250))

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "-", Age(time.Time{}, now))
	assert.Equal(t, "1m5s", Age(now.Add(-65*time.Second), now))
	assert.Equal(t, "0s", Age(now.Add(time.Minute), now))

	assert.Equal(t, "yes", Bool(true))
	assert.Equal(t, "no", Bool(false))
}
