// Package bytesize parses the human-readable sizes used in the config file
// for device capacities, mapping offsets, sectors and chunks.
package bytesize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ByteSize is a byte count inside the device address range: never
// negative, never above math.MaxInt64.
//
// Accepted forms are plain numbers ("4096"), binary units with an optional
// trailing B ("64Mi", "1GiB") and decimal units ("100M", "2TB"). Units are
// case-insensitive and fractions are allowed ("1.5Gi").
type ByteSize int64

// Binary units. Config values are written back in these.
const (
	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30
	TiB ByteSize = 1 << 40
)

var multipliers = map[string]ByteSize{
	"": 1, "b": 1,
	"k": 1e3, "kb": 1e3, "ki": KiB, "kib": KiB,
	"m": 1e6, "mb": 1e6, "mi": MiB, "mib": MiB,
	"g": 1e9, "gb": 1e9, "gi": GiB, "gib": GiB,
	"t": 1e12, "tb": 1e12, "ti": TiB, "tib": TiB,
}

// binaryUnits are tried largest first when formatting.
var binaryUnits = []struct {
	size   ByteSize
	suffix string
}{
	{TiB, "Ti"},
	{GiB, "Gi"},
	{MiB, "Mi"},
	{KiB, "Ki"},
}

// Parse parses a size such as "64Mi", "1.5 GiB" or "4096".
func Parse(s string) (ByteSize, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, errors.New("empty size")
	}

	end := 0
	for end < len(t) && (t[end] >= '0' && t[end] <= '9' || t[end] == '.') {
		end++
	}
	num, suffix := t[:end], strings.ToLower(strings.TrimSpace(t[end:]))
	if num == "" || num[0] == '.' || strings.Count(num, ".") > 1 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	mult, ok := multipliers[suffix]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, t[end:])
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q", s)
		}
		return Of(f * float64(mult))
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n > math.MaxInt64/int64(mult) {
		return 0, fmt.Errorf("size %q exceeds the device address range", s)
	}
	return ByteSize(n) * mult, nil
}

// Of converts a number decoded from YAML or the environment. Fractions of
// a byte are truncated.
func Of[T int | int64 | uint64 | float64](v T) (ByteSize, error) {
	f := float64(v)
	switch {
	case f < 0:
		return 0, fmt.Errorf("size %v is negative", v)
	case f >= math.MaxInt64:
		return 0, fmt.Errorf("size %v exceeds the device address range", v)
	}
	return ByteSize(v), nil
}

// Int64 returns the size as a device length or offset.
func (b ByteSize) Int64() int64 { return int64(b) }

// Aligned reports whether b is a whole number of unit-sized blocks.
func (b ByteSize) Aligned(unit ByteSize) bool {
	return unit > 0 && b%unit == 0
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the largest exact binary unit, so "64Mi" stays "64Mi"
// after a config round trip. Sizes that are not a whole number of KiB are
// written in bytes.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range binaryUnits {
		if b >= u.size && b.Aligned(u.size) {
			return []byte(strconv.FormatInt(int64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatInt(int64(b), 10)), nil
}

// String formats b for messages: "64MiB", "1.50GiB", "512B".
func (b ByteSize) String() string {
	for _, u := range binaryUnits {
		switch {
		case b < u.size:
			continue
		case b.Aligned(u.size):
			return strconv.FormatInt(int64(b/u.size), 10) + u.suffix + "B"
		default:
			return fmt.Sprintf("%.2f%sB", float64(b)/float64(u.size), u.suffix)
		}
	}
	return strconv.FormatInt(int64(b), 10) + "B"
}
