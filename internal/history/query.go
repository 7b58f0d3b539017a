package history

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects the idempotent-write strategy for a destination.
type Mode int

const (
	// InsertIfAbsent leaves rows whose key already exists untouched.
	InsertIfAbsent Mode = iota
	// InsertOrReplace overwrites rows whose key already exists.
	InsertOrReplace
)

func (m Mode) String() string {
	switch m {
	case InsertIfAbsent:
		return "ifAbsent"
	case InsertOrReplace:
		return "orReplace"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "ifAbsent" / "orReplace" (case-insensitive) and the
// statement spellings "ignore" / "replace".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ifabsent", "ignore", "insert-if-absent":
		return InsertIfAbsent, nil
	case "orreplace", "replace", "insert-or-replace":
		return InsertOrReplace, nil
	default:
		return 0, fmt.Errorf("invalid mode %q: want ifAbsent or orReplace", s)
	}
}

// MarshalText lets Mode round-trip through checkpoint files.
func (m Mode) MarshalText() ([]byte, error) {
	if m != InsertIfAbsent && m != InsertOrReplace {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Unbounded is the End of a Range with no upper limit.
const Unbounded int64 = math.MaxInt64

// Range is an inclusive hour_timestamp window.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewRange builds a range; end <= 0 means unbounded.
func NewRange(start, end int64) Range {
	if end <= 0 {
		end = Unbounded
	}
	return Range{Start: start, End: end}
}

// Contains reports whether ts falls inside the range.
func (r Range) Contains(ts int64) bool {
	return ts >= r.Start && ts <= r.End
}

// IsBounded reports whether the range has an upper limit.
func (r Range) IsBounded() bool {
	return r.End != Unbounded
}

func (r Range) String() string {
	if !r.IsBounded() {
		return fmt.Sprintf("[%d, +inf)", r.Start)
	}
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// PageQuery describes one ordered page read. When After is set the page
// starts strictly after that key and Offset is ignored.
type PageQuery struct {
	Range  Range
	Limit  int
	Offset int
	After  *Key
}
