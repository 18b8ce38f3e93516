// Package segment implements the closed-interval byte-range algebra used to
// locate the TEXT, DATA, and ANALYSIS segments of an FCS file.
package segment

import "fmt"

// ID identifies which of the three (or four, counting supplemental TEXT)
// segments a Segment describes.
type ID int

const (
	PrimaryText ID = iota
	SupplementalText
	Data
	Analysis
)

func (id ID) String() string {
	switch id {
	case PrimaryText:
		return "TEXT"
	case SupplementalText:
		return "supplemental TEXT"
	case Data:
		return "DATA"
	case Analysis:
		return "ANALYSIS"
	default:
		return "unknown segment"
	}
}

// Segment is a closed byte interval [Begin, End] within a file, tagged with
// the segment it identifies. An "unset" segment is (0, 0).
type Segment struct {
	Begin uint32
	End   uint32
	ID    ID
}

// Error reports why raw HEADER or TEXT offsets could not become a Segment.
type Error struct {
	ID     ID
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s segment: %s", e.ID, e.Reason)
}

// Unset is the (0,0) sentinel for "this segment is not present".
func Unset(id ID) Segment {
	return Segment{ID: id}
}

// New validates raw begin/end offsets, applying signed corrections in
// widened arithmetic before checking that the result fits in uint32 and is
// non-inverted. Corrections may be negative (to shrink a segment) or
// positive (to grow it); both are applied before any bounds check.
func New(begin, end uint64, deltaBegin, deltaEnd int64, id ID) (Segment, error) {
	b := int64(begin) + deltaBegin
	e := int64(end) + deltaEnd

	if b < 0 || b > int64(^uint32(0)) {
		return Segment{}, &Error{ID: id, Reason: fmt.Sprintf("begin offset %d out of range after correction", b)}
	}
	if e < 0 || e > int64(^uint32(0)) {
		return Segment{}, &Error{ID: id, Reason: fmt.Sprintf("end offset %d out of range after correction", e)}
	}
	if b > e {
		return Segment{}, &Error{ID: id, Reason: fmt.Sprintf("begin (%d) is greater than end (%d)", b, e)}
	}

	return Segment{Begin: uint32(b), End: uint32(e), ID: id}, nil
}

// Adjust returns a copy of s with the given signed corrections applied.
func (s Segment) Adjust(deltaBegin, deltaEnd int64) (Segment, error) {
	return New(uint64(s.Begin), uint64(s.End), deltaBegin, deltaEnd, s.ID)
}

// IsUnset reports whether s is the (0,0) sentinel.
func (s Segment) IsUnset() bool {
	return s.Begin == 0 && s.End == 0
}

// Len returns End - Begin (the number of gaps between the two ends).
func (s Segment) Len() uint32 {
	return s.End - s.Begin
}

// NumBytes returns the number of bytes the segment spans, Len()+1.
func (s Segment) NumBytes() uint64 {
	return uint64(s.Len()) + 1
}

// WithID returns a copy of s tagged with a different ID, used when a
// segment discovered in one location (e.g. HEADER) is reinterpreted as
// describing another (e.g. confirming TEXT's own $BEGINDATA/$ENDDATA).
func (s Segment) WithID(id ID) Segment {
	s.ID = id
	return s
}
