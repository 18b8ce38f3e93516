// Package databuild plans how to read the DATA segment (C8): it classifies
// the declared per-measurement widths, reconciles the row count against
// $TOT and the segment's byte length, and resolves a sized byte order for
// each column before any bytes are read. Grounded on
// _examples/angli232-fcs/decoder.go's decodeData/decodeIntData (event-width
// accounting, byte-order switch, bit-width restriction to {8,16,32,64}),
// replacing its unsafe.Pointer column layout with an explicit Plan the data
// package executes with bounds-checked encoding/binary reads.
package databuild

import (
	"fmt"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/meta"
	"github.com/nsbuitrago/gofcs/segment"
	"github.com/nsbuitrago/gofcs/value"
)

// Kind is the overall DATA-segment layout strategy.
type Kind int

const (
	// DelimitedAscii: $DATATYPE=A, $PnB=* for every column; rows are
	// whitespace/delimiter-separated decimal numbers. The row count is taken
	// from $TOT; the segment is not scanned to count rows, so without $TOT
	// Build fails unless the DATA segment is a single byte (zero rows).
	DelimitedAscii Kind = iota
	// FixedAscii: $DATATYPE=A, $PnB a fixed digit width for every column.
	FixedAscii
	// Float32Matrix: $DATATYPE=F, every column is a 4-byte IEEE-754 float.
	Float32Matrix
	// Float64Matrix: $DATATYPE=D, every column is an 8-byte IEEE-754 float.
	Float64Matrix
	// Integer: $DATATYPE=I, every column is a {8,16,32,64}-bit unsigned
	// integer (possibly varying width per column), bitmask-clamped to $PnR.
	Integer
	// Mixed: a $PnDATATYPE override gives some column a different numeric
	// type from the first column. Columns that differ only in byte width
	// keep the matrix Kind.
	Mixed
)

func (k Kind) String() string {
	switch k {
	case DelimitedAscii:
		return "delimited ASCII"
	case FixedAscii:
		return "fixed-width ASCII"
	case Float32Matrix:
		return "32-bit float matrix"
	case Float64Matrix:
		return "64-bit float matrix"
	case Integer:
		return "integer matrix"
	default:
		return "mixed"
	}
}

// Column describes how to decode one measurement's values out of each row.
type Column struct {
	Index       int
	ByteWidth   int // 0 for DelimitedAscii (width is per-row, determined by the delimiter)
	FixedDigits int // not set by Build; a FixedAscii column's width is in ByteWidth
	Type        value.NumType
	Permutation []int // 0-based byte order for this column's width; nil for ASCII
	BitsUsed    int   // for Integer columns with $PnB < 8*ByteWidth is never produced; kept equal to ByteWidth*8
	Range       value.Range
}

// Plan is the fully resolved recipe for reading every row of the DATA
// segment.
type Plan struct {
	Kind        Kind
	Columns     []Column
	EventWidth  int // sum of byte widths; 0 for DelimitedAscii
	NumRows     int
	DataSegment segment.Segment
}

// Build classifies m's measurements and $DATATYPE into a Plan, reconciling
// the declared $TOT against the DATA segment's byte length.
func Build(m meta.Metadata, cfg config.Config) (diag.Result[Plan], *diag.Failure) {
	var deferred diag.Buf

	seg := findDataSegment(m)
	kind := classify(m)
	if seg.IsUnset() {
		if m.Par == 0 {
			return diag.Result[Plan]{Data: Plan{Kind: kind, NumRows: 0}, Deferred: deferred}, nil
		}
		return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("DATA segment is unset but $PAR=%d", m.Par)).WithDeferred(deferred)
	}

	switch kind {
	case DelimitedAscii:
		return buildDelimitedAscii(m, seg, cfg, deferred)
	case FixedAscii:
		return buildFixedWidth(m, seg, cfg, deferred, kind)
	default:
		return buildFixedWidth(m, seg, cfg, deferred, kind)
	}
}

func findDataSegment(m meta.Metadata) segment.Segment {
	return m.DataSegment
}

func classify(m meta.Metadata) Kind {
	isAscii, isDelimited := m.DataKind()
	switch {
	case isAscii && isDelimited:
		return DelimitedAscii
	case isAscii:
		return FixedAscii
	case m.DataType == value.TypeFloat32:
		return Float32Matrix
	case m.DataType == value.TypeFloat64:
		return Float64Matrix
	default:
		return Integer
	}
}

func buildDelimitedAscii(m meta.Metadata, seg segment.Segment, cfg config.Config, deferred diag.Buf) (diag.Result[Plan], *diag.Failure) {
	var fixed []int
	for _, meas := range m.Measurements {
		if !meas.Bytes.IsVariable() {
			fixed = append(fixed, meas.Index)
		}
	}
	if len(fixed) > 0 {
		for _, idx := range fixed {
			deferred.Pushf(diag.Error, diag.KindValue, "$DATATYPE=A but $P%dB is a fixed width while another measurement declares $PnB=*; ASCII DATA cannot mix fixed and delimited columns", idx)
		}
		return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("$DATATYPE=A mixes fixed-width and delimited ('*') $PnB columns")).WithDeferred(deferred)
	}

	cols := make([]Column, m.Par)
	for i, meas := range m.Measurements {
		cols[i] = Column{Index: meas.Index, Type: value.NumInteger, Range: meas.Range}
	}
	numRows, ok := reconcileDelimitedRows(m, seg, &deferred)
	if !ok {
		return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("could not determine row count for delimited ASCII DATA segment without a reliable $TOT")).WithDeferred(deferred)
	}
	return diag.Result[Plan]{Data: Plan{Kind: DelimitedAscii, Columns: cols, NumRows: numRows, DataSegment: seg}, Deferred: deferred}, nil
}

func reconcileDelimitedRows(m meta.Metadata, seg segment.Segment, deferred *diag.Buf) (int, bool) {
	if tot, ok := m.Tot.Get(); ok {
		return int(tot), true
	}
	deferred.Pushf(diag.Warning, diag.KindValue, "$TOT is required to determine row count for delimited ASCII DATA; assuming 0 rows")
	return 0, seg.NumBytes() == 1
}

func buildFixedWidth(m meta.Metadata, seg segment.Segment, cfg config.Config, deferred diag.Buf, kind Kind) (diag.Result[Plan], *diag.Failure) {
	cols := make([]Column, m.Par)
	eventWidth := 0
	mixed := false

	for i, meas := range m.Measurements {
		numType, err := columnType(m, meas, kind)
		if err != nil {
			return diag.Result[Plan]{}, diag.NewFailure(err).WithDeferred(deferred)
		}
		if meas.Bytes.IsVariable() {
			return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("$P%dB is '*' but $DATATYPE is not ASCII", meas.Index)).WithDeferred(deferred)
		}
		width := meas.Bytes.Width()
		if numType == value.NumInteger {
			switch width {
			case 1, 2, 4, 8:
			default:
				return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("$P%dB=%d is not one of 8,16,32,64 bits for integer data", meas.Index, width*8)).WithDeferred(deferred)
			}
		}
		if numType == value.NumFloat32 && width != 4 || numType == value.NumFloat64 && width != 8 {
			return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("$P%dB=%d does not match the width of %s float data", meas.Index, width*8, numType)).WithDeferred(deferred)
		}
		if i > 0 && numType != cols[0].Type {
			mixed = true
		}
		perm := m.ByteOrd.Permutation(width)
		if len(perm) != width {
			return diag.Result[Plan]{}, diag.NewFailure(fmt.Errorf("$BYTEORD %s orders %d bytes but $P%dB is %d bytes wide", m.ByteOrd, len(perm), meas.Index, width)).WithDeferred(deferred)
		}
		cols[i] = Column{Index: meas.Index, ByteWidth: width, Type: numType, Permutation: perm, BitsUsed: width * 8, Range: meas.Range}
		eventWidth += width
	}

	if mixed {
		kind = Mixed
	}

	numRows, err := reconcileFixedRows(m, seg, eventWidth, cfg, &deferred)
	if err != nil {
		return diag.Result[Plan]{}, diag.NewFailure(err).WithDeferred(deferred)
	}

	return diag.Result[Plan]{Data: Plan{Kind: kind, Columns: cols, EventWidth: eventWidth, NumRows: numRows, DataSegment: seg}, Deferred: deferred}, nil
}

func columnType(m meta.Metadata, meas meta.Measurement, kind Kind) (value.NumType, error) {
	if nt, ok := meas.NumType.Get(); ok {
		return nt, nil
	}
	switch m.DataType {
	case value.TypeInteger:
		return value.NumInteger, nil
	case value.TypeFloat32:
		return value.NumFloat32, nil
	case value.TypeFloat64:
		return value.NumFloat64, nil
	default:
		return 0, fmt.Errorf("$P%dDATATYPE is unset and $DATATYPE=%s has no numeric column type", meas.Index, m.DataType)
	}
}

func reconcileFixedRows(m meta.Metadata, seg segment.Segment, eventWidth int, cfg config.Config, deferred *diag.Buf) (int, error) {
	if eventWidth == 0 {
		return 0, nil
	}
	total := seg.NumBytes()
	rows := int(total) / eventWidth
	remainder := int(total) % eventWidth
	if remainder != 0 {
		msg := fmt.Sprintf("DATA segment length %d is not evenly divisible by event width %d (remainder %d bytes)", total, eventWidth, remainder)
		if cfg.EnforceDataWidthDivisibility {
			return 0, fmt.Errorf("%s", msg)
		}
		deferred.Pushf(diag.Warning, diag.KindValue, "%s; truncating to %d whole rows", msg, rows)
	}
	if tot, ok := m.Tot.Get(); ok && int(tot) != rows {
		msg := fmt.Sprintf("$TOT=%d disagrees with computed row count %d", tot, rows)
		if cfg.EnforceMatchingTot {
			return 0, fmt.Errorf("%s", msg)
		}
		deferred.Pushf(diag.Warning, diag.KindCrossKey, "%s", msg)
	}
	return rows, nil
}
