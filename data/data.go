// Package data implements the streaming DATA-segment reader (C9): it
// executes a databuild.Plan against an io.Reader positioned at the start of
// the DATA segment, producing one Column per measurement. Grounded on
// _examples/angli232-fcs/decoder.go's decodeIntData/decodeData (event-width
// striding, per-bit-width switch), but replaces its unsafe.Pointer column
// extraction with bounds-checked encoding/binary reads driven by
// golang.org/x/exp/constraints-typed generic column buffers.
package data

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/nsbuitrago/gofcs/databuild"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/value"
)

// Column is a fully-decoded measurement column: NumRows float64 values,
// integer values already bitmask-clamped to $PnR. No $PnE scaling is
// applied.
type Column interface {
	Index() int
	Len() int
	At(row int) float64
}

type floatColumn[T constraints.Float] struct {
	index  int
	values []T
}

func (c *floatColumn[T]) Index() int    { return c.index }
func (c *floatColumn[T]) Len() int      { return len(c.values) }
func (c *floatColumn[T]) At(row int) float64 { return float64(c.values[row]) }

type intColumn[T constraints.Unsigned] struct {
	index  int
	values []T
}

func (c *intColumn[T]) Index() int    { return c.index }
func (c *intColumn[T]) Len() int      { return len(c.values) }
func (c *intColumn[T]) At(row int) float64 { return float64(c.values[row]) }

// Dataset is the full decoded DATA segment: one Column per measurement, in
// $Pn order.
type Dataset struct {
	Columns []Column
}

// Read executes plan against r (already positioned at plan.DataSegment's
// first byte) and returns the decoded Dataset.
func Read(r io.Reader, plan databuild.Plan) (diag.Result[Dataset], *diag.Failure) {
	if plan.NumRows == 0 || len(plan.Columns) == 0 {
		return diag.Of(Dataset{}), nil
	}
	switch plan.Kind {
	case databuild.DelimitedAscii:
		return readDelimitedAscii(r, plan)
	case databuild.FixedAscii:
		return readFixedAscii(r, plan)
	default:
		return readFixedBinary(r, plan)
	}
}

func readDelimitedAscii(r io.Reader, plan databuild.Plan) (diag.Result[Dataset], *diag.Failure) {
	var deferred diag.Buf
	numCols := len(plan.Columns)
	cols := make([]*floatColumn[float64], numCols)
	for i := range cols {
		cols[i] = &floatColumn[float64]{index: plan.Columns[i].Index, values: make([]float64, 0, plan.NumRows)}
	}

	// Each row is a run of comma-separated values; rows themselves are
	// separated by whitespace. Scan whitespace-delimited row tokens, then
	// split each on comma into its numCols fields.
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	row := 0
	for scanner.Scan() && row < plan.NumRows {
		rowTok := strings.TrimSpace(scanner.Text())
		fields := strings.Split(rowTok, ",")
		if len(fields) != numCols {
			return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("DATA row %d has %d comma-separated fields, want %d", row, len(fields), numCols)).WithDeferred(deferred)
		}
		for col, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("DATA row %d column %d: invalid numeric token %q: %w", row, col, f, err)).WithDeferred(deferred)
			}
			cols[col].values = append(cols[col].values, v)
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("reading delimited ASCII DATA segment: %w", err)).WithDeferred(deferred)
	}
	if row != plan.NumRows {
		deferred.Pushf(diag.Warning, diag.KindValue, "delimited ASCII DATA segment produced %d rows, expected %d", row, plan.NumRows)
	}

	out := make([]Column, numCols)
	for i, c := range cols {
		out[i] = c
	}
	return diag.Result[Dataset]{Data: Dataset{Columns: out}, Deferred: deferred}, nil
}

func readFixedAscii(r io.Reader, plan databuild.Plan) (diag.Result[Dataset], *diag.Failure) {
	var deferred diag.Buf
	numCols := len(plan.Columns)
	cols := make([]*floatColumn[float64], numCols)
	for i, c := range plan.Columns {
		cols[i] = &floatColumn[float64]{index: c.Index, values: make([]float64, plan.NumRows)}
	}

	rowBuf := make([]byte, plan.EventWidth)
	for row := 0; row < plan.NumRows; row++ {
		if _, err := io.ReadFull(r, rowBuf); err != nil {
			return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("reading fixed-width ASCII DATA row %d: %w", row, err)).WithDeferred(deferred)
		}
		off := 0
		for ci, c := range plan.Columns {
			field := string(rowBuf[off : off+c.ByteWidth])
			off += c.ByteWidth
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("DATA row %d column %d: invalid fixed-width numeric field %q: %w", row, ci, field, err)).WithDeferred(deferred)
			}
			cols[ci].values[row] = v
		}
	}

	out := make([]Column, numCols)
	for i, c := range cols {
		out[i] = c
	}
	return diag.Result[Dataset]{Data: Dataset{Columns: out}, Deferred: deferred}, nil
}

func readFixedBinary(r io.Reader, plan databuild.Plan) (diag.Result[Dataset], *diag.Failure) {
	var deferred diag.Buf
	numCols := len(plan.Columns)
	out := make([]Column, numCols)
	u8 := make([][]uint8, numCols)
	u16 := make([][]uint16, numCols)
	u32 := make([][]uint32, numCols)
	u64 := make([][]uint64, numCols)
	f32 := make([][]float32, numCols)
	f64 := make([][]float64, numCols)

	for i, c := range plan.Columns {
		switch c.Type {
		case value.NumFloat32:
			f32[i] = make([]float32, plan.NumRows)
		case value.NumFloat64:
			f64[i] = make([]float64, plan.NumRows)
		default:
			switch c.ByteWidth {
			case 1:
				u8[i] = make([]uint8, plan.NumRows)
			case 2:
				u16[i] = make([]uint16, plan.NumRows)
			case 4:
				u32[i] = make([]uint32, plan.NumRows)
			case 8:
				u64[i] = make([]uint64, plan.NumRows)
			default:
				return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("column %d has unsupported byte width %d", c.Index, c.ByteWidth)).WithDeferred(deferred)
			}
		}
	}

	rowBuf := make([]byte, plan.EventWidth)
	for row := 0; row < plan.NumRows; row++ {
		if _, err := io.ReadFull(r, rowBuf); err != nil {
			return diag.Result[Dataset]{}, diag.NewFailure(fmt.Errorf("reading DATA row %d: %w", row, err)).WithDeferred(deferred)
		}
		off := 0
		for i, c := range plan.Columns {
			raw := rowBuf[off : off+c.ByteWidth]
			ordered := permuteBytes(raw, c.Permutation)
			off += c.ByteWidth
			switch c.Type {
			case value.NumFloat32:
				f32[i][row] = math.Float32frombits(binary.LittleEndian.Uint32(ordered))
			case value.NumFloat64:
				f64[i][row] = math.Float64frombits(binary.LittleEndian.Uint64(ordered))
			default:
				switch c.ByteWidth {
				case 1:
					u8[i][row] = clampU8(ordered[0], c)
				case 2:
					u16[i][row] = clampU16(binary.LittleEndian.Uint16(ordered), c)
				case 4:
					u32[i][row] = clampU32(binary.LittleEndian.Uint32(ordered), c)
				case 8:
					u64[i][row] = clampU64(binary.LittleEndian.Uint64(ordered), c)
				}
			}
		}
	}

	for i, c := range plan.Columns {
		switch c.Type {
		case value.NumFloat32:
			out[i] = &floatColumn[float32]{index: c.Index, values: f32[i]}
		case value.NumFloat64:
			out[i] = &floatColumn[float64]{index: c.Index, values: f64[i]}
		default:
			switch c.ByteWidth {
			case 1:
				out[i] = &intColumn[uint8]{index: c.Index, values: u8[i]}
			case 2:
				out[i] = &intColumn[uint16]{index: c.Index, values: u16[i]}
			case 4:
				out[i] = &intColumn[uint32]{index: c.Index, values: u32[i]}
			case 8:
				out[i] = &intColumn[uint64]{index: c.Index, values: u64[i]}
			}
		}
	}

	return diag.Result[Dataset]{Data: Dataset{Columns: out}, Deferred: deferred}, nil
}

// permuteBytes reorders raw per perm (0-based source index for each
// destination position), producing a little-endian-ordered buffer ready for
// binary.LittleEndian decode regardless of the file's declared $BYTEORD.
func permuteBytes(raw []byte, perm []int) []byte {
	if perm == nil {
		return raw
	}
	out := make([]byte, len(raw))
	for dst, src := range perm {
		out[dst] = raw[src]
	}
	return out
}

// clampU8/16/32/64 saturate v to c's $PnR-derived bitmask ceiling
// (min(v, bitmask)), matching the original implementation's x.min(bitmask)
// rather than a bitwise AND: an AND would truncate a raw value that exceeds
// the bitmask without having all of its low-order bits set (e.g. a raw 2000
// against bitmask 1023 must become 1023, not 2000&1023==976).
func clampU8(v uint8, c databuild.Column) uint8 {
	if c.Range.IsFloat() {
		return v
	}
	max := c.Range.Int()
	if max >= math.MaxUint8 {
		return v
	}
	if mask := uint8(bitmask(max)); v > mask {
		return mask
	}
	return v
}

func clampU16(v uint16, c databuild.Column) uint16 {
	if c.Range.IsFloat() {
		return v
	}
	max := c.Range.Int()
	if max >= math.MaxUint16 {
		return v
	}
	if mask := uint16(bitmask(max)); v > mask {
		return mask
	}
	return v
}

func clampU32(v uint32, c databuild.Column) uint32 {
	if c.Range.IsFloat() {
		return v
	}
	max := c.Range.Int()
	if max >= math.MaxUint32 {
		return v
	}
	if mask := uint32(bitmask(max)); v > mask {
		return mask
	}
	return v
}

func clampU64(v uint64, c databuild.Column) uint64 {
	if c.Range.IsFloat() {
		return v
	}
	max := c.Range.Int()
	if max == math.MaxUint64 {
		return v
	}
	if mask := bitmask(max); v > mask {
		return mask
	}
	return v
}

// bitmask returns the smallest (2^n)-1 mask >= max, matching the original
// implementation's $PnR-derived bitmask clamp for sub-byte-aligned ranges.
func bitmask(max uint64) uint64 {
	if max >= 1<<63 {
		return math.MaxUint64
	}
	mask := uint64(1)
	for mask <= max {
		mask <<= 1
	}
	return mask - 1
}
