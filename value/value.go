// Package value implements the per-version typed-value vocabulary (C5):
// string parsers and printers for every domain value type an FCS TEXT
// keyword may hold. Every pair here must round-trip: Parse(Print(v)) == v
// for any v Parse can produce (spec.md §8, invariant 4).
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Endian is the two-way byte order a $BYTEORD or $PnBYTEORD may declare.
type Endian int

const (
	Little Endian = iota
	Big
)

func ParseEndian(s string) (Endian, error) {
	switch s {
	case "1,2,3,4":
		return Little, nil
	case "4,3,2,1":
		return Big, nil
	default:
		return 0, fmt.Errorf("not a recognized endian token: %q", s)
	}
}

func (e Endian) String() string {
	if e == Big {
		return "4,3,2,1"
	}
	return "1,2,3,4"
}

// ByteOrd is either a named Endian or an explicit permutation of distinct
// 1-based byte positions.
type ByteOrd struct {
	endian     Endian
	isEndian   bool
	permutation []int // 0-based, length = measurement byte width
}

func EndianByteOrd(e Endian) ByteOrd { return ByteOrd{endian: e, isEndian: true} }

// PermutationByteOrd builds a ByteOrd from a 1-based permutation, validating
// that it is a permutation of 1..=n.
func PermutationByteOrd(perm1based []int) (ByteOrd, error) {
	n := len(perm1based)
	seen := make([]bool, n)
	zero := make([]int, n)
	for i, p := range perm1based {
		if p < 1 || p > n || seen[p-1] {
			return ByteOrd{}, fmt.Errorf("byte order %v is not a permutation of 1..=%d", perm1based, n)
		}
		seen[p-1] = true
		zero[i] = p - 1
	}
	return ByteOrd{permutation: zero}, nil
}

// ParseByteOrd parses either form; allowPermutation gates whether a
// non-endian permutation is acceptable (3.1+ only permits the endian form,
// per spec.md §4.7).
func ParseByteOrd(s string, allowPermutation bool) (ByteOrd, error) {
	if e, err := ParseEndian(s); err == nil {
		return EndianByteOrd(e), nil
	}
	if !allowPermutation {
		return ByteOrd{}, fmt.Errorf("byte order %q must be an endian token (1,2,3,4 or 4,3,2,1) in this version", s)
	}
	parts := strings.Split(s, ",")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return ByteOrd{}, fmt.Errorf("byte order %q contains a non-integer field: %w", s, err)
		}
		nums[i] = n
	}
	return PermutationByteOrd(nums)
}

func (b ByteOrd) IsEndian() bool { return b.isEndian }
func (b ByteOrd) Endian() Endian { return b.endian }

// Permutation returns the 0-based byte permutation; if b is an Endian form,
// it is expanded to the requested width.
func (b ByteOrd) Permutation(width int) []int {
	if !b.isEndian {
		return b.permutation
	}
	out := make([]int, width)
	for i := range out {
		if b.endian == Little {
			out[i] = i
		} else {
			out[i] = width - 1 - i
		}
	}
	return out
}

func (b ByteOrd) String() string {
	if b.isEndian {
		return b.endian.String()
	}
	parts := make([]string, len(b.permutation))
	for i, p := range b.permutation {
		parts[i] = strconv.Itoa(p + 1)
	}
	return strings.Join(parts, ",")
}

// Bytes is the $PnB bit-width declaration: either a fixed byte count or
// Variable (delimited ASCII).
type Bytes struct {
	fixed    int // byte count; meaningless if variable
	variable bool
}

func Fixed(n int) Bytes    { return Bytes{fixed: n} }
func Variable() Bytes      { return Bytes{variable: true} }
func (b Bytes) IsVariable() bool { return b.variable }
func (b Bytes) Width() int       { return b.fixed }

func ParseBytes(s string) (Bytes, error) {
	if s == "*" {
		return Variable(), nil
	}
	bits, err := strconv.Atoi(s)
	if err != nil {
		return Bytes{}, fmt.Errorf("$PnB value %q is neither '*' nor an integer", s)
	}
	if bits < 1 || bits > 64 || bits%8 != 0 {
		return Bytes{}, fmt.Errorf("$PnB value %d must be in 1..=64 and a multiple of 8", bits)
	}
	return Fixed(bits / 8), nil
}

func (b Bytes) String() string {
	if b.variable {
		return "*"
	}
	return strconv.Itoa(b.fixed * 8)
}

// Range is the $PnR declaration: Int stores $PnR-1 (saturating at
// u64::MAX on overflow, per original_source/src/api.rs and DESIGN.md), or
// Float for non-integer ranges.
type Range struct {
	isFloat bool
	i       uint64
	f       float64
}

func IntRange(v uint64) Range     { return Range{i: v} }
func FloatRange(v float64) Range  { return Range{isFloat: true, f: v} }
func (r Range) IsFloat() bool     { return r.isFloat }
func (r Range) Int() uint64       { return r.i }
func (r Range) Float() float64    { return r.f }

func ParseRange(s string) (Range, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		if v == 0 {
			return Range{}, fmt.Errorf("$PnR value of 0 is invalid")
		}
		return IntRange(v - 1), nil
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return FloatRange(f), nil
		}
	}
	// Integer string too large to fit u64 (e.g. "18446744073709551616",
	// representing $PnR = 2^64): saturate per spec.md §8 boundary behavior.
	if isAllDigits(s) {
		return IntRange(math.MaxUint64), nil
	}
	return Range{}, fmt.Errorf("could not parse %q as a $PnR range", s)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (r Range) String() string {
	if r.isFloat {
		return strconv.FormatFloat(r.f, 'g', -1, 64)
	}
	if r.i == math.MaxUint64 {
		return "18446744073709551616"
	}
	return strconv.FormatUint(r.i+1, 10)
}

// AlphaNumType is $DATATYPE/$PnDATATYPE's closed set.
type AlphaNumType byte

const (
	TypeInteger AlphaNumType = 'I'
	TypeFloat32 AlphaNumType = 'F'
	TypeFloat64 AlphaNumType = 'D'
	TypeAscii   AlphaNumType = 'A'
)

func ParseAlphaNumType(s string) (AlphaNumType, error) {
	if len(s) == 1 {
		switch AlphaNumType(s[0]) {
		case TypeInteger, TypeFloat32, TypeFloat64, TypeAscii:
			return AlphaNumType(s[0]), nil
		}
	}
	return 0, fmt.Errorf("%q is not one of I|F|D|A", s)
}

func (t AlphaNumType) String() string { return string(rune(t)) }

// NumType is $PnDATATYPE's closed set (no Ascii).
type NumType byte

const (
	NumInteger NumType = 'I'
	NumFloat32 NumType = 'F'
	NumFloat64 NumType = 'D'
)

func ParseNumType(s string) (NumType, error) {
	if len(s) == 1 {
		switch NumType(s[0]) {
		case NumInteger, NumFloat32, NumFloat64:
			return NumType(s[0]), nil
		}
	}
	return 0, fmt.Errorf("%q is not one of I|F|D", s)
}

func (t NumType) String() string { return string(rune(t)) }

// Mode is $MODE; versions >= 3.2 only permit L.
type Mode byte

const (
	ModeList      Mode = 'L'
	ModeUncorrelated Mode = 'U'
	ModeCorrelated   Mode = 'C'
)

func ParseMode(s string, listOnly bool) (Mode, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("%q is not a single-character mode", s)
	}
	m := Mode(s[0])
	switch m {
	case ModeList:
		return m, nil
	case ModeUncorrelated, ModeCorrelated:
		if listOnly {
			return 0, fmt.Errorf("$MODE must be L in this version, got %q", s)
		}
		return m, nil
	default:
		return 0, fmt.Errorf("%q is not one of L|U|C", s)
	}
}

func (m Mode) String() string { return string(rune(m)) }

// Compensation is an n x n row-major matrix parsed from "n,f11,f12,...,fnn".
type Compensation struct {
	N       int
	Factors []float64 // row-major, length N*N
}

func ParseCompensation(s string) (Compensation, error) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 {
		return Compensation{}, fmt.Errorf("empty $COMP/$DFCmTOn value")
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || n <= 0 {
		return Compensation{}, fmt.Errorf("invalid compensation matrix size %q", fields[0])
	}
	if len(fields) != 1+n*n {
		return Compensation{}, fmt.Errorf("compensation matrix declares n=%d but has %d factors, want %d", n, len(fields)-1, n*n)
	}
	factors := make([]float64, n*n)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Compensation{}, fmt.Errorf("invalid compensation factor %q: %w", f, err)
		}
		factors[i] = v
	}
	return Compensation{N: n, Factors: factors}, nil
}

func (c Compensation) String() string {
	parts := make([]string, 0, 1+len(c.Factors))
	parts = append(parts, strconv.Itoa(c.N))
	for _, f := range c.Factors {
		parts = append(parts, formatFloat(f))
	}
	return strings.Join(parts, ",")
}

// Spillover is an n x n matrix plus the n unique measurement names it
// refers to: "n,name1,...,namen,f11,...,fnn".
type Spillover struct {
	Names   []string
	Factors []float64 // row-major, length N*N
}

func ParseSpillover(s string) (Spillover, error) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 {
		return Spillover{}, fmt.Errorf("empty $SPILLOVER value")
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || n <= 0 {
		return Spillover{}, fmt.Errorf("invalid spillover size %q", fields[0])
	}
	if len(fields) != 1+n+n*n {
		return Spillover{}, fmt.Errorf("spillover declares n=%d but has %d remaining fields, want %d", n, len(fields)-1, n+n*n)
	}
	names := make([]string, n)
	seen := make(map[string]bool, n)
	for i, nm := range fields[1 : 1+n] {
		nm = strings.TrimSpace(nm)
		if seen[nm] {
			return Spillover{}, fmt.Errorf("duplicate spillover measurement name %q", nm)
		}
		seen[nm] = true
		names[i] = nm
	}
	factors := make([]float64, n*n)
	for i, f := range fields[1+n:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Spillover{}, fmt.Errorf("invalid spillover factor %q: %w", f, err)
		}
		factors[i] = v
	}
	return Spillover{Names: names, Factors: factors}, nil
}

func (s Spillover) String() string {
	n := len(s.Names)
	parts := make([]string, 0, 1+n+len(s.Factors))
	parts = append(parts, strconv.Itoa(n))
	parts = append(parts, s.Names...)
	for _, f := range s.Factors {
		parts = append(parts, formatFloat(f))
	}
	return strings.Join(parts, ",")
}

// UnstainedCenters is "n,name1,...,namen,f1,...,fn".
type UnstainedCenters struct {
	Centers map[string]float64
	Order   []string // preserves declaration order for round-tripping
}

func ParseUnstainedCenters(s string) (UnstainedCenters, error) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 {
		return UnstainedCenters{}, fmt.Errorf("empty $UNSTAINEDCENTERS value")
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || n <= 0 {
		return UnstainedCenters{}, fmt.Errorf("invalid unstained-centers size %q", fields[0])
	}
	if len(fields) != 1+2*n {
		return UnstainedCenters{}, fmt.Errorf("unstained centers declares n=%d but has %d remaining fields, want %d", n, len(fields)-1, 2*n)
	}
	names := fields[1 : 1+n]
	vals := fields[1+n:]
	centers := make(map[string]float64, n)
	order := make([]string, n)
	for i, nm := range names {
		nm = strings.TrimSpace(nm)
		if _, dup := centers[nm]; dup {
			return UnstainedCenters{}, fmt.Errorf("duplicate unstained-center name %q", nm)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(vals[i]), 64)
		if err != nil {
			return UnstainedCenters{}, fmt.Errorf("invalid unstained-center value %q: %w", vals[i], err)
		}
		centers[nm] = v
		order[i] = nm
	}
	return UnstainedCenters{Centers: centers, Order: order}, nil
}

func (u UnstainedCenters) String() string {
	names := u.Order
	if len(names) == 0 {
		names = sortedKeys(u.Centers)
	}
	parts := make([]string, 0, 1+2*len(names))
	parts = append(parts, strconv.Itoa(len(names)))
	parts = append(parts, names...)
	for _, nm := range names {
		parts = append(parts, formatFloat(u.Centers[nm]))
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Trigger is $TRIGGER: "name,threshold".
type Trigger struct {
	Name      string
	Threshold int
}

func ParseTrigger(s string) (Trigger, error) {
	idx := strings.LastIndex(s, ",")
	if idx < 0 {
		return Trigger{}, fmt.Errorf("$TRIGGER value %q missing comma separator", s)
	}
	name := s[:idx]
	threshold, err := strconv.Atoi(strings.TrimSpace(s[idx+1:]))
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid $TRIGGER threshold in %q: %w", s, err)
	}
	return Trigger{Name: name, Threshold: threshold}, nil
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s,%d", t.Name, t.Threshold)
}

// Scale is $PnE: Linear, or Log with decades/offset.
type Scale struct {
	isLog   bool
	decades float64
	offset  float64
}

func Linear() Scale { return Scale{} }
func Log(decades, offset float64) Scale { return Scale{isLog: true, decades: decades, offset: offset} }
func (s Scale) IsLog() bool     { return s.isLog }
func (s Scale) Decades() float64 { return s.decades }
func (s Scale) Offset() float64  { return s.offset }

func ParseScale(s string) (Scale, error) {
	idx := strings.Index(s, ",")
	if idx < 0 {
		return Scale{}, fmt.Errorf("$PnE value %q missing comma", s)
	}
	a, err1 := strconv.ParseFloat(strings.TrimSpace(s[:idx]), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(s[idx+1:]), 64)
	if err1 != nil || err2 != nil {
		return Scale{}, fmt.Errorf("invalid $PnE value %q", s)
	}
	if a == 0 && b == 0 {
		return Linear(), nil
	}
	return Log(a, b), nil
}

func (s Scale) String() string {
	if !s.isLog {
		return "0,0"
	}
	return fmt.Sprintf("%s,%s", formatFloat(s.decades), formatFloat(s.offset))
}

// Display is $PnDISPLAY: Linear(lower,upper) or Logarithmic(decades,offset).
type Display struct {
	log    bool
	a, b   float64
}

func LinearDisplay(lower, upper float64) Display   { return Display{a: lower, b: upper} }
func LogDisplay(decades, offset float64) Display    { return Display{log: true, a: decades, b: offset} }
func (d Display) IsLog() bool { return d.log }
func (d Display) A() float64  { return d.a }
func (d Display) B() float64  { return d.b }

func ParseDisplay(s string) (Display, error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return Display{}, fmt.Errorf("$PnDISPLAY value %q must have 3 comma-separated fields", s)
	}
	a, err1 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err1 != nil || err2 != nil {
		return Display{}, fmt.Errorf("invalid numeric fields in $PnDISPLAY value %q", s)
	}
	switch strings.TrimSpace(parts[0]) {
	case "Linear":
		return LinearDisplay(a, b), nil
	case "Logarithmic":
		return LogDisplay(a, b), nil
	default:
		return Display{}, fmt.Errorf("$PnDISPLAY kind must be Linear or Logarithmic, got %q", parts[0])
	}
}

func (d Display) String() string {
	if d.log {
		return fmt.Sprintf("Logarithmic,%s,%s", formatFloat(d.a), formatFloat(d.b))
	}
	return fmt.Sprintf("Linear,%s,%s", formatFloat(d.a), formatFloat(d.b))
}

// Calibration3_1 is $PnCALIBRATION for FCS 3.1: "value(>=0),unit".
type Calibration3_1 struct {
	Value float64
	Unit  string
}

func ParseCalibration3_1(s string) (Calibration3_1, error) {
	idx := strings.Index(s, ",")
	if idx < 0 {
		return Calibration3_1{}, fmt.Errorf("calibration value %q missing comma", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s[:idx]), 64)
	if err != nil || v < 0 {
		return Calibration3_1{}, fmt.Errorf("calibration value must be a non-negative number, got %q", s[:idx])
	}
	return Calibration3_1{Value: v, Unit: s[idx+1:]}, nil
}

func (c Calibration3_1) String() string {
	return fmt.Sprintf("%s,%s", formatFloat(c.Value), c.Unit)
}

// Calibration3_2 is $PnCALIBRATION for FCS 3.2: "value(>=0),[offset,]unit".
type Calibration3_2 struct {
	Value  float64
	Offset float64
	HasOffset bool
	Unit   string
}

func ParseCalibration3_2(s string) (Calibration3_2, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return Calibration3_2{}, fmt.Errorf("calibration value %q needs at least value,unit", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || v < 0 {
		return Calibration3_2{}, fmt.Errorf("calibration value must be a non-negative number, got %q", parts[0])
	}
	if len(parts) == 2 {
		return Calibration3_2{Value: v, Unit: parts[1]}, nil
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Calibration3_2{}, fmt.Errorf("calibration offset %q is not numeric", parts[1])
	}
	unit := strings.Join(parts[2:], ",")
	return Calibration3_2{Value: v, Offset: offset, HasOffset: true, Unit: unit}, nil
}

func (c Calibration3_2) String() string {
	if c.HasOffset {
		return fmt.Sprintf("%s,%s,%s", formatFloat(c.Value), formatFloat(c.Offset), c.Unit)
	}
	return fmt.Sprintf("%s,%s", formatFloat(c.Value), c.Unit)
}

// Feature is $PnFEATURE (3.2+).
type Feature int

const (
	FeatureArea Feature = iota
	FeatureWidth
	FeatureHeight
)

func ParseFeature(s string) (Feature, error) {
	switch s {
	case "Area":
		return FeatureArea, nil
	case "Width":
		return FeatureWidth, nil
	case "Height":
		return FeatureHeight, nil
	default:
		return 0, fmt.Errorf("%q is not one of Area|Width|Height", s)
	}
}

func (f Feature) String() string {
	switch f {
	case FeatureWidth:
		return "Width"
	case FeatureHeight:
		return "Height"
	default:
		return "Area"
	}
}

// MeasurementType is $PnTYPE: a closed set of known values, with unknown
// values preserved verbatim as Other.
type MeasurementType struct {
	known string
	other string
}

var knownMeasurementTypes = map[string]bool{
	"Forward Scatter": true, "Side Scatter": true, "Raw Fluorescence": true,
	"Unmixed Fluorescence": true, "Mass": true, "Time": true, "Electronic Volume": true,
	"Classification": true, "Index": true,
}

func ParseMeasurementType(s string) MeasurementType {
	if knownMeasurementTypes[s] {
		return MeasurementType{known: s}
	}
	return MeasurementType{other: s}
}

func (m MeasurementType) IsOther() bool { return m.known == "" }
func (m MeasurementType) String() string {
	if m.known != "" {
		return m.known
	}
	return m.other
}

// Originality is $ORIGINALITY.
type Originality int

const (
	Original Originality = iota
	NonDataModified
	Appended
	DataModified
)

func ParseOriginality(s string) (Originality, error) {
	switch s {
	case "Original":
		return Original, nil
	case "NonDataModified":
		return NonDataModified, nil
	case "Appended":
		return Appended, nil
	case "DataModified":
		return DataModified, nil
	default:
		return 0, fmt.Errorf("%q is not a recognized $ORIGINALITY value", s)
	}
}

func (o Originality) String() string {
	switch o {
	case NonDataModified:
		return "NonDataModified"
	case Appended:
		return "Appended"
	case DataModified:
		return "DataModified"
	default:
		return "Original"
	}
}

// FCSDate is $DATE: dd-mmm-yyyy, month case-insensitive.
type FCSDate struct{ T time.Time }

func ParseFCSDate(s string) (FCSDate, error) {
	t, err := time.Parse("02-Jan-2006", titleCaseMonth(s))
	if err != nil {
		return FCSDate{}, fmt.Errorf("invalid $DATE %q: %w", s, err)
	}
	return FCSDate{T: t}, nil
}

func (d FCSDate) String() string { return d.T.Format("02-Jan-2006") }

// titleCaseMonth normalizes the 3-letter month abbreviation to the
// title-case form time.Parse expects ("JAN"/"jan" -> "Jan"), leaving the
// day/year fields untouched.
func titleCaseMonth(s string) string {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[1]) != 3 {
		return s
	}
	m := strings.ToLower(parts[1])
	parts[1] = strings.ToUpper(m[:1]) + m[1:]
	return strings.Join(parts, "-")
}

// FCSTime is $BTIM/$ETIM for FCS 2.0: HH:MM:SS.
type FCSTime struct{ T time.Time }

func ParseFCSTime(s string) (FCSTime, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return FCSTime{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return FCSTime{T: t}, nil
}

func (t FCSTime) String() string { return t.T.Format("15:04:05") }

// FCSTime60 is $BTIM/$ETIM for FCS 3.0: HH:MM:SS or HH:MM:SS:tt (tt in
// 1/60s).
type FCSTime60 struct{ T time.Time }

func ParseFCSTime60(s string) (FCSTime60, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		t, err := time.Parse("15:04:05", s)
		if err != nil {
			return FCSTime60{}, fmt.Errorf("invalid time %q: %w", s, err)
		}
		return FCSTime60{T: t}, nil
	case 4:
		base, err := time.Parse("15:04:05", strings.Join(parts[:3], ":"))
		if err != nil {
			return FCSTime60{}, fmt.Errorf("invalid time %q: %w", s, err)
		}
		tt, err := strconv.Atoi(parts[3])
		if err != nil || tt < 0 || tt >= 60 {
			return FCSTime60{}, fmt.Errorf("invalid 1/60s field in time %q", s)
		}
		ns := int(float64(tt) / 60 * 1e9)
		return FCSTime60{T: base.Add(time.Duration(ns))}, nil
	default:
		return FCSTime60{}, fmt.Errorf("time %q must have 3 or 4 colon-separated fields", s)
	}
}

func (t FCSTime60) String() string {
	if t.T.Nanosecond() == 0 {
		return t.T.Format("15:04:05")
	}
	tt := int(math.Round(float64(t.T.Nanosecond()) / 1e9 * 60))
	return fmt.Sprintf("%s:%02d", t.T.Format("15:04:05"), tt)
}

// FCSTime100 is $BTIM/$ETIM for FCS 3.1: HH:MM:SS or HH:MM:SS.cc (cc in
// 1/100s).
type FCSTime100 struct{ T time.Time }

func ParseFCSTime100(s string) (FCSTime100, error) {
	layout := "15:04:05"
	if strings.Contains(s, ".") {
		layout = "15:04:05.00"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return FCSTime100{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return FCSTime100{T: t}, nil
}

func (t FCSTime100) String() string {
	if t.T.Nanosecond() == 0 {
		return t.T.Format("15:04:05")
	}
	return t.T.Format("15:04:05.00")
}

// FCSDateTime is $BEGINDATETIME/$ENDDATETIME for FCS 3.2: ISO-8601 with
// optional timezone.
type FCSDateTime struct{ T time.Time }

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.00Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.00",
}

func ParseFCSDateTime(s string) (FCSDateTime, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FCSDateTime{T: t}, nil
		}
	}
	return FCSDateTime{}, fmt.Errorf("invalid ISO-8601 datetime %q", s)
}

func (d FCSDateTime) String() string {
	if d.T.Location() == time.UTC && d.T.Nanosecond() == 0 {
		return d.T.Format("2006-01-02T15:04:05Z")
	}
	return d.T.Format("2006-01-02T15:04:05.00Z07:00")
}

// ModifiedDateTime is $LAST_MODIFIED: dd-mmm-yyyy HH:MM:SS[.cc].
type ModifiedDateTime struct{ T time.Time }

func ParseModifiedDateTime(s string) (ModifiedDateTime, error) {
	fixed := fixDateTimeMonth(s)
	layout := "02-Jan-2006 15:04:05"
	if strings.Contains(s, ".") {
		layout = "02-Jan-2006 15:04:05.00"
	}
	t, err := time.Parse(layout, fixed)
	if err != nil {
		return ModifiedDateTime{}, fmt.Errorf("invalid $LAST_MODIFIED %q: %w", s, err)
	}
	return ModifiedDateTime{T: t}, nil
}

func fixDateTimeMonth(s string) string {
	idx := strings.Index(s, " ")
	if idx < 0 {
		return s
	}
	return titleCaseMonth(s[:idx]) + s[idx:]
}

func (m ModifiedDateTime) String() string {
	if m.T.Nanosecond() == 0 {
		return m.T.Format("02-Jan-2006 15:04:05")
	}
	return m.T.Format("02-Jan-2006 15:04:05.00")
}

// Unicode is $UNICODE: "page,kw1[,kw2...]", at least one keyword.
type Unicode struct {
	Page     int
	Keywords []string
}

func ParseUnicode(s string) (Unicode, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return Unicode{}, fmt.Errorf("$UNICODE value %q needs a page and at least one keyword", s)
	}
	page, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Unicode{}, fmt.Errorf("invalid $UNICODE page %q", parts[0])
	}
	return Unicode{Page: page, Keywords: parts[1:]}, nil
}

func (u Unicode) String() string {
	return fmt.Sprintf("%d,%s", u.Page, strings.Join(u.Keywords, ","))
}

// windowsCodePages maps the Windows code page numbers seen in practice on
// $UNICODE's page field to their golang.org/x/text encoding.
var windowsCodePages = map[int]encoding.Encoding{
	1200:  unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	1201:  unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	1252:  charmap.Windows1252,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	28591: charmap.ISO8859_1,
	65001: encoding.Nop, // UTF-8, no transform required
}

// Encoding resolves u.Page to a concrete decoder, when the page names a
// code page this package recognizes.
func (u Unicode) Encoding() (encoding.Encoding, bool) {
	enc, ok := windowsCodePages[u.Page]
	return enc, ok
}

// DecodeKeywordValue re-interprets raw, the TEXT segment's byte-for-byte
// value of one of u's listed keywords, using u's resolved code page. FCS
// TEXT is otherwise read as plain ASCII/UTF-8; $UNICODE marks the keywords
// whose raw bytes were written in a different page and must be recoded.
func (u Unicode) DecodeKeywordValue(raw []byte) (string, error) {
	enc, ok := u.Encoding()
	if !ok {
		return "", fmt.Errorf("$UNICODE page %d is not a recognized code page", u.Page)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding $UNICODE page %d value: %w", u.Page, err)
	}
	return string(out), nil
}

// Shortname is $PnN: any string without a comma.
type Shortname string

func ParseShortname(s string) (Shortname, error) {
	if strings.Contains(s, ",") {
		return "", fmt.Errorf("shortname %q must not contain a comma", s)
	}
	return Shortname(s), nil
}

func (s Shortname) String() string { return string(s) }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
