// Package config implements the functional-options configuration surface
// for a gofcs parse, grounded in arloliu-mebo's internal/options generic
// Option[T]/Apply pattern and in spec.md's configuration table (§6), which
// in turn mirrors original_source/crates/fireflow-core/src/config.rs
// field-for-field.
package config

import (
	"regexp"
	"strconv"

	"github.com/nsbuitrago/gofcs/header"
)

// OffsetCorrection is an alias of header.OffsetCorrections, kept under its
// own name here so callers configuring a parse never need to import the
// header package directly.
type OffsetCorrection = header.OffsetCorrections

// TimeConfig controls the optional time-channel cross-field validations in
// C6 (keyword.CheckCrossKey).
type TimeConfig struct {
	// Shortname, if set, names the measurement treated as the time channel.
	Shortname string
	Ensure         bool
	EnsureTimestep bool
	EnsureLinear   bool
	EnsureNoGain   bool
}

// Config is the full parse configuration. The zero value is the permissive
// default: no corrections, escape-mode splitting, warnings instead of
// errors everywhere policy allows a choice.
type Config struct {
	VersionOverride      *header.Version
	Text                 OffsetCorrection
	DataOffset           OffsetCorrection
	AnalysisOffset       OffsetCorrection
	STextOffset          OffsetCorrection

	NoDelimEscape          bool
	ForceASCIIDelim        bool
	EnforceFinalDelim      bool
	EnforceUnique          bool
	EnforceEven            bool
	EnforceNonempty        bool
	ErrorOnInvalidUTF8     bool
	EnforceKeywordASCII    bool
	EnforceSTextOffsets    bool
	RepairOffsetSpaces     bool
	DatePattern            string // Go reference-time layout; empty = canonical "02-Jan-2006"

	DisallowDeprecated  bool
	DisallowDeviant     bool
	DisallowNonstandard bool
	WarningsAreErrors   bool

	Time TimeConfig

	// NonstandardMeasurementPattern is a regex template containing the
	// literal substring "%n"; for measurement index i, "%n" is replaced
	// with strconv.Itoa(i) and the result compiled to group matching
	// NonStdKey entries into that measurement's own map.
	NonstandardMeasurementPattern string

	EnforceDataWidthDivisibility bool
	EnforceMatchingTot           bool
}

// Option mutates a Config being built. Modeled on mebo's functional-options
// shape (internal/options.Option[T]) but specialized to Config rather than
// generic, since gofcs has exactly one configuration surface, not many
// distinct option-configurable types.
type Option func(*Config)

// New builds a Config from a sequence of Options applied in order.
func New(opts ...Option) Config {
	var c Config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithVersionOverride forces a specific version regardless of the HEADER
// token.
func WithVersionOverride(v header.Version) Option {
	return func(c *Config) { c.VersionOverride = &v }
}

// WithTextCorrection sets the signed offset correction for the primary
// TEXT segment.
func WithTextCorrection(begin, end int64) Option {
	return func(c *Config) { c.Text = OffsetCorrection{Begin: begin, End: end} }
}

// WithDataCorrection sets the signed offset correction for the DATA
// segment (applied both to HEADER's own field and to $BEGINDATA/$ENDDATA).
func WithDataCorrection(begin, end int64) Option {
	return func(c *Config) { c.DataOffset = OffsetCorrection{Begin: begin, End: end} }
}

// WithAnalysisCorrection sets the signed offset correction for the
// ANALYSIS segment.
func WithAnalysisCorrection(begin, end int64) Option {
	return func(c *Config) { c.AnalysisOffset = OffsetCorrection{Begin: begin, End: end} }
}

// WithSTextCorrection sets the signed offset correction for the
// supplemental TEXT segment.
func WithSTextCorrection(begin, end int64) Option {
	return func(c *Config) { c.STextOffset = OffsetCorrection{Begin: begin, End: end} }
}

// NoDelimEscape disables the "dd" escape rule: every delimiter byte is a
// word boundary.
func NoDelimEscape() Option { return func(c *Config) { c.NoDelimEscape = true } }

// ForceASCIIDelim rejects delimiters outside 1..=126 even if they happen
// to be valid UTF-8 (e.g. multi-byte sequences).
func ForceASCIIDelim() Option { return func(c *Config) { c.ForceASCIIDelim = true } }

// EnforceFinalDelim promotes "TEXT does not end in the delimiter" from a
// warning to an error.
func EnforceFinalDelim() Option { return func(c *Config) { c.EnforceFinalDelim = true } }

// EnforceUnique promotes duplicate-keyword detection from a warning (the
// second occurrence is dropped) to an error.
func EnforceUnique() Option { return func(c *Config) { c.EnforceUnique = true } }

// EnforceEven promotes an odd TEXT word count from a warning (drop the
// trailing unpaired word) to an error.
func EnforceEven() Option { return func(c *Config) { c.EnforceEven = true } }

// EnforceNonempty rejects empty values produced in literal (non-escape)
// splitting mode.
func EnforceNonempty() Option { return func(c *Config) { c.EnforceNonempty = true } }

// ErrorOnInvalidUTF8 promotes an invalid-UTF-8 word from "drop the pair,
// warn" to a fatal error.
func ErrorOnInvalidUTF8() Option { return func(c *Config) { c.ErrorOnInvalidUTF8 = true } }

// EnforceKeywordASCII promotes non-ASCII keyword bytes from a warning to
// an error.
func EnforceKeywordASCII() Option { return func(c *Config) { c.EnforceKeywordASCII = true } }

// EnforceSTextOffsets requires $BEGINSTEXT/$ENDSTEXT to be present
// (meaningless for 3.2, where supplemental TEXT is optional).
func EnforceSTextOffsets() Option { return func(c *Config) { c.EnforceSTextOffsets = true } }

// RepairOffsetSpaces replaces leading spaces in offset keyword values with
// '0' before parsing them as integers.
func RepairOffsetSpaces() Option { return func(c *Config) { c.RepairOffsetSpaces = true } }

// WithDatePattern supplies an alternate Go reference-time layout for
// $DATE repair, tried before falling back to the canonical "02-Jan-2006".
func WithDatePattern(layout string) Option {
	return func(c *Config) { c.DatePattern = layout }
}

// DisallowDeprecated promotes diagnostics of kind diag.KindDeprecated to
// errors. No step of the parse records such diagnostics, so deprecated
// keywords and features are not detected and this option changes no result.
func DisallowDeprecated() Option { return func(c *Config) { c.DisallowDeprecated = true } }

// DisallowDeviant promotes unknown "$"-prefixed keys to an error.
func DisallowDeviant() Option { return func(c *Config) { c.DisallowDeviant = true } }

// DisallowNonstandard promotes unknown non-"$" keys to an error.
func DisallowNonstandard() Option { return func(c *Config) { c.DisallowNonstandard = true } }

// WarningsAreErrors promotes every warning, regardless of kind, to an
// error.
func WarningsAreErrors() Option { return func(c *Config) { c.WarningsAreErrors = true } }

// WithTimeChannel names the measurement short name identifying the time
// channel and which invariants to enforce on it.
func WithTimeChannel(shortname string, ensure, ensureTimestep, ensureLinear, ensureNoGain bool) Option {
	return func(c *Config) {
		c.Time = TimeConfig{
			Shortname:      shortname,
			Ensure:         ensure,
			EnsureTimestep: ensureTimestep,
			EnsureLinear:   ensureLinear,
			EnsureNoGain:   ensureNoGain,
		}
	}
}

// WithNonstandardMeasurementPattern supplies a "%n" template used to group
// nonstandard keywords with the measurement they belong to.
func WithNonstandardMeasurementPattern(pattern string) Option {
	return func(c *Config) { c.NonstandardMeasurementPattern = pattern }
}

// EnforceDataWidthDivisibility promotes "total event width does not evenly
// divide the DATA segment" from a warning (truncate to whole rows) to an
// error.
func EnforceDataWidthDivisibility() Option {
	return func(c *Config) { c.EnforceDataWidthDivisibility = true }
}

// EnforceMatchingTot promotes "$TOT disagrees with the computed row
// count" from a warning to an error.
func EnforceMatchingTot() Option { return func(c *Config) { c.EnforceMatchingTot = true } }

// CompileMeasurementPattern substitutes "%n" with the 1-based measurement
// index and compiles the result as a regexp. It is a no-op returning
// (nil, nil) if no pattern is configured.
func (c Config) CompileMeasurementPattern(index int) (*regexp.Regexp, error) {
	if c.NonstandardMeasurementPattern == "" {
		return nil, nil
	}
	expanded := expandPercentN(c.NonstandardMeasurementPattern, index)
	return regexp.Compile(expanded)
}

func expandPercentN(pattern string, index int) string {
	out := make([]byte, 0, len(pattern))
	idx := strconv.Itoa(index)
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' && i+1 < len(pattern) && pattern[i+1] == 'n' {
			out = append(out, idx...)
			i++
			continue
		}
		out = append(out, pattern[i])
	}
	return string(out)
}
