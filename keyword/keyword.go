// Package keyword implements the standard-keyword lookup and cross-key
// validation layer (C6): typed access to rawtext.Raw's string maps, keyword
// presence tracking, and the cross-field checks that only make sense once
// every keyword has been read ($TRIGGER reference, time-channel
// constraints, unique $PnN). The measurement count is taken from $PAR;
// $Pn keywords with an index above $PAR are not checked against it.
package keyword

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/rawtext"
	"github.com/nsbuitrago/gofcs/value"
)

// State tracks which StdKeys have been consumed by a metadata/measurement
// build, so that any standard key left Untouched at the end can be reported
// as KindDeviant (an unrecognized "$"-prefixed key for this version).
type State struct {
	Raw     rawtext.Raw
	Touched map[rawtext.StdKey]bool
}

// NewState wraps a Raw for keyword lookup.
func NewState(raw rawtext.Raw) *State {
	return &State{Raw: raw, Touched: make(map[rawtext.StdKey]bool)}
}

func (s *State) touch(key rawtext.StdKey) { s.Touched[key] = true }

// LookupOptional reads key, parses it with parse if present, and returns a
// Maybe; absence is not a diagnostic. A parse failure is reported at
// KindValue (Warning by default; Policy may promote it).
func LookupOptional[T any](s *State, key rawtext.StdKey, parse func(string) (T, error)) diag.Maybe[T] {
	s.touch(key)
	raw, ok := s.Raw.Standard[key]
	if !ok {
		return diag.EmptyMaybe[T]()
	}
	v, err := parse(raw)
	if err != nil {
		var m diag.Maybe[T]
		m.Push(diag.Diagnostic{
			Message: fmt.Sprintf("%s: %s", key, err.Error()),
			Level:   diag.Warning, Kind: diag.KindValue, Key: string(key), Value: raw,
		})
		return m
	}
	return diag.Of(diag.Some(v))
}

// LookupRequired reads key and fails (StructuralFatal) if it is absent or
// fails to parse.
func LookupRequired[T any](s *State, key rawtext.StdKey, parse func(string) (T, error)) (diag.Result[T], *diag.Failure) {
	m := LookupOptional(s, key, parse)
	v, ok := m.Data.Get()
	if !ok {
		reason := fmt.Errorf("required keyword %s is missing or invalid", key)
		if m.Deferred.HasErrors() || len(m.Deferred.Items()) > 0 {
			reason = fmt.Errorf("required keyword %s: %w", key, errorsJoinFirst(m.Deferred))
		}
		return diag.Result[T]{}, diag.NewFailure(reason).WithDeferred(m.Deferred)
	}
	return diag.Result[T]{Data: v, Deferred: m.Deferred}, nil
}

func errorsJoinFirst(b diag.Buf) error {
	items := b.Items()
	if len(items) == 0 {
		return fmt.Errorf("missing")
	}
	return fmt.Errorf("%s", items[0].Message)
}

// RawString is the identity parser, useful for keywords stored verbatim
// (e.g. $CYT, $SRC).
func RawString(s string) (string, error) { return s, nil }

// ParseInt parses a plain base-10 non-negative integer keyword (e.g. $PAR,
// $TOT, $NEXTDATA).
func ParseInt(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil && v < 0 {
		return 0, fmt.Errorf("%q is negative", s)
	}
	return v, err
}

// Untouched reports every StdKey present in the Raw TEXT that LookupOptional
// / LookupRequired never consumed, sorted for determinism; callers report
// these as KindDeviant diagnostics.
func (s *State) Untouched() []rawtext.StdKey {
	var out []rawtext.StdKey
	for k := range s.Raw.Standard {
		if !s.Touched[k] {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// MeasurementKey builds the $Pn<suffix> StdKey for a 1-based measurement
// index, e.g. MeasurementKey(3, "N") => "$P3N".
func MeasurementKey(index int, suffix string) rawtext.StdKey {
	return rawtext.StdKey(fmt.Sprintf("$P%d%s", index, suffix))
}

// NonstandardFor partitions NonStd keywords into the per-measurement
// buckets described by cfg's "%n" pattern; keys that don't match any
// measurement's compiled pattern are returned in "unassigned".
func NonstandardFor(raw rawtext.Raw, cfg config.Config, numMeasurements int) (byMeasurement map[int]map[rawtext.NonStdKey]string, unassigned map[rawtext.NonStdKey]string, err error) {
	byMeasurement = make(map[int]map[rawtext.NonStdKey]string, numMeasurements)
	unassigned = make(map[rawtext.NonStdKey]string)

	patterns := make([]*regexp.Regexp, numMeasurements+1)
	for i := 1; i <= numMeasurements; i++ {
		p, perr := cfg.CompileMeasurementPattern(i)
		if perr != nil {
			return nil, nil, fmt.Errorf("compiling nonstandard-measurement pattern for index %d: %w", i, perr)
		}
		patterns[i] = p
	}

	for _, key := range rawtext.SortedNonStdKeys(raw.NonStd) {
		val := raw.NonStd[key]
		assigned := false
		for i := 1; i <= numMeasurements; i++ {
			if patterns[i] == nil {
				continue
			}
			if patterns[i].MatchString(string(key)) {
				if byMeasurement[i] == nil {
					byMeasurement[i] = make(map[rawtext.NonStdKey]string)
				}
				byMeasurement[i][key] = val
				assigned = true
				break
			}
		}
		if !assigned {
			unassigned[key] = val
		}
	}
	return byMeasurement, unassigned, nil
}

// CheckCrossKey validates relationships that span more than one keyword:
// $TRIGGER must name an existing $PnN, $SPILLOVER/$UNSTAINEDCENTERS names
// must be a subset of declared shortnames, $PnN values must be unique, and
// (if configured) the named time channel must satisfy its invariants:
// $TIMESTEP present, $PnE = 0,0 (linear), and $PnG absent or 1.0.
func CheckCrossKey(shortnames []string, trigger diag.Option[value.Trigger], spill diag.Option[value.Spillover], unstained diag.Option[value.UnstainedCenters], timeScale diag.Option[value.Scale], timestep diag.Option[float64], timeGain diag.Option[float64], cfg config.Config) diag.Buf {
	var b diag.Buf

	names := make(map[string]bool, len(shortnames))
	seen := make(map[string]bool, len(shortnames))
	for _, n := range shortnames {
		if seen[n] {
			b.Pushf(diag.Error, diag.KindCrossKey, "duplicate measurement shortname %q", n)
		}
		seen[n] = true
		names[n] = true
	}

	if t, ok := trigger.Get(); ok {
		if !names[t.Name] {
			b.Pushf(diag.Warning, diag.KindCrossKey, "$TRIGGER references unknown measurement %q", t.Name)
		}
	}

	if sp, ok := spill.Get(); ok {
		for _, n := range sp.Names {
			if !names[n] {
				b.Pushf(diag.Error, diag.KindCrossKey, "$SPILLOVER references unknown measurement %q", n)
			}
		}
	}

	if uc, ok := unstained.Get(); ok {
		for _, n := range uc.Order {
			if !names[n] {
				b.Pushf(diag.Error, diag.KindCrossKey, "$UNSTAINEDCENTERS references unknown measurement %q", n)
			}
		}
	}

	if cfg.Time.Shortname != "" {
		if !names[cfg.Time.Shortname] {
			if cfg.Time.Ensure {
				b.Pushf(diag.Error, diag.KindCrossKey, "configured time channel %q is not a declared measurement", cfg.Time.Shortname)
			}
		} else {
			if cfg.Time.EnsureLinear {
				if sc, ok := timeScale.Get(); ok && sc.IsLog() {
					b.Pushf(diag.Error, diag.KindCrossKey, "time channel %q must use a linear $PnE scale", cfg.Time.Shortname)
				}
			}
			if cfg.Time.EnsureTimestep {
				if _, ok := timestep.Get(); !ok {
					b.Pushf(diag.Error, diag.KindCrossKey, "time channel %q requires $TIMESTEP to be set", cfg.Time.Shortname)
				}
			}
			if cfg.Time.EnsureNoGain {
				if g, ok := timeGain.Get(); ok && g != 1.0 {
					b.Pushf(diag.Error, diag.KindCrossKey, "time channel %q's $PnG must be absent or 1.0, got %v", cfg.Time.Shortname, g)
				}
			}
		}
	}

	return b
}

// SortedShortnames is a small helper for callers building the names slice
// CheckCrossKey expects, from a map keyed by measurement index.
func SortedShortnames(byIndex map[int]string) []string {
	indices := maps.Keys(byIndex)
	slices.Sort(indices)
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = byIndex[idx]
	}
	return out
}
