// Package diag implements the deferred-diagnostics accumulator used
// throughout an FCS parse: a small applicative over a writer-of-diagnostics,
// translated from the source-observed PureSuccess/PureErrorBuf/Failure
// family (see DESIGN.md) into Go generics.
package diag

import "fmt"

// Level distinguishes a recoverable diagnostic from a fatal one.
type Level int

const (
	Warning Level = iota
	Error
)

func (l Level) String() string {
	if l == Error {
		return "error"
	}
	return "warning"
}

// Kind classifies a diagnostic per the taxonomy in spec.md §7. It is
// orthogonal to Level: a Kind has a default Level but policy (see Policy)
// may promote it.
type Kind int

const (
	KindStructural Kind = iota
	KindRequiredMissing
	KindValue
	KindCrossKey
	KindDeprecated
	KindDeviant
	KindNonstandard
	KindGeneral // anything not in a named category, e.g. HEADER/TEXT disagreement
)

// Diagnostic is a single deferred message, optionally naming the key/value
// that produced it.
type Diagnostic struct {
	Message string
	Level   Level
	Kind    Kind
	Key     string // empty if not keyword-specific
	Value   string // empty if not applicable
}

func (d Diagnostic) String() string {
	if d.Key != "" {
		return fmt.Sprintf("[%s] %s (%s=%q)", d.Level, d.Message, d.Key, d.Value)
	}
	return fmt.Sprintf("[%s] %s", d.Level, d.Message)
}

// Buf is an ordered collection of deferred diagnostics.
type Buf struct {
	items []Diagnostic
}

// Push appends a single diagnostic.
func (b *Buf) Push(d Diagnostic) {
	b.items = append(b.items, d)
}

// Pushf appends a message built with fmt.Sprintf.
func (b *Buf) Pushf(level Level, kind Kind, format string, args ...any) {
	b.Push(Diagnostic{Message: fmt.Sprintf(format, args...), Level: level, Kind: kind})
}

// PushKeyf appends a keyword-scoped message.
func (b *Buf) PushKeyf(level Level, kind Kind, key, value, format string, args ...any) {
	b.Push(Diagnostic{Message: fmt.Sprintf(format, args...), Level: level, Kind: kind, Key: key, Value: value})
}

// Extend appends all diagnostics from other, in order.
func (b *Buf) Extend(other Buf) {
	b.items = append(b.items, other.items...)
}

// Items returns the diagnostics in the order they were recorded.
func (b Buf) Items() []Diagnostic {
	return b.items
}

// HasErrors reports whether any diagnostic at Level Error is present.
func (b Buf) HasErrors() bool {
	for _, d := range b.items {
		if d.Level == Error {
			return true
		}
	}
	return false
}

// HasKind reports whether any diagnostic of the given Kind is present.
func (b Buf) HasKind(k Kind) bool {
	for _, d := range b.items {
		if d.Kind == k {
			return true
		}
	}
	return false
}

// Split partitions items into errors and warnings, preserving order.
func (b Buf) Split() (errs, warns []Diagnostic) {
	for _, d := range b.items {
		if d.Level == Error {
			errs = append(errs, d)
		} else {
			warns = append(warns, d)
		}
	}
	return
}

// Concat returns a new Buf with the contents of all given buffers, in order.
func Concat(bufs ...Buf) Buf {
	var out Buf
	for _, b := range bufs {
		out.Extend(b)
	}
	return out
}

// Result is the outcome of a successful computation that may have deferred
// diagnostics attached (PureSuccess in the source).
type Result[T any] struct {
	Data     T
	Deferred Buf
}

// Of wraps a bare value with an empty diagnostic buffer.
func Of[T any](v T) Result[T] {
	return Result[T]{Data: v}
}

// Push appends a diagnostic to r's deferred buffer.
func (r *Result[T]) Push(d Diagnostic) {
	r.Deferred.Push(d)
}

// Maybe is a Result over an Option: data may be legitimately absent without
// that being an error (distinct from Failure, which represents "can't
// continue").
type Maybe[T any] = Result[Option[T]]

// Option is an explicit present/absent box, used throughout C5/C6/C7 to
// distinguish "optional keyword absent" from "required keyword missing".
type Option[T any] struct {
	Value   T
	Present bool
}

// Some constructs a present Option.
func Some[T any](v T) Option[T] {
	return Option[T]{Value: v, Present: true}
}

// None constructs an absent Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it was present, mirroring the
// comma-ok idiom.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.Present
}

// OrElse returns the contained value, or def if absent.
func (o Option[T]) OrElse(def T) T {
	if o.Present {
		return o.Value
	}
	return def
}

// EmptyMaybe constructs a Maybe[T] with no data and no diagnostics.
func EmptyMaybe[T any]() Maybe[T] {
	return Of(None[T]())
}

// Failure is the outcome of a computation that could not produce a value:
// a single fatal reason plus whatever diagnostics had already been
// deferred before the failure occurred.
type Failure struct {
	Reason   error
	Deferred Buf
}

func (f *Failure) Error() string {
	return f.Reason.Error()
}

// NewFailure wraps a reason with an empty deferred buffer.
func NewFailure(reason error) *Failure {
	return &Failure{Reason: reason}
}

// WithDeferred attaches deferred diagnostics collected before the failure.
func (f *Failure) WithDeferred(b Buf) *Failure {
	f.Deferred.Extend(b)
	return f
}

// Map transforms the data of a Result, carrying deferred diagnostics
// forward unchanged.
func Map[A, B any](r Result[A], f func(A) B) Result[B] {
	return Result[B]{Data: f(r.Data), Deferred: r.Deferred}
}

// AndThen sequences two diagnostic-carrying computations, merging deferred
// diagnostics from both (source first).
func AndThen[A, B any](r Result[A], f func(A) Result[B]) Result[B] {
	next := f(r.Data)
	merged := Buf{}
	merged.Extend(r.Deferred)
	merged.Extend(next.Deferred)
	return Result[B]{Data: next.Data, Deferred: merged}
}

// TryMap sequences a diagnostic-carrying computation with one that may
// fail outright, merging deferred diagnostics into whichever outcome
// results.
func TryMap[A, B any](r Result[A], f func(A) (Result[B], *Failure)) (Result[B], *Failure) {
	next, err := f(r.Data)
	if err != nil {
		return Result[B]{}, err.WithDeferred(r.Deferred)
	}
	merged := Buf{}
	merged.Extend(r.Deferred)
	merged.Extend(next.Deferred)
	return Result[B]{Data: next.Data, Deferred: merged}, nil
}

// Combine merges two independent Results with a combiner function,
// concatenating their deferred diagnostics (a first, then b).
func Combine[A, B, C any](a Result[A], b Result[B], f func(A, B) C) Result[C] {
	return Result[C]{Data: f(a.Data, b.Data), Deferred: Concat(a.Deferred, b.Deferred)}
}

// Combine3 merges three independent Results.
func Combine3[A, B, C, D any](a Result[A], b Result[B], c Result[C], f func(A, B, C) D) Result[D] {
	return Result[D]{Data: f(a.Data, b.Data, c.Data), Deferred: Concat(a.Deferred, b.Deferred, c.Deferred)}
}

// Combine4 merges four independent Results.
func Combine4[A, B, C, D, E any](a Result[A], b Result[B], c Result[C], d Result[D], f func(A, B, C, D) E) Result[E] {
	return Result[E]{Data: f(a.Data, b.Data, c.Data, d.Data), Deferred: Concat(a.Deferred, b.Deferred, c.Deferred, d.Deferred)}
}

// Sequence merges a slice of independent Results into one Result of a
// slice, concatenating all deferred diagnostics in order.
func Sequence[T any](rs []Result[T]) Result[[]T] {
	data := make([]T, len(rs))
	bufs := make([]Buf, len(rs))
	for i, r := range rs {
		data[i] = r.Data
		bufs[i] = r.Deferred
	}
	return Result[[]T]{Data: data, Deferred: Concat(bufs...)}
}

// IntoResult converts a Maybe into a ("Success", *Failure) pair: if data is
// present, succeeds; otherwise fails with reason, carrying forward whatever
// was already deferred.
func IntoResult[T any](m Maybe[T], reason error) (Result[T], *Failure) {
	if v, ok := m.Data.Get(); ok {
		return Result[T]{Data: v, Deferred: m.Deferred}, nil
	}
	return Result[T]{}, NewFailure(reason).WithDeferred(m.Deferred)
}

// Policy controls how a finished Buf of diagnostics is pruned and/or
// promoted before a parse is declared a Success or a Failure.
type Policy struct {
	// WarningsAreErrors promotes every Warning-level diagnostic to Error.
	WarningsAreErrors bool
	// PromoteKinds lists diagnostic Kinds that must be treated as Error
	// even if individually recorded at Warning level (e.g. Deviant,
	// Nonstandard, Deprecated per the disallow_* configuration options).
	PromoteKinds map[Kind]bool
	// MinLevel drops diagnostics strictly below this level. Defaults to
	// Warning (keep everything) when left as the zero value.
	MinLevel Level
}

// Prune applies the policy to b, returning a new Buf with dropped and
// promoted diagnostics resolved.
func (p Policy) Prune(b Buf) Buf {
	var out Buf
	for _, d := range b.items {
		if d.Level < p.MinLevel {
			continue
		}
		if p.WarningsAreErrors || p.PromoteKinds[d.Kind] {
			d.Level = Error
		}
		out.Push(d)
	}
	return out
}
