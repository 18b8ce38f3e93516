// Package gofcs decodes Flow Cytometry Standard (FCS) files: the fixed
// HEADER, the delimited TEXT keyword segment, and the binary or ASCII DATA
// segment, across versions 2.0 through 3.2. It is a facade over the
// segment/header/rawtext/diag/keyword/meta/databuild/data packages,
// grounded on _examples/angli232-fcs/decoder.go's Decoder/DecodeMetadata/
// Decode shape.
package gofcs

import (
	"fmt"
	"io"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/data"
	"github.com/nsbuitrago/gofcs/databuild"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/header"
	"github.com/nsbuitrago/gofcs/keyword"
	"github.com/nsbuitrago/gofcs/meta"
	"github.com/nsbuitrago/gofcs/rawtext"
)

// ParsedFile is the fully decoded result of Decoder.Decode.
type ParsedFile struct {
	Header   header.Header
	Raw      rawtext.Raw
	Metadata meta.Metadata
	Dataset  data.Dataset
}

// Decoder reads successive phases of one FCS file from a seekable source.
// Each phase method may be called independently; Decode runs all of them in
// sequence and accumulates diagnostics across the whole pipeline.
type Decoder struct {
	src    io.ReadSeeker
	cfg    config.Config
	policy diag.Policy
	trace  io.Writer
}

// New constructs a Decoder over src with the given configuration. The
// diag.Policy applied to every deferred diagnostic defaults to the
// permissive zero value (warnings stay warnings) unless cfg.WarningsAreErrors
// or one of the Disallow* options promotes specific kinds.
func New(src io.ReadSeeker, cfg config.Config) *Decoder {
	policy := diag.Policy{WarningsAreErrors: cfg.WarningsAreErrors, PromoteKinds: map[diag.Kind]bool{}}
	if cfg.DisallowDeprecated {
		policy.PromoteKinds[diag.KindDeprecated] = true
	}
	if cfg.DisallowDeviant {
		policy.PromoteKinds[diag.KindDeviant] = true
	}
	if cfg.DisallowNonstandard {
		policy.PromoteKinds[diag.KindNonstandard] = true
	}
	return &Decoder{src: src, cfg: cfg, policy: policy}
}

// SetTrace, if called with a non-nil writer, makes the Decoder emit a
// one-line phase-transition note ("decoding HEADER", "decoding TEXT", ...)
// to w as each phase of Decode begins. Intended for CLI -v output, not
// structured logging.
func (d *Decoder) SetTrace(w io.Writer) { d.trace = w }

func (d *Decoder) tracef(format string, args ...any) {
	if d.trace != nil {
		fmt.Fprintf(d.trace, format+"\n", args...)
	}
}

func headerConfig(cfg config.Config) header.Config {
	return header.Config{
		VersionOverride: optVersion(cfg.VersionOverride),
		Text:            cfg.Text,
		Data:            cfg.DataOffset,
		Analysis:        cfg.AnalysisOffset,
	}
}

func optVersion(v *header.Version) diag.Option[header.Version] {
	if v == nil {
		return diag.None[header.Version]()
	}
	return diag.Some(*v)
}

// DecodeHeader reads and validates the 58-byte HEADER, seeking src back to
// its start first.
func (d *Decoder) DecodeHeader() (diag.Result[header.Header], *diag.Failure) {
	d.tracef("decoding HEADER")
	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return diag.Result[header.Header]{}, diag.NewFailure(fmt.Errorf("seeking to start of file: %w", err))
	}
	return header.Read(d.src, headerConfig(d.cfg))
}

// DecodeText reads HEADER then the raw TEXT keyword segment (primary plus
// any supplemental TEXT), returning the classified key/value maps.
func (d *Decoder) DecodeText() (diag.Result[rawtext.Raw], *diag.Failure) {
	hdrRes, fail := d.DecodeHeader()
	if fail != nil {
		return diag.Result[rawtext.Raw]{}, fail
	}
	d.tracef("decoding TEXT")
	res, fail := rawtext.Read(d.src, hdrRes.Data, d.cfg)
	if fail != nil {
		return diag.Result[rawtext.Raw]{}, fail.WithDeferred(hdrRes.Deferred)
	}
	merged := diag.Concat(hdrRes.Deferred, res.Deferred)
	return diag.Result[rawtext.Raw]{Data: res.Data, Deferred: merged}, nil
}

// metadataFrom is the shared tail of DecodeMetadata and Decode: given an
// already-read Header and Raw, build typed Metadata.
func (d *Decoder) metadataFrom(hdr header.Header, raw rawtext.Raw) (diag.Result[meta.Metadata], *diag.Failure) {
	d.tracef("decoding metadata")
	state := keyword.NewState(raw)
	return meta.Build(state, hdr.Version, raw.DataSeg, d.cfg)
}

// DecodeMetadata reads HEADER and TEXT, then builds the typed, version-aware
// Metadata (including every measurement's parameters). It does not touch
// the DATA segment.
func (d *Decoder) DecodeMetadata() (diag.Result[meta.Metadata], *diag.Failure) {
	textRes, fail := d.DecodeText()
	if fail != nil {
		return diag.Result[meta.Metadata]{}, fail
	}
	hdrRes, fail := d.DecodeHeader()
	if fail != nil {
		return diag.Result[meta.Metadata]{}, fail.WithDeferred(textRes.Deferred)
	}
	mRes, fail := d.metadataFrom(hdrRes.Data, textRes.Data)
	if fail != nil {
		return diag.Result[meta.Metadata]{}, fail.WithDeferred(diag.Concat(hdrRes.Deferred, textRes.Deferred))
	}
	merged := diag.Concat(hdrRes.Deferred, textRes.Deferred, mRes.Deferred)
	return diag.Result[meta.Metadata]{Data: mRes.Data, Deferred: merged}, nil
}

// Decode runs the full pipeline: HEADER, TEXT, Metadata, and the DATA segment
// itself, whatever $MODE declares.
func (d *Decoder) Decode() (diag.Result[ParsedFile], *diag.Failure) {
	hdrRes, fail := d.DecodeHeader()
	if fail != nil {
		return diag.Result[ParsedFile]{}, fail
	}
	textRes, fail := func() (diag.Result[rawtext.Raw], *diag.Failure) {
		d.tracef("decoding TEXT")
		res, fail := rawtext.Read(d.src, hdrRes.Data, d.cfg)
		return res, fail
	}()
	if fail != nil {
		return diag.Result[ParsedFile]{}, fail.WithDeferred(hdrRes.Deferred)
	}

	mRes, fail := d.metadataFrom(hdrRes.Data, textRes.Data)
	if fail != nil {
		return diag.Result[ParsedFile]{}, fail.WithDeferred(diag.Concat(hdrRes.Deferred, textRes.Deferred))
	}

	planRes, fail := databuild.Build(mRes.Data, d.cfg)
	if fail != nil {
		return diag.Result[ParsedFile]{}, fail.WithDeferred(diag.Concat(hdrRes.Deferred, textRes.Deferred, mRes.Deferred))
	}

	d.tracef("decoding DATA")
	if _, err := d.src.Seek(int64(planRes.Data.DataSegment.Begin), io.SeekStart); err != nil && !planRes.Data.DataSegment.IsUnset() {
		return diag.Result[ParsedFile]{}, diag.NewFailure(fmt.Errorf("seeking to DATA segment: %w", err)).
			WithDeferred(diag.Concat(hdrRes.Deferred, textRes.Deferred, mRes.Deferred, planRes.Deferred))
	}
	dataRes, fail := data.Read(d.src, planRes.Data)
	if fail != nil {
		return diag.Result[ParsedFile]{}, fail.WithDeferred(diag.Concat(hdrRes.Deferred, textRes.Deferred, mRes.Deferred, planRes.Deferred))
	}

	merged := diag.Concat(hdrRes.Deferred, textRes.Deferred, mRes.Deferred, planRes.Deferred, dataRes.Deferred)
	pruned := d.policy.Prune(merged)
	if pruned.HasErrors() {
		return diag.Result[ParsedFile]{}, diag.NewFailure(fmt.Errorf("parse completed with policy-promoted errors")).WithDeferred(pruned)
	}

	pf := ParsedFile{Header: hdrRes.Data, Raw: textRes.Data, Metadata: mRes.Data, Dataset: dataRes.Data}
	return diag.Result[ParsedFile]{Data: pf, Deferred: pruned}, nil
}
