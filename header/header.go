// Package header decodes the fixed 58-byte HEADER record at the start of
// every FCS file into a Version and the three top-level Segments (TEXT,
// DATA, ANALYSIS).
package header

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/segment"
)

// Version is the FCS specification revision a file declares in its HEADER.
type Version int

const (
	FCS2_0 Version = iota
	FCS3_0
	FCS3_1
	FCS3_2
)

func (v Version) String() string {
	switch v {
	case FCS2_0:
		return "FCS2.0"
	case FCS3_0:
		return "FCS3.0"
	case FCS3_1:
		return "FCS3.1"
	case FCS3_2:
		return "FCS3.2"
	default:
		return "unknown version"
	}
}

// ParseVersion parses one of the four literal version tokens.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "FCS2.0":
		return FCS2_0, nil
	case "FCS3.0":
		return FCS3_0, nil
	case "FCS3.1":
		return FCS3_1, nil
	case "FCS3.2":
		return FCS3_2, nil
	default:
		return 0, fmt.Errorf("unrecognized FCS version %q", s)
	}
}

const length = 58

var pattern = regexp.MustCompile(`^(.{6})    (.{8})(.{8})(.{8})(.{8})(.{8})(.{8})$`)

// Header is the decoded HEADER record.
type Header struct {
	Version  Version
	Text     segment.Segment
	Data     segment.Segment
	Analysis segment.Segment
}

// OffsetCorrections carries the signed begin/end deltas applied to a single
// segment's raw HEADER offsets before validation (config.OffsetCorrection).
type OffsetCorrections struct {
	Begin int64
	End   int64
}

// Config controls header.Read.
type Config struct {
	// VersionOverride forces a specific version regardless of the HEADER
	// token, when Present.
	VersionOverride diag.Option[Version]
	Text            OffsetCorrections
	Data            OffsetCorrections
	Analysis        OffsetCorrections
}

func parseOffset(raw string, allowBlank bool) (uint64, bool) {
	trimmed := strings.TrimSpace(raw)
	if allowBlank && trimmed == "" {
		return 0, true
	}
	// Leading spaces followed by digits; trailing spaces are not part of
	// the standard but some writers pad oddly, so TrimSpace covers both.
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseBounds(beginRaw, endRaw string, allowBlank bool, id segment.ID, corr OffsetCorrections) (diag.Maybe[segment.Segment], error) {
	begin, okB := parseOffset(beginRaw, allowBlank)
	end, okE := parseOffset(endRaw, allowBlank)

	var m diag.Maybe[segment.Segment]
	if !okB {
		m.Push(diag.Diagnostic{
			Message: fmt.Sprintf("could not parse begin offset for %s segment; value was %q", id, beginRaw),
			Level:   diag.Error, Kind: diag.KindStructural,
		})
	}
	if !okE {
		m.Push(diag.Diagnostic{
			Message: fmt.Sprintf("could not parse end offset for %s segment; value was %q", id, endRaw),
			Level:   diag.Error, Kind: diag.KindStructural,
		})
	}
	if !okB || !okE {
		return m, nil
	}

	if allowBlank && begin == 0 && end == 0 && strings.TrimSpace(beginRaw) == "" && strings.TrimSpace(endRaw) == "" {
		return diag.Of(diag.Some(segment.Unset(id))), nil
	}

	seg, err := segment.New(begin, end, corr.Begin, corr.End, id)
	if err != nil {
		m.Push(diag.Diagnostic{Message: err.Error(), Level: diag.Error, Kind: diag.KindStructural})
		return m, nil
	}
	return diag.Of(diag.Some(seg)), nil
}

// Read decodes exactly 58 bytes from r and returns a Header.
//
// A malformed HEADER (bad version token, non-matching fixed layout, or
// invalid offsets) is a StructuralFatal condition per spec.md §7 and is
// returned as a *diag.Failure; any offset-specific diagnostics produced
// along the way are attached to that failure's Deferred buffer.
func Read(r io.Reader, cfg Config) (diag.Result[Header], *diag.Failure) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("reading HEADER: %w", err))
	}

	m := pattern.FindSubmatch(buf)
	if m == nil {
		return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("HEADER does not match the fixed 58-byte layout"))
	}

	versionTok, t0, t1, d0, d1, a0, a1 := string(m[1]), string(m[2]), string(m[3]), string(m[4]), string(m[5]), string(m[6]), string(m[7])

	var deferred diag.Buf
	version, ok := cfg.VersionOverride.Get()
	if !ok {
		v, err := ParseVersion(versionTok)
		if err != nil {
			return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("HEADER: %w", err))
		}
		version = v
	}

	textM, err := parseBounds(t0, t1, false, segment.PrimaryText, cfg.Text)
	if err != nil {
		return diag.Result[Header]{}, diag.NewFailure(err)
	}
	deferred.Extend(textM.Deferred)
	textSeg, ok := textM.Data.Get()
	if !ok {
		return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("could not determine TEXT segment bounds")).WithDeferred(deferred)
	}
	if textSeg.IsUnset() {
		return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("TEXT segment must not be unset")).WithDeferred(deferred)
	}

	dataM, err := parseBounds(d0, d1, version >= FCS3_0, segment.Data, cfg.Data)
	if err != nil {
		return diag.Result[Header]{}, diag.NewFailure(err)
	}
	deferred.Extend(dataM.Deferred)
	dataSeg, ok := dataM.Data.Get()
	if !ok {
		return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("could not determine DATA segment bounds")).WithDeferred(deferred)
	}

	anaM, err := parseBounds(a0, a1, true, segment.Analysis, cfg.Analysis)
	if err != nil {
		return diag.Result[Header]{}, diag.NewFailure(err)
	}
	deferred.Extend(anaM.Deferred)
	anaSeg, ok := anaM.Data.Get()
	if !ok {
		return diag.Result[Header]{}, diag.NewFailure(fmt.Errorf("could not determine ANALYSIS segment bounds")).WithDeferred(deferred)
	}

	h := Header{Version: version, Text: textSeg, Data: dataSeg, Analysis: anaSeg}
	return diag.Result[Header]{Data: h, Deferred: deferred}, nil
}
