// Package rawtext implements delimiter discovery, escape-aware splitting,
// key/value extraction, and offset discovery for the FCS TEXT segment
// (spec.md §4.3, component C3).
package rawtext

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/header"
	"github.com/nsbuitrago/gofcs/segment"
)

// StdKey is a keyword beginning with '$', stored uppercased (the '$' is
// retained so StdKeys and NonStdKeys can never collide).
type StdKey string

// NonStdKey is a keyword not beginning with '$', case-preserving.
type NonStdKey string

// Pair is one decoded key/value word pair, with the byte offsets (relative
// to the start of the segment it was read from) of the raw key and value
// words, for diagnostics that want to cite "word at byte N" per
// SPEC_FULL.md's supplemented detail.
type Pair struct {
	Key         string
	Value       string
	KeyOffset   int
	ValueOffset int
}

// Raw is the result of splitting and classifying one TEXT segment (primary
// plus any merged supplemental TEXT).
type Raw struct {
	Delimiter byte
	Standard  map[StdKey]string
	NonStd    map[NonStdKey]string
	DataSeg   segment.Segment
	AnaSeg    diag.Option[segment.Segment]
}

// classify uppercases and tags a raw key as Std or NonStd.
func classify(key string) (std StdKey, nonstd NonStdKey, isStd bool) {
	if strings.HasPrefix(key, "$") {
		return StdKey(strings.ToUpper(key)), "", true
	}
	return "", NonStdKey(key), false
}

// splitWords performs the delimiter-run analysis described in spec.md
// §4.3.2 and returns the list of words (with their escapes already
// resolved) plus diagnostics. text excludes the leading delimiter byte.
func splitWords(text []byte, delim byte, cfg config.Config) ([]Pair_word, diag.Buf) {
	var deferred diag.Buf

	if cfg.NoDelimEscape {
		return splitLiteral(text, delim, cfg, &deferred), deferred
	}
	return splitEscaped(text, delim, cfg, &deferred), deferred
}

// Pair_word is an intermediate (offset, raw bytes) word, before key/value
// pairing.
type Pair_word struct {
	Bytes  []byte
	Offset int
}

func splitLiteral(text []byte, delim byte, cfg config.Config, deferred *diag.Buf) []Pair_word {
	var words []Pair_word
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == delim {
			word := text[start:i]
			if len(word) == 0 && cfg.EnforceNonempty {
				deferred.Pushf(diag.Error, diag.KindGeneral, "empty word at byte %d in literal-delimiter mode", start)
			} else if len(word) == 0 {
				deferred.Pushf(diag.Warning, diag.KindGeneral, "empty word at byte %d in literal-delimiter mode", start)
			}
			words = append(words, Pair_word{Bytes: word, Offset: start})
			start = i + 1
		}
	}
	// In literal mode a trailing delimiter produces a final empty word;
	// drop it, matching "last byte must be the delimiter" expectations.
	if len(words) > 0 && len(words[len(words)-1].Bytes) == 0 && len(text) > 0 && text[len(text)-1] == delim {
		words = words[:len(words)-1]
	}
	return words
}

// splitEscaped implements the escape-mode run analysis: a run of k
// consecutive delimiters represents floor(k/2) literal delimiters embedded
// in the surrounding word, plus one real boundary iff k is odd.
func splitEscaped(text []byte, delim byte, cfg config.Config, deferred *diag.Buf) []Pair_word {
	type run struct {
		start, len int
	}
	var runs []run
	for i := 0; i < len(text); {
		if text[i] != delim {
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == delim {
			j++
		}
		runs = append(runs, run{start: i, len: j - i})
		i = j
	}

	// Boundaries are the positions of the "real" (odd-run) delimiter
	// within each run; use the last delimiter of an odd run as the
	// boundary point so preceding escaped pairs stay with the left word.
	var boundaries []int
	for _, r := range runs {
		atStart := r.start == 0
		atEnd := r.start+r.len == len(text)
		if r.len%2 == 1 {
			if r.len > 1 && (atStart || atEnd) {
				deferred.Pushf(diag.Error, diag.KindGeneral,
					"odd-length delimiter run of %d at byte %d is ambiguous at word boundary", r.len, r.start)
			}
			boundaries = append(boundaries, r.start+r.len-1)
		}
	}

	var words []Pair_word
	prev := 0
	for _, b := range boundaries {
		raw := text[prev:b]
		words = append(words, Pair_word{Bytes: unescape(raw, delim), Offset: prev})
		prev = b + 1
	}
	if prev < len(text) {
		// Trailing bytes after the last boundary with no closing
		// delimiter: only legal if empty (the caller checks
		// EnforceFinalDelim); keep as a word so that check can fire.
		words = append(words, Pair_word{Bytes: unescape(text[prev:], delim), Offset: prev})
	}
	return words
}

// unescape collapses "dd" runs within a word into a single literal
// delimiter byte, once run-length boundary analysis has already decided
// this byte range is a single word.
func unescape(b []byte, delim byte) []byte {
	if !containsByte(b, delim) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == delim {
			i++ // skip the escaped duplicate
		}
	}
	return out
}

func containsByte(b []byte, c byte) bool {
	for _, x := range b {
		if x == c {
			return true
		}
	}
	return false
}

// Split performs delimiter discovery and word splitting on a raw TEXT
// segment's bytes (the full segment, delimiter byte included), returning
// ordered key/value Pairs and deferred diagnostics. It does not classify
// keys or merge supplemental TEXT; see Read for the full pipeline.
func Split(segBytes []byte, cfg config.Config) (diag.Result[[]Pair], byte, *diag.Failure) {
	var deferred diag.Buf

	if len(segBytes) == 0 {
		return diag.Result[[]Pair]{}, 0, diag.NewFailure(fmt.Errorf("TEXT segment is empty"))
	}

	delim := segBytes[0]
	if delim < 1 || delim > 126 {
		msg := fmt.Sprintf("delimiter byte 0x%02x is outside the 1..=126 range", delim)
		if cfg.ForceASCIIDelim {
			return diag.Result[[]Pair]{}, 0, diag.NewFailure(fmt.Errorf("%s", msg))
		}
		deferred.Pushf(diag.Warning, diag.KindGeneral, "%s", msg)
	} else if !utf8.ValidString(string(delim)) {
		deferred.Pushf(diag.Warning, diag.KindGeneral, "delimiter is not valid UTF-8")
	}

	body := segBytes[1:]
	if cfg.EnforceFinalDelim {
		if len(body) == 0 || body[len(body)-1] != delim {
			deferred.Pushf(diag.Error, diag.KindGeneral, "TEXT segment does not end with the delimiter")
		}
	} else if len(body) == 0 || body[len(body)-1] != delim {
		deferred.Pushf(diag.Warning, diag.KindGeneral, "TEXT segment does not end with the delimiter")
	}
	// Trim exactly one trailing delimiter so escape-run analysis doesn't
	// treat it as an empty final word.
	if len(body) > 0 && body[len(body)-1] == delim {
		body = body[:len(body)-1]
	}

	words, wordDiags := splitWords(body, delim, cfg)
	deferred.Extend(wordDiags)

	if len(words)%2 != 0 {
		if cfg.EnforceEven {
			deferred.Pushf(diag.Error, diag.KindGeneral, "TEXT segment has an odd number of words (%d)", len(words))
		} else {
			deferred.Pushf(diag.Warning, diag.KindGeneral, "TEXT segment has an odd number of words (%d); dropping trailing word", len(words))
			words = words[:len(words)-1]
		}
	}

	pairs := make([]Pair, 0, len(words)/2)
	for i := 0; i+1 < len(words); i += 2 {
		keyWord, valWord := words[i], words[i+1]

		if !utf8.Valid(keyWord.Bytes) || !utf8.Valid(valWord.Bytes) {
			if cfg.ErrorOnInvalidUTF8 {
				deferred.Pushf(diag.Error, diag.KindGeneral, "invalid UTF-8 in word pair at byte %d", keyWord.Offset)
			} else {
				deferred.Pushf(diag.Warning, diag.KindGeneral, "invalid UTF-8 in word pair at byte %d; dropped", keyWord.Offset)
			}
			continue
		}

		key := string(keyWord.Bytes)
		if !isASCII(key) {
			if cfg.EnforceKeywordASCII {
				deferred.Pushf(diag.Error, diag.KindGeneral, "non-ASCII keyword %q at byte %d", key, keyWord.Offset)
			} else {
				deferred.Pushf(diag.Warning, diag.KindGeneral, "non-ASCII keyword %q at byte %d", key, keyWord.Offset)
			}
		}

		pairs = append(pairs, Pair{
			Key: key, Value: string(valWord.Bytes),
			KeyOffset: keyWord.Offset, ValueOffset: valWord.Offset,
		})
	}

	return diag.Result[[]Pair]{Data: pairs, Deferred: deferred}, delim, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// merge inserts pairs into the standard/nonstandard maps, applying
// duplicate-key policy.
func merge(pairs []Pair, std map[StdKey]string, nonstd map[NonStdKey]string, cfg config.Config, deferred *diag.Buf) {
	for _, p := range pairs {
		skey, nskey, isStd := classify(p.Key)
		if isStd {
			if _, dup := std[skey]; dup {
				reportDuplicate(string(skey), cfg, deferred)
				continue
			}
			std[skey] = p.Value
			continue
		}
		if _, dup := nonstd[nskey]; dup {
			reportDuplicate(string(nskey), cfg, deferred)
			continue
		}
		nonstd[nskey] = p.Value
	}
}

func reportDuplicate(key string, cfg config.Config, deferred *diag.Buf) {
	if cfg.EnforceUnique {
		deferred.PushKeyf(diag.Error, diag.KindGeneral, key, "", "duplicate keyword %q; dropping second occurrence", key)
	} else {
		deferred.PushKeyf(diag.Warning, diag.KindGeneral, key, "", "duplicate keyword %q; dropping second occurrence", key)
	}
}

// offsetPair names the two StdKeys bounding a segment, e.g. $BEGINDATA/$ENDDATA.
type offsetPair struct {
	begin, end StdKey
	id         segment.ID
}

var offsetPairs = []offsetPair{
	{begin: "$BEGINDATA", end: "$ENDDATA", id: segment.Data},
	{begin: "$BEGINSTEXT", end: "$ENDSTEXT", id: segment.SupplementalText},
	{begin: "$BEGINANALYSIS", end: "$ENDANALYSIS", id: segment.Analysis},
}

func repairSpaces(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i == 0 {
		return s
	}
	return strings.Repeat("0", i) + s[i:]
}

// discoverOffset looks up a $BEGINx/$ENDx pair in std, applying
// repair-spaces and corrections, and returns the resulting Segment if both
// keys are present and parse.
func discoverOffset(std map[StdKey]string, pair offsetPair, corr config.OffsetCorrection, cfg config.Config, deferred *diag.Buf) (segment.Segment, bool) {
	beginRaw, okB := std[pair.begin]
	endRaw, okE := std[pair.end]
	if !okB || !okE {
		return segment.Segment{}, false
	}
	if cfg.RepairOffsetSpaces {
		beginRaw = repairSpaces(beginRaw)
		endRaw = repairSpaces(endRaw)
	}
	begin, errB := strconv.ParseUint(strings.TrimSpace(beginRaw), 10, 64)
	end, errE := strconv.ParseUint(strings.TrimSpace(endRaw), 10, 64)
	if errB != nil || errE != nil {
		deferred.PushKeyf(diag.Warning, diag.KindValue, string(pair.begin), beginRaw,
			"could not parse %s/%s as integers", pair.begin, pair.end)
		return segment.Segment{}, false
	}
	if begin == 0 && end == 0 {
		return segment.Unset(pair.id), true
	}
	seg, err := segment.New(begin, end, corr.Begin, corr.End, pair.id)
	if err != nil {
		deferred.PushKeyf(diag.Warning, diag.KindValue, string(pair.begin), beginRaw, "%s", err.Error())
		return segment.Segment{}, false
	}
	return seg, true
}

// reconcile implements spec.md §4.3.4's HEADER-vs-TEXT preference rule for
// a single segment: if headerSeg is unset, prefer textSeg (even if it too
// is unset/absent); if both are present and disagree, prefer headerSeg and
// warn; if headerSeg is unset and textSeg is absent for DATA in >=3.0,
// that is an error by omission (the caller checks for that).
func reconcile(headerSeg segment.Segment, textSeg segment.Segment, textPresent bool, deferred *diag.Buf) segment.Segment {
	if headerSeg.IsUnset() {
		if textPresent {
			return textSeg.WithID(headerSeg.ID)
		}
		return headerSeg
	}
	if textPresent && (textSeg.Begin != headerSeg.Begin || textSeg.End != headerSeg.End) {
		deferred.Pushf(diag.Warning, diag.KindGeneral,
			"HEADER and TEXT disagree on %s segment bounds (HEADER=[%d,%d], TEXT=[%d,%d]); using HEADER",
			headerSeg.ID, headerSeg.Begin, headerSeg.End, textSeg.Begin, textSeg.End)
	}
	return headerSeg
}

// Read performs the full C3 pipeline: split the primary TEXT segment,
// discover offsets, read and merge supplemental TEXT if present, and
// return the classified Raw TEXT along with deferred diagnostics. hdr is
// the already-decoded HEADER; src must support seeking to the
// supplemental TEXT segment if one is declared.
func Read(src io.ReadSeeker, hdr header.Header, cfg config.Config) (diag.Result[Raw], *diag.Failure) {
	var deferred diag.Buf

	if _, err := src.Seek(int64(hdr.Text.Begin), io.SeekStart); err != nil {
		return diag.Result[Raw]{}, diag.NewFailure(fmt.Errorf("seeking to TEXT segment: %w", err))
	}
	primary := make([]byte, hdr.Text.NumBytes())
	if _, err := io.ReadFull(src, primary); err != nil {
		return diag.Result[Raw]{}, diag.NewFailure(fmt.Errorf("reading TEXT segment: %w", err))
	}

	splitRes, delim, failure := Split(primary, cfg)
	if failure != nil {
		return diag.Result[Raw]{}, failure
	}
	deferred.Extend(splitRes.Deferred)

	std := make(map[StdKey]string)
	nonstd := make(map[NonStdKey]string)
	merge(splitRes.Data, std, nonstd, cfg, &deferred)

	if cfg.DatePattern != "" {
		repairDate(std, cfg.DatePattern, &deferred)
	}

	// Supplemental TEXT (versions >= 3.0; optional for 3.2, absent for 2.0).
	if hdr.Version >= header.FCS3_0 {
		stextSeg, ok := discoverOffset(std, offsetPairs[1], cfg.STextOffset, cfg, &deferred)
		if !ok && cfg.EnforceSTextOffsets && hdr.Version != header.FCS3_2 {
			deferred.Pushf(diag.Error, diag.KindRequiredMissing, "missing supplemental TEXT offsets ($BEGINSTEXT/$ENDSTEXT)")
		}
		if ok && !stextSeg.IsUnset() {
			if _, err := src.Seek(int64(stextSeg.Begin), io.SeekStart); err != nil {
				return diag.Result[Raw]{}, diag.NewFailure(fmt.Errorf("seeking to supplemental TEXT: %w", err)).WithDeferred(deferred)
			}
			stextBytes := make([]byte, stextSeg.NumBytes())
			if _, err := io.ReadFull(src, stextBytes); err != nil {
				return diag.Result[Raw]{}, diag.NewFailure(fmt.Errorf("reading supplemental TEXT: %w", err)).WithDeferred(deferred)
			}
			// Supplemental TEXT uses the same delimiter and splitting
			// rules, but is its own standalone delimited block (it does
			// not itself carry a leading delimiter byte per common
			// practice of reusing the primary's). Re-prepend it so Split
			// can discover it uniformly.
			stextSplit, _, failure := Split(append([]byte{delim}, stextBytes...), cfg)
			if failure != nil {
				return diag.Result[Raw]{}, failure.WithDeferred(deferred)
			}
			deferred.Extend(stextSplit.Deferred)
			merge(stextSplit.Data, std, nonstd, cfg, &deferred)
		}
	}

	dataSeg, dataPresent := discoverOffset(std, offsetPairs[0], cfg.DataOffset, cfg, &deferred)
	finalData := reconcile(hdr.Data, dataSeg, dataPresent, &deferred)
	if finalData.IsUnset() && hdr.Version >= header.FCS3_0 {
		deferred.Pushf(diag.Error, diag.KindStructural, "DATA segment offsets are unset in both HEADER and TEXT")
	}

	anaSeg, anaPresent := discoverOffset(std, offsetPairs[2], cfg.AnalysisOffset, cfg, &deferred)
	finalAna := reconcile(hdr.Analysis, anaSeg, anaPresent, &deferred)

	raw := Raw{
		Delimiter: delim,
		Standard:  std,
		NonStd:    nonstd,
		DataSeg:   finalData,
	}
	if !finalAna.IsUnset() {
		raw.AnaSeg = diag.Some(finalAna)
	}

	return diag.Result[Raw]{Data: raw, Deferred: deferred}, nil
}

// repairDate reformats $DATE in-place if it matches the configured
// alternate strftime-like pattern (here, a Go reference-time layout),
// rewriting it into the canonical "02-Jan-2006" form before downstream
// value parsing sees it (spec.md §4.3.6).
func repairDate(std map[StdKey]string, altLayout string, deferred *diag.Buf) {
	raw, ok := std["$DATE"]
	if !ok {
		return
	}
	t, err := time.Parse(altLayout, raw)
	if err != nil {
		return // not this pattern; leave $DATE as-is for the normal parser
	}
	std["$DATE"] = t.Format("02-Jan-2006")
	_ = deferred // repair is silent; downstream value parse reports if still bad
}

// SortedStdKeys returns std's keys in a stable, sorted order, used when
// diagnostics need deterministic iteration (e.g. reporting every deviant
// key).
func SortedStdKeys(std map[StdKey]string) []StdKey {
	out := maps.Keys(std)
	slices.Sort(out)
	return out
}

// SortedNonStdKeys returns nonstd's keys in a stable, sorted order.
func SortedNonStdKeys(nonstd map[NonStdKey]string) []NonStdKey {
	out := maps.Keys(nonstd)
	slices.Sort(out)
	return out
}
