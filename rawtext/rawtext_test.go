package rawtext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/rawtext"
)

func TestSplitLiteralMode(t *testing.T) {
	seg := []byte("|$PAR|2|$MODE|L|")
	res, delim, fail := rawtext.Split(seg, config.New(config.NoDelimEscape()))
	require.Nil(t, fail)
	assert.Equal(t, byte('|'), delim)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "$PAR", res.Data[0].Key)
	assert.Equal(t, "2", res.Data[0].Value)
	assert.Equal(t, "$MODE", res.Data[1].Key)
	assert.Equal(t, "L", res.Data[1].Value)
}

func TestSplitEscapedDelimiterInValue(t *testing.T) {
	// Delimiter ',' doubled within the $CYT value represents one literal
	// comma; the outer single commas are real word boundaries.
	seg := []byte(",$CYT,Acme,, Inc,")
	res, delim, fail := rawtext.Split(seg, config.New())
	require.Nil(t, fail)
	assert.Equal(t, byte(','), delim)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "$CYT", res.Data[0].Key)
	assert.Equal(t, "Acme, Inc", res.Data[0].Value)
}

func TestSplitNoDelimEscapeTreatsEveryDelimiterAsBoundary(t *testing.T) {
	seg := []byte(",$CYT,Acme,, Inc,")
	res, _, fail := rawtext.Split(seg, config.New(config.NoDelimEscape()))
	require.Nil(t, fail)
	// Literal mode: "$CYT", "Acme", "", " Inc" -> 4 words, 2 pairs.
	require.Len(t, res.Data, 2)
	assert.Equal(t, "$CYT", res.Data[0].Key)
	assert.Equal(t, "Acme", res.Data[0].Value)
}

func TestSplitEmptySegmentFails(t *testing.T) {
	_, _, fail := rawtext.Split(nil, config.New())
	require.NotNil(t, fail)
}

func TestSplitPreservesBothOccurrencesOfADuplicateKey(t *testing.T) {
	// Split only tokenizes into ordered Pairs; duplicate-key policy is
	// applied later when rawtext.Read merges Pairs into Raw's maps.
	seg := []byte("|$CYT|first|$CYT|second|")
	res, _, fail := rawtext.Split(seg, config.New())
	require.Nil(t, fail)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "first", res.Data[0].Value)
	assert.Equal(t, "second", res.Data[1].Value)
}

func TestSplitMissingFinalDelimiterWarnsByDefault(t *testing.T) {
	seg := []byte("|$PAR|2")
	res, _, fail := rawtext.Split(seg, config.New())
	require.Nil(t, fail)
	assert.False(t, res.Deferred.HasErrors())
}

func TestSplitMissingFinalDelimiterErrorsWhenEnforced(t *testing.T) {
	seg := []byte("|$PAR|2")
	res, _, fail := rawtext.Split(seg, config.New(config.EnforceFinalDelim()))
	require.Nil(t, fail)
	assert.True(t, res.Deferred.HasErrors())
}

func TestSplitOddWordCountDropsTrailing(t *testing.T) {
	seg := []byte("|$PAR|2|$ORPHAN|")
	res, _, fail := rawtext.Split(seg, config.New())
	require.Nil(t, fail)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "$PAR", res.Data[0].Key)
}
