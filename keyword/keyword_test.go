package keyword_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/keyword"
	"github.com/nsbuitrago/gofcs/rawtext"
	"github.com/nsbuitrago/gofcs/value"
)

func newState(std map[rawtext.StdKey]string) *keyword.State {
	return keyword.NewState(rawtext.Raw{Standard: std, NonStd: map[rawtext.NonStdKey]string{}})
}

func TestLookupRequiredMissingFails(t *testing.T) {
	s := newState(map[rawtext.StdKey]string{})
	_, fail := keyword.LookupRequired(s, "$PAR", keyword.ParseInt)
	require.NotNil(t, fail)
}

func TestLookupOptionalAbsentIsNotADiagnostic(t *testing.T) {
	s := newState(map[rawtext.StdKey]string{})
	m := keyword.LookupOptional(s, "$CYT", keyword.RawString)
	_, ok := m.Data.Get()
	assert.False(t, ok)
	assert.Empty(t, m.Deferred.Items())
}

func TestLookupOptionalParseFailureWarns(t *testing.T) {
	s := newState(map[rawtext.StdKey]string{"$TOT": "not-a-number"})
	m := keyword.LookupOptional(s, "$TOT", keyword.ParseInt)
	_, ok := m.Data.Get()
	assert.False(t, ok)
	assert.NotEmpty(t, m.Deferred.Items())
}

func TestUntouchedReportsOnlyUnconsumedKeys(t *testing.T) {
	s := newState(map[rawtext.StdKey]string{"$PAR": "0", "$CYT": "Acme"})
	_, _ = keyword.LookupRequired(s, "$PAR", keyword.ParseInt)
	untouched := s.Untouched()
	require.Len(t, untouched, 1)
	assert.Equal(t, rawtext.StdKey("$CYT"), untouched[0])
}

func TestCheckCrossKeyTriggerUnknownMeasurement(t *testing.T) {
	b := keyword.CheckCrossKey(
		[]string{"FSC-A", "SSC-A"},
		diag.Some(value.Trigger{Name: "GFP-A", Threshold: 100}),
		diag.None[value.Spillover](),
		diag.None[value.UnstainedCenters](),
		diag.None[value.Scale](),
		diag.None[float64](),
		diag.None[float64](),
		config.New(),
	)
	require.Len(t, b.Items(), 1)
	assert.Contains(t, b.Items()[0].Message, "$TRIGGER")
}

func TestCheckCrossKeyDuplicateShortname(t *testing.T) {
	b := keyword.CheckCrossKey(
		[]string{"FSC-A", "FSC-A"},
		diag.None[value.Trigger](),
		diag.None[value.Spillover](),
		diag.None[value.UnstainedCenters](),
		diag.None[value.Scale](),
		diag.None[float64](),
		diag.None[float64](),
		config.New(),
	)
	assert.True(t, b.HasErrors())
}

func TestCheckCrossKeyTimeChannelRequiresTimestep(t *testing.T) {
	cfg := config.New(config.WithTimeChannel("TIME", true, true, true, true))
	b := keyword.CheckCrossKey(
		[]string{"TIME", "FSC-A"},
		diag.None[value.Trigger](),
		diag.None[value.Spillover](),
		diag.None[value.UnstainedCenters](),
		diag.Some(value.Scale{}),
		diag.None[float64](),
		diag.None[float64](),
		cfg,
	)
	require.Len(t, b.Items(), 1)
	assert.Contains(t, b.Items()[0].Message, "$TIMESTEP")
}

func TestCheckCrossKeyTimeChannelRejectsNonUnityGain(t *testing.T) {
	cfg := config.New(config.WithTimeChannel("TIME", true, false, false, true))
	b := keyword.CheckCrossKey(
		[]string{"TIME", "FSC-A"},
		diag.None[value.Trigger](),
		diag.None[value.Spillover](),
		diag.None[value.UnstainedCenters](),
		diag.None[value.Scale](),
		diag.None[float64](),
		diag.Some(2.0),
		cfg,
	)
	require.Len(t, b.Items(), 1)
	assert.Contains(t, b.Items()[0].Message, "$PnG")
}

func TestCheckCrossKeySpilloverUnknownName(t *testing.T) {
	sp := value.Spillover{Names: []string{"FSC-A", "UNKNOWN"}, Factors: []float64{1, 0, 0, 1}}
	b := keyword.CheckCrossKey(
		[]string{"FSC-A", "SSC-A"},
		diag.None[value.Trigger](),
		diag.Some(sp),
		diag.None[value.UnstainedCenters](),
		diag.None[value.Scale](),
		diag.None[float64](),
		diag.None[float64](),
		config.New(),
	)
	assert.True(t, b.HasErrors())
}
