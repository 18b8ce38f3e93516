package meta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/header"
	"github.com/nsbuitrago/gofcs/keyword"
	"github.com/nsbuitrago/gofcs/meta"
	"github.com/nsbuitrago/gofcs/rawtext"
	"github.com/nsbuitrago/gofcs/segment"
)

func newState(std map[rawtext.StdKey]string) *keyword.State {
	return keyword.NewState(rawtext.Raw{Standard: std, NonStd: map[rawtext.NonStdKey]string{}})
}

func baseKeywords(extra map[rawtext.StdKey]string) map[rawtext.StdKey]string {
	std := map[rawtext.StdKey]string{
		"$PAR": "2", "$MODE": "L", "$BYTEORD": "1,2,3,4", "$DATATYPE": "I", "$NEXTDATA": "0",
		"$P1B": "16", "$P1R": "1024", "$P2B": "16", "$P2R": "65536",
	}
	for k, v := range extra {
		std[k] = v
	}
	return std
}

func TestBuildMissingRequiredKeywordFails(t *testing.T) {
	s := newState(map[rawtext.StdKey]string{})
	_, fail := meta.Build(s, header.FCS3_0, segment.Segment{}, config.New())
	require.NotNil(t, fail)
}

func TestBuildReadsCoreKeywordsAndMeasurements(t *testing.T) {
	s := newState(baseKeywords(nil))
	res, fail := meta.Build(s, header.FCS2_0, segment.Segment{}, config.New())
	require.Nil(t, fail)
	assert.Equal(t, 2, res.Data.Par)
	require.Len(t, res.Data.Measurements, 2)
	assert.Equal(t, 1023, int(res.Data.Measurements[0].Range.Int()))
	assert.Equal(t, 65535, int(res.Data.Measurements[1].Range.Int()))
}

func TestBuildPayload2_0ReadsCompensationGrid(t *testing.T) {
	s := newState(baseKeywords(map[rawtext.StdKey]string{
		"$DFC1TO2": "0.1", "$DFC2TO1": "0.2",
	}))
	res, fail := meta.Build(s, header.FCS2_0, segment.Segment{}, config.New())
	require.Nil(t, fail)
	require.NotNil(t, res.Data.V20)
	comp, ok := res.Data.V20.Compensation.Get()
	require.True(t, ok)
	assert.Equal(t, 0.1, comp.Factors[[2]int{1, 2}])
	assert.Equal(t, 0.2, comp.Factors[[2]int{2, 1}])
}

func TestBuildPayload3_0ReadsComp(t *testing.T) {
	s := newState(baseKeywords(map[rawtext.StdKey]string{"$COMP": "2,1,0,0,1"}))
	res, fail := meta.Build(s, header.FCS3_0, segment.Segment{}, config.New())
	require.Nil(t, fail)
	require.NotNil(t, res.Data.V30)
	c, ok := res.Data.V30.Comp.Get()
	require.True(t, ok)
	assert.Equal(t, 2, c.N)
}

func TestBuildPayload3_1ReadsSpilloverAndUnicode(t *testing.T) {
	std := baseKeywords(map[rawtext.StdKey]string{
		"$P1N": "FSC-A", "$P2N": "SSC-A",
		"$SPILLOVER": "2,FSC-A,SSC-A,1,0,0,1",
		"$UNICODE":   "1252,$P1S",
	})
	s := newState(std)
	res, fail := meta.Build(s, header.FCS3_1, segment.Segment{}, config.New())
	require.Nil(t, fail)
	require.NotNil(t, res.Data.V31)
	sp, ok := res.Data.V31.Spillover.Get()
	require.True(t, ok)
	assert.Equal(t, []string{"FSC-A", "SSC-A"}, sp.Names)
	u, ok := res.Data.V31.Unicode.Get()
	require.True(t, ok)
	assert.Equal(t, 1252, u.Page)
}

func TestBuildPayload3_2EndBeforeBeginIsCrossKeyError(t *testing.T) {
	std := baseKeywords(map[rawtext.StdKey]string{
		"$CYT":            "Acme",
		"$BEGINDATETIME": "2024-01-02T10:00:00.00",
		"$ENDDATETIME":   "2024-01-01T10:00:00.00",
	})
	s := newState(std)
	res, fail := meta.Build(s, header.FCS3_2, segment.Segment{}, config.New())
	require.Nil(t, fail)
	found := false
	for _, d := range res.Deferred.Items() {
		if d.Message == "$ENDDATETIME precedes $BEGINDATETIME" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildMissingCytIn3_2IsRequiredMissing(t *testing.T) {
	s := newState(baseKeywords(nil))
	res, fail := meta.Build(s, header.FCS3_2, segment.Segment{}, config.New())
	require.Nil(t, fail)
	assert.True(t, res.Deferred.HasErrors())
}

func TestBuildUntouchedStandardKeywordIsDeviant(t *testing.T) {
	s := newState(baseKeywords(map[rawtext.StdKey]string{"$UNKNOWNKEY": "x"}))
	res, fail := meta.Build(s, header.FCS3_0, segment.Segment{}, config.New())
	require.Nil(t, fail)
	assert.NotEmpty(t, res.Deferred.Items())
}
