package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsbuitrago/gofcs/value"
)

func TestByteOrdRoundTrip(t *testing.T) {
	e, err := value.ParseByteOrd("1,2,3,4", true)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3,4", e.String())

	b, err := value.ParseByteOrd("4,3,2,1", true)
	require.NoError(t, err)
	assert.Equal(t, "4,3,2,1", b.String())

	p, err := value.ParseByteOrd("2,1,4,3", true)
	require.NoError(t, err)
	assert.Equal(t, "2,1,4,3", p.String())

	_, err = value.ParseByteOrd("2,1,4,3", false)
	assert.Error(t, err)
}

func TestByteOrdPermutationIsPermutation(t *testing.T) {
	b, err := value.ParseByteOrd("3,1,2", true)
	require.NoError(t, err)
	perm := b.Permutation(3)
	seen := make([]bool, 3)
	for _, p := range perm {
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, 3)
		assert.False(t, seen[p])
		seen[p] = true
	}
}

func TestRangeRoundTrip(t *testing.T) {
	for _, raw := range []string{"1024", "65536", "1", "2"} {
		r, err := value.ParseRange(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, r.String())
	}
}

func TestRangeSaturatesAtUint64Max(t *testing.T) {
	r, err := value.ParseRange("18446744073709551616")
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", r.String())
}

func TestRangeFloat(t *testing.T) {
	r, err := value.ParseRange("1024.5")
	require.NoError(t, err)
	assert.True(t, r.IsFloat())
	assert.Equal(t, 1024.5, r.Float())
}

func TestBytesVariableAndFixed(t *testing.T) {
	v, err := value.ParseBytes("*")
	require.NoError(t, err)
	assert.True(t, v.IsVariable())
	assert.Equal(t, "*", v.String())

	f, err := value.ParseBytes("32")
	require.NoError(t, err)
	assert.False(t, f.IsVariable())
	assert.Equal(t, 4, f.Width())
	assert.Equal(t, "32", f.String())

	_, err = value.ParseBytes("7")
	assert.Error(t, err)
}

func TestCompensationRoundTrip(t *testing.T) {
	c, err := value.ParseCompensation("2,1,0,0,1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.N)
	assert.Equal(t, "2,1,0,0,1", c.String())
}

func TestSpilloverRoundTrip(t *testing.T) {
	s, err := value.ParseSpillover("2,FITC,PE,1,0,0,1")
	require.NoError(t, err)
	assert.Equal(t, []string{"FITC", "PE"}, s.Names)
	assert.Equal(t, "2,FITC,PE,1,0,0,1", s.String())
}

func TestSpilloverDuplicateNameFails(t *testing.T) {
	_, err := value.ParseSpillover("2,FITC,FITC,1,0,0,1")
	assert.Error(t, err)
}

func TestTriggerRoundTrip(t *testing.T) {
	tr, err := value.ParseTrigger("FSC-A,1000")
	require.NoError(t, err)
	assert.Equal(t, "FSC-A", tr.Name)
	assert.Equal(t, 1000, tr.Threshold)
	assert.Equal(t, "FSC-A,1000", tr.String())
}

func TestScaleLinearAndLog(t *testing.T) {
	lin, err := value.ParseScale("0,0")
	require.NoError(t, err)
	assert.False(t, lin.IsLog())
	assert.Equal(t, "0,0", lin.String())

	log, err := value.ParseScale("4,1")
	require.NoError(t, err)
	assert.True(t, log.IsLog())
	assert.Equal(t, "4,1", log.String())
}

func TestFCSDateRoundTrip(t *testing.T) {
	d, err := value.ParseFCSDate("01-JAN-2024")
	require.NoError(t, err)
	assert.Equal(t, "01-Jan-2024", d.String())
}

func TestFCSTime60WithFraction(t *testing.T) {
	tm, err := value.ParseFCSTime60("13:45:02:30")
	require.NoError(t, err)
	assert.Equal(t, "13:45:02:30", tm.String())
}

func TestFCSTime100WithFraction(t *testing.T) {
	tm, err := value.ParseFCSTime100("13:45:02.50")
	require.NoError(t, err)
	assert.Equal(t, "13:45:02.50", tm.String())
}

func TestUnicodeRoundTrip(t *testing.T) {
	u, err := value.ParseUnicode("1252,$P1S,$P2S")
	require.NoError(t, err)
	assert.Equal(t, 1252, u.Page)
	assert.Equal(t, "1252,$P1S,$P2S", u.String())
}

func TestUnicodeDecodesWindows1252Value(t *testing.T) {
	u, err := value.ParseUnicode("1252,$P1S")
	require.NoError(t, err)
	// 0xE9 in Windows-1252 is U+00E9 LATIN SMALL LETTER E WITH ACUTE.
	decoded, err := u.DecodeKeywordValue([]byte{'r', 0xE9, 's', 'u', 'm', 'e'})
	require.NoError(t, err)
	assert.Equal(t, "résume", decoded)
}

func TestUnicodeUnknownPageFails(t *testing.T) {
	u, err := value.ParseUnicode("99999,$P1S")
	require.NoError(t, err)
	_, err = u.DecodeKeywordValue([]byte("x"))
	assert.Error(t, err)
}

func TestShortnameRejectsComma(t *testing.T) {
	_, err := value.ParseShortname("FSC,A")
	assert.Error(t, err)
}

func TestCalibration32WithAndWithoutOffset(t *testing.T) {
	c1, err := value.ParseCalibration3_2("1.5,MESF")
	require.NoError(t, err)
	assert.Equal(t, "1.5,MESF", c1.String())

	c2, err := value.ParseCalibration3_2("1.5,0.1,MESF")
	require.NoError(t, err)
	assert.True(t, c2.HasOffset)
	assert.Equal(t, "1.5,0.1,MESF", c2.String())
}
