package header_test

import (
	"strings"
	"testing"

	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedField(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func buildHeader(version string, t0, t1, d0, d1, a0, a1 string) string {
	var b strings.Builder
	b.WriteString(fixedField(version, 6))
	b.WriteString("    ")
	b.WriteString(fixedField(t0, 8))
	b.WriteString(fixedField(t1, 8))
	b.WriteString(fixedField(d0, 8))
	b.WriteString(fixedField(d1, 8))
	b.WriteString(fixedField(a0, 8))
	b.WriteString(fixedField(a1, 8))
	return b.String()
}

func TestReadFCS20(t *testing.T) {
	raw := buildHeader("FCS2.0", "58", "257", "258", "321", "", "")
	r, err := header.Read(strings.NewReader(raw), header.Config{})
	require.Nil(t, err)
	assert.Equal(t, header.FCS2_0, r.Data.Version)
	assert.Equal(t, uint32(58), r.Data.Text.Begin)
	assert.Equal(t, uint32(257), r.Data.Text.End)
	assert.Equal(t, uint32(258), r.Data.Data.Begin)
	assert.True(t, r.Data.Analysis.IsUnset())
}

func TestReadFCS30BlankData(t *testing.T) {
	raw := buildHeader("FCS3.0", "58", "257", "", "", "", "")
	r, err := header.Read(strings.NewReader(raw), header.Config{})
	require.Nil(t, err)
	assert.True(t, r.Data.Data.IsUnset())
}

func TestReadBadVersion(t *testing.T) {
	raw := buildHeader("FCS9.9", "58", "257", "258", "321", "", "")
	_, err := header.Read(strings.NewReader(raw), header.Config{})
	require.NotNil(t, err)
}

func TestReadVersionOverride(t *testing.T) {
	raw := buildHeader("FCS9.9", "58", "257", "258", "321", "", "")
	r, err := header.Read(strings.NewReader(raw), header.Config{
		VersionOverride: diag.Some(header.FCS3_1),
	})
	require.Nil(t, err)
	assert.Equal(t, header.FCS3_1, r.Data.Version)
}

func TestReadCorrections(t *testing.T) {
	raw := buildHeader("FCS3.1", "58", "257", "258", "321", "", "")
	r, err := header.Read(strings.NewReader(raw), header.Config{
		Data: header.OffsetCorrections{Begin: 2, End: -2},
	})
	require.Nil(t, err)
	assert.Equal(t, uint32(260), r.Data.Data.Begin)
	assert.Equal(t, uint32(319), r.Data.Data.End)
}

func TestReadInverted(t *testing.T) {
	raw := buildHeader("FCS3.1", "58", "257", "400", "300", "", "")
	_, err := header.Read(strings.NewReader(raw), header.Config{})
	require.NotNil(t, err)
}
