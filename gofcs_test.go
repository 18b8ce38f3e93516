package gofcs_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsbuitrago/gofcs"
	"github.com/nsbuitrago/gofcs/config"
)

// buildFile assembles a minimal valid FCS byte stream: a 58-byte HEADER
// naming the TEXT and DATA segments it computes from the given pieces,
// followed by the TEXT body (delimiter already included) and the DATA
// bytes. No supplemental TEXT or ANALYSIS segment is produced.
func buildFile(version, textBody string, dataBytes []byte) []byte {
	textBegin := 58
	textEnd := textBegin + len(textBody) - 1
	dataBegin := textEnd + 1
	dataEnd := dataBegin + len(dataBytes) - 1
	if len(dataBytes) == 0 {
		dataBegin, dataEnd = 0, 0
	}

	field := func(n int) string {
		if n == 0 {
			return strings.Repeat(" ", 8)
		}
		s := itoa(n)
		return strings.Repeat(" ", 8-len(s)) + s
	}

	var h strings.Builder
	h.WriteString(version)
	for h.Len() < 6 {
		h.WriteByte(' ')
	}
	h.WriteString("    ")
	h.WriteString(field(textBegin))
	h.WriteString(field(textEnd))
	h.WriteString(field(dataBegin))
	h.WriteString(field(dataEnd))
	h.WriteString(field(0))
	h.WriteString(field(0))

	var out bytes.Buffer
	out.WriteString(h.String())
	out.WriteString(textBody)
	out.Write(dataBytes)
	return out.Bytes()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// TestS1Integer20LittleEndian grounds spec.md §8 scenario S1.
func TestS1Integer20LittleEndian(t *testing.T) {
	text := "|$PAR|2|$TOT|8|$MODE|L|$DATATYPE|I|$BYTEORD|1,2,3,4|$P1B|16|$P2B|16|$P1N|FSC|$P2N|SSC|$P1R|1024|$P2R|65536|$P1E|0,0|$P2E|0,0|"
	data := make([]byte, 0, 32)
	for i := 0; i < 8; i++ {
		var c1, c2 [2]byte
		binary.LittleEndian.PutUint16(c1[:], 0xFFFF)
		binary.LittleEndian.PutUint16(c2[:], 0xFFFF)
		data = append(data, c1[:]...)
		data = append(data, c2[:]...)
	}
	file := buildFile("FCS2.0", text, data)

	dec := gofcs.New(newReader(file), config.New())
	res, fail := dec.Decode()
	require.Nil(t, fail)
	require.Len(t, res.Data.Dataset.Columns, 2)
	assert.Equal(t, 8, res.Data.Dataset.Columns[0].Len())
	assert.Equal(t, float64(1023), res.Data.Dataset.Columns[0].At(0))  // $P1R=1024 -> 10-bit mask
	assert.Equal(t, float64(65535), res.Data.Dataset.Columns[1].At(0)) // $P2R=65536 -> 16-bit mask, no clamp needed
}

// TestS2DelimitedAscii grounds spec.md §8 scenario S2.
func TestS2DelimitedAscii(t *testing.T) {
	text := "|$PAR|3|$TOT|2|$MODE|L|$DATATYPE|A|$BYTEORD|1,2,3,4|" +
		"$P1B|*|$P2B|*|$P3B|*|$P1N|A|$P2N|B|$P3N|C|$P1R|10|$P2R|10|$P3R|10|"
	data := []byte("1,2,3 4,5,6 ")
	file := buildFile("FCS3.0", text, data)

	dec := gofcs.New(newReader(file), config.New())
	res, fail := dec.Decode()
	require.Nil(t, fail)
	require.Len(t, res.Data.Dataset.Columns, 3)
	assert.Equal(t, []float64{1, 4}, colValues(res.Data.Dataset.Columns[0]))
	assert.Equal(t, []float64{2, 5}, colValues(res.Data.Dataset.Columns[1]))
	assert.Equal(t, []float64{3, 6}, colValues(res.Data.Dataset.Columns[2]))
}

func colValues(c interface {
	Len() int
	At(int) float64
}) []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.At(i)
	}
	return out
}

// TestS3Float32BigEndian grounds spec.md §8 scenario S3.
func TestS3Float32BigEndian(t *testing.T) {
	text := "|$PAR|2|$TOT|3|$MODE|L|$DATATYPE|F|$BYTEORD|4,3,2,1|" +
		"$P1B|32|$P2B|32|$P1N|A|$P2N|B|$P1R|100|$P2R|100|"
	vals := []float32{1.5, 2.5, 3.5, 4.5, 5.5, 6.5}
	var data bytes.Buffer
	for _, v := range vals {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
		data.Write(b[:])
	}
	file := buildFile("FCS3.1", text, data.Bytes())

	dec := gofcs.New(newReader(file), config.New())
	res, fail := dec.Decode()
	require.Nil(t, fail)
	require.Len(t, res.Data.Dataset.Columns, 2)
	assert.InDelta(t, 1.5, res.Data.Dataset.Columns[0].At(0), 1e-9)
	assert.InDelta(t, 2.5, res.Data.Dataset.Columns[1].At(0), 1e-9)
	assert.InDelta(t, 3.5, res.Data.Dataset.Columns[0].At(1), 1e-9)
}

// TestS4Mixed grounds spec.md §8 scenario S4.
func TestS4Mixed(t *testing.T) {
	text := "|$PAR|2|$TOT|4|$MODE|L|$DATATYPE|I|$BYTEORD|1,2,3,4|$CYT|Acme|" +
		"$P1B|16|$P2B|32|$P2DATATYPE|F|$P1N|A|$P2N|B|$P1R|65536|$P2R|100|"
	var data bytes.Buffer
	for i := 0; i < 4; i++ {
		var u [2]byte
		binary.LittleEndian.PutUint16(u[:], uint16(1000+i))
		data.Write(u[:])
		var f [4]byte
		binary.LittleEndian.PutUint32(f[:], math.Float32bits(float32(i)+0.25))
		data.Write(f[:])
	}
	file := buildFile("FCS3.2", text, data.Bytes())

	dec := gofcs.New(newReader(file), config.New())
	res, fail := dec.Decode()
	require.Nil(t, fail)
	require.Len(t, res.Data.Dataset.Columns, 2)
	assert.Equal(t, 4, res.Data.Dataset.Columns[0].Len())
	assert.InDelta(t, 0.25, res.Data.Dataset.Columns[1].At(0), 1e-6)
}

// TestS5EscapeAndDuplicate grounds spec.md §8 scenario S5.
func TestS5EscapeAndDuplicate(t *testing.T) {
	text := ",$PAR,0,$TOT,0,$MODE,L,$DATATYPE,I,$BYTEORD,1,,2,,3,,4,$CYT,Acme,, Inc,"
	// One padding byte gives HEADER real DATA offsets, which FCS 3.0 needs.
	file := buildFile("FCS3.0", text, []byte{0})

	dec := gofcs.New(newReader(file), config.New())
	res, fail := dec.Decode()
	require.Nil(t, fail)
	cyt, ok := res.Data.Metadata.Cyt.Get()
	require.True(t, ok)
	assert.Equal(t, "Acme, Inc", cyt)
}

// TestS6HeaderTextDisagreement grounds spec.md §8 scenario S6: HEADER wins,
// and a warning names both offsets.
func TestS6HeaderTextDisagreement(t *testing.T) {
	text := "|$PAR|0|$TOT|0|$MODE|L|$DATATYPE|I|$BYTEORD|1,2,3,4|$BEGINDATA|999|$ENDDATA|1299|"
	file := buildFile("FCS3.0", text, nil)
	// Patch HEADER's DATA offsets to something that disagrees with the
	// $BEGINDATA/$ENDDATA keywords above (256..511, per the spec example's
	// numbers, reinterpreted relative to this file's own layout).
	dataBegin := 58 + len(text)
	headerField := func(n int) string {
		s := itoa(n)
		return strings.Repeat(" ", 8-len(s)) + s
	}
	// HEADER layout: 6(version)+4(spaces)+8(t0)+8(t1)+8(d0)+8(d1)+8(a0)+8(a1).
	copy(file[26:34], []byte(headerField(dataBegin)))
	copy(file[34:42], []byte(headerField(dataBegin+5)))

	dec := gofcs.New(newReader(file), config.New())
	res, fail := dec.Decode()
	require.Nil(t, fail)
	foundWarning := false
	for _, d := range res.Deferred.Items() {
		if strings.Contains(d.Message, "HEADER and TEXT disagree") {
			foundWarning = true
		}
	}
	assert.True(t, foundWarning)
	assert.Equal(t, uint32(dataBegin), res.Data.Metadata.DataSegment.Begin)
}
