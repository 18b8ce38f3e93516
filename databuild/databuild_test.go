package databuild_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/databuild"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/meta"
	"github.com/nsbuitrago/gofcs/segment"
	"github.com/nsbuitrago/gofcs/value"
)

func mustSegment(t *testing.T, begin, end uint64) segment.Segment {
	t.Helper()
	seg, err := segment.New(begin, end, 0, 0, segment.Data)
	require.NoError(t, err)
	return seg
}

func TestBuildIntegerMatrix(t *testing.T) {
	m := meta.Metadata{
		Par: 2, DataType: value.TypeInteger, ByteOrd: value.EndianByteOrd(value.Little),
		DataSegment: mustSegment(t, 0, 31),
		Tot:         diag.Some(int64(8)),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Fixed(2), Range: value.IntRange(1023)},
			{Index: 2, Bytes: value.Fixed(2), Range: value.IntRange(65535)},
		},
	}
	res, fail := databuild.Build(m, config.New())
	require.Nil(t, fail)
	assert.Equal(t, databuild.Integer, res.Data.Kind)
	assert.Equal(t, 8, res.Data.NumRows)
	assert.Equal(t, 4, res.Data.EventWidth)
}

func TestBuildDetectsMixedColumnTypes(t *testing.T) {
	m := meta.Metadata{
		Par: 2, DataType: value.TypeInteger, ByteOrd: value.EndianByteOrd(value.Little),
		DataSegment: mustSegment(t, 0, 23),
		Tot:         diag.Some(int64(4)),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Fixed(2), Range: value.IntRange(65535)},
			{Index: 2, Bytes: value.Fixed(4), Range: value.IntRange(100), NumType: diag.Some(value.NumFloat32)},
		},
	}
	res, fail := databuild.Build(m, config.New())
	require.Nil(t, fail)
	assert.Equal(t, databuild.Mixed, res.Data.Kind)
}

func TestBuildRowCountMismatchWarnsByDefault(t *testing.T) {
	m := meta.Metadata{
		Par: 1, DataType: value.TypeInteger, ByteOrd: value.EndianByteOrd(value.Little),
		DataSegment: mustSegment(t, 0, 7),
		Tot:         diag.Some(int64(99)),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Fixed(2), Range: value.IntRange(65535)},
		},
	}
	res, fail := databuild.Build(m, config.New())
	require.Nil(t, fail)
	assert.NotEmpty(t, res.Deferred.Items())
}

func TestBuildRowCountMismatchFailsWhenEnforced(t *testing.T) {
	m := meta.Metadata{
		Par: 1, DataType: value.TypeInteger, ByteOrd: value.EndianByteOrd(value.Little),
		DataSegment: mustSegment(t, 0, 7),
		Tot:         diag.Some(int64(99)),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Fixed(2), Range: value.IntRange(65535)},
		},
	}
	_, fail := databuild.Build(m, config.New(config.EnforceMatchingTot()))
	require.NotNil(t, fail)
}

func TestBuildDelimitedAsciiUsesTotForRowCount(t *testing.T) {
	m := meta.Metadata{
		Par: 1, DataType: value.TypeAscii,
		DataSegment: mustSegment(t, 0, 3),
		Tot:         diag.Some(int64(2)),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Variable(), Range: value.IntRange(9)},
		},
	}
	res, fail := databuild.Build(m, config.New())
	require.Nil(t, fail)
	assert.Equal(t, databuild.DelimitedAscii, res.Data.Kind)
	assert.Equal(t, 2, res.Data.NumRows)
}

func TestBuildFixedAndVariableAsciiMixFails(t *testing.T) {
	m := meta.Metadata{
		Par: 2, DataType: value.TypeAscii,
		DataSegment: mustSegment(t, 0, 7),
		Tot:         diag.Some(int64(1)),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Fixed(8), Range: value.IntRange(9)},
			{Index: 2, Bytes: value.Variable(), Range: value.IntRange(9)},
		},
	}
	_, fail := databuild.Build(m, config.New())
	require.NotNil(t, fail)
}

func TestBuildDelimitedAsciiWithoutTotFails(t *testing.T) {
	m := meta.Metadata{
		Par: 1, DataType: value.TypeAscii,
		DataSegment: mustSegment(t, 0, 3),
		Measurements: []meta.Measurement{
			{Index: 1, Bytes: value.Variable(), Range: value.IntRange(9)},
		},
	}
	_, fail := databuild.Build(m, config.New())
	require.NotNil(t, fail)
}
