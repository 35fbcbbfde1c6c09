package flat

import (
	"bytes"
	"testing"

	"github.com/hupe1980/pagevec/index"
	"github.com/stretchr/testify/require"
)

func TestFlat_New(t *testing.T) {
	t.Run("valid dimension", func(t *testing.T) {
		f, err := New(WithDimension(4))
		require.NoError(t, err)
		require.Equal(t, 4, f.Dimension())
		require.Zero(t, f.Count())
	})

	t.Run("missing dimension", func(t *testing.T) {
		_, err := New()
		var ie *index.ErrInvalidDimension
		require.ErrorAs(t, err, &ie)
	})
}

func TestFlat_Add(t *testing.T) {
	f, err := New(WithDimension(3))
	require.NoError(t, err)

	pos, err := f.Add([]float32{1, 0, 0})
	require.NoError(t, err)
	require.Equal(t, 0, pos)

	pos, err = f.Add([]float32{0, 1, 0})
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	require.Equal(t, 2, f.Count())

	_, err = f.Add([]float32{1, 2})
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	require.Equal(t, 3, dm.Expected)
	require.Equal(t, 2, dm.Actual)
	require.Equal(t, 2, f.Count())
}

func TestFlat_AddBatch(t *testing.T) {
	f, err := New(WithDimension(2))
	require.NoError(t, err)

	first, err := f.AddBatch([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Equal(t, 0, first)

	first, err = f.AddBatch([][]float32{{2, 2}})
	require.NoError(t, err)
	require.Equal(t, 2, first)
	require.Equal(t, 3, f.Count())

	// A mismatched vector anywhere in the batch leaves the index untouched.
	_, err = f.AddBatch([][]float32{{1, 1}, {1, 2, 3}})
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	require.Equal(t, 3, f.Count())
}

func TestFlat_Search(t *testing.T) {
	f, err := New(WithDimension(2))
	require.NoError(t, err)

	vectors := [][]float32{
		{0, 0},
		{1, 0},
		{0, 2},
		{3, 3},
	}
	_, err = f.AddBatch(vectors)
	require.NoError(t, err)

	results, err := f.Search([]float32{0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, 0, results[0].Position)
	require.Equal(t, 1, results[1].Position)
	require.Equal(t, 2, results[2].Position)

	// Distances are non-negative and non-decreasing.
	prev := float32(0)
	for _, r := range results {
		require.GreaterOrEqual(t, r.Distance, prev)
		prev = r.Distance
	}
}

func TestFlat_Search_KLargerThanCount(t *testing.T) {
	f, err := New(WithDimension(2))
	require.NoError(t, err)

	_, err = f.AddBatch([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	results, err := f.Search([]float32{1, 1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestFlat_Search_Filter(t *testing.T) {
	f, err := New(WithDimension(2))
	require.NoError(t, err)

	_, err = f.AddBatch([][]float32{{0, 0}, {0.1, 0}, {5, 5}})
	require.NoError(t, err)

	results, err := f.Search([]float32{0, 0}, 3, func(pos int) bool { return pos != 0 })
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Position)
	require.Equal(t, 2, results[1].Position)
}

func TestFlat_Search_Errors(t *testing.T) {
	f, err := New(WithDimension(2))
	require.NoError(t, err)

	_, err = f.Search([]float32{1, 0}, 0, nil)
	require.ErrorIs(t, err, index.ErrInvalidK)

	_, err = f.Search([]float32{1, 0, 0}, 1, nil)
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func TestFlat_Vectors(t *testing.T) {
	f, err := New(WithDimension(2))
	require.NoError(t, err)

	in := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	_, err = f.AddBatch(in)
	require.NoError(t, err)

	out := f.Vectors()
	require.Equal(t, in, out)

	// Exported vectors are copies.
	out[0][0] = 99
	require.Equal(t, in[1:], f.Vectors()[1:])
	require.Equal(t, float32(1), f.Vectors()[0][0])
}

func TestFlat_BinaryRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			f, err := New(WithDimension(3))
			require.NoError(t, err)

			_, err = f.AddBatch([][]float32{{1, 2, 3}, {-4, 5.5, 0}})
			require.NoError(t, err)

			data, err := f.Marshal(c)
			require.NoError(t, err)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, f.Dimension(), got.Dimension())
			require.Equal(t, f.Count(), got.Count())
			require.Equal(t, f.Vectors(), got.Vectors())
		})
	}
}

func TestFlat_Read_Corrupted(t *testing.T) {
	f, err := New(WithDimension(3))
	require.NoError(t, err)
	_, err = f.Add([]float32{1, 2, 3})
	require.NoError(t, err)

	data, err := f.Marshal(CompressionNone)
	require.NoError(t, err)

	t.Run("bad magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] = 'X'
		_, err := Unmarshal(bad)
		require.Error(t, err)
	})

	t.Run("flipped payload bit", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0xFF
		_, err := Unmarshal(bad)
		require.ErrorContains(t, err, "checksum")
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Unmarshal(data[:len(data)-4])
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Unmarshal(nil)
		require.Error(t, err)
	})
}
