package params

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDataInfoFile(t *testing.T, fs afero.Fs, path string) dataInfoFile {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	var info dataInfoFile
	require.NoError(t, json.Unmarshal(data, &info))
	return info
}

func TestGetDataInfoReadsAndCaches(t *testing.T) {
	ctx := context.Background()
	p, readers := newTestParams(t)
	base := "models/a_b_ckpt"

	path, err := p.GetDataInfo(ctx, []string{"a", "b"}, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "data_info.json"), path)
	assert.Equal(t, 1600, p.DataNum)
	assert.Equal(t, map[string]int{"a": 1000, "b": 600}, p.DataNumDict)
	assert.Equal(t, map[string]int{"a": 2, "b": 5}, p.NumClasses)

	cached := readDataInfoFile(t, p.Fs(), path)
	assert.Equal(t, p.DataNumDict, cached.DataNum)
	assert.Equal(t, p.NumClasses, cached.NumClasses)

	// a fresh params only reads the problem missing from the cache
	q, qReaders := newTestParams(t, WithFs(p.Fs()))
	_, err = q.GetDataInfo(ctx, []string{"a", "b", "c"}, base)
	require.NoError(t, err)
	assert.Equal(t, 0, qReaders["a"].calls)
	assert.Equal(t, 0, qReaders["b"].calls)
	assert.Equal(t, 1, qReaders["c"].calls)
	assert.Equal(t, 2000, q.DataNum)
	assert.Equal(t, 1, readers["a"].calls)

	cached = readDataInfoFile(t, p.Fs(), path)
	assert.Equal(t, 400, cached.DataNum["c"])
}

func TestGetDataInfoSumsOnlyRequestedProblems(t *testing.T) {
	p, _ := newTestParams(t)
	require.NoError(t, afero.WriteFile(p.Fs(), "ckpt/data_info.json",
		[]byte(`{"data_num":{"a":10,"b":20,"c":30},"num_classes":{"a":2,"b":3,"c":4}}`), 0o644))

	_, err := p.GetDataInfo(context.Background(), []string{"a", "c"}, "ckpt")
	require.NoError(t, err)
	assert.Equal(t, 40, p.DataNum)
	assert.Len(t, p.DataNumDict, 3)
}

func TestGetDataInfoPredicting(t *testing.T) {
	ctx := context.Background()

	t.Run("without cache writes current maps", func(t *testing.T) {
		p, readers := newTestParams(t)
		p.Predicting = true

		path, err := p.GetDataInfo(ctx, []string{"a"}, "ckpt")
		require.NoError(t, err)
		assert.Equal(t, 0, readers["a"].calls)
		assert.Equal(t, 0, p.DataNum)

		cached := readDataInfoFile(t, p.Fs(), path)
		assert.Empty(t, cached.DataNum)
		assert.Empty(t, cached.NumClasses)
	})

	t.Run("with cache loads without reading", func(t *testing.T) {
		p, readers := newTestParams(t)
		p.Predicting = true
		require.NoError(t, afero.WriteFile(p.Fs(), "ckpt/data_info.json",
			[]byte(`{"data_num":{"a":10},"num_classes":{"a":2}}`), 0o644))

		_, err := p.GetDataInfo(ctx, []string{"a", "b"}, "ckpt")
		require.NoError(t, err)
		assert.Equal(t, 0, readers["b"].calls)
		assert.Equal(t, map[string]int{"a": 2}, p.NumClasses)
	})
}

func TestGetDataInfoErrors(t *testing.T) {
	ctx := context.Background()

	p, err := NewParams(WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	require.NoError(t, p.AddProblem("a", ProblemTypeCls, nil))
	_, err = p.GetDataInfo(ctx, []string{"a"}, "ckpt")
	assert.ErrorContains(t, err, "no data reader registered for problem a")

	require.NoError(t, afero.WriteFile(p.Fs(), "bad/data_info.json", []byte("{"), 0o644))
	_, err = p.GetDataInfo(ctx, []string{"a"}, "bad")
	assert.Error(t, err)
}
