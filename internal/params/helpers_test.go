package params

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type countingReader struct {
	info  DataInfo
	calls int
}

func (r *countingReader) ReadDataInfo(_ context.Context, _ *Params, _ string, _ Mode) (DataInfo, error) {
	r.calls++
	return r.info, nil
}

// newTestParams registers a (cls, 1000 rows), b (seq_tag, 600 rows) and
// c (cls, 400 rows) on an in-memory filesystem.
func newTestParams(t *testing.T, opts ...Option) (*Params, map[string]*countingReader) {
	t.Helper()
	fs := afero.NewMemMapFs()
	p, err := NewParams(append([]Option{WithFs(fs)}, opts...)...)
	require.NoError(t, err)

	readers := map[string]*countingReader{
		"a": {info: DataInfo{DataNum: 1000, NumClasses: 2}},
		"b": {info: DataInfo{DataNum: 600, NumClasses: 5}},
		"c": {info: DataInfo{DataNum: 400, NumClasses: 3}},
	}
	types := map[string]ProblemType{"a": ProblemTypeCls, "b": ProblemTypeSeqTag, "c": ProblemTypeCls}
	dataReaders := map[string]DataReader{}
	for name, r := range readers {
		dataReaders[name] = r
	}
	require.NoError(t, p.AddProblems(types, dataReaders))
	return p, readers
}
