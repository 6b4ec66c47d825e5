package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/ome-mtl/internal/params"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/hub"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/tokenizer"
	"github.com/sgl-project/ome-mtl/pkg/storage"
)

const (
	bertConfigJSON = `{"model_type": "bert", "vocab_size": 6, "hidden_size": 8, "num_hidden_layers": 2}`
	bertVocab      = "[PAD]\n[UNK]\n[CLS]\n[SEP]\na\nb\n"
)

// fakeHub serves repositories from memory and writes them into the fs.
type fakeHub struct {
	fs    afero.Fs
	repos map[string]map[string]string
	calls []string
}

func (h *fakeHub) DownloadFiles(_ context.Context, repoID, localDir string, required, optional []string, _ ...hub.DownloadOption) ([]string, error) {
	h.calls = append(h.calls, repoID)
	repo, ok := h.repos[repoID]
	if !ok {
		return nil, hub.NewRepositoryNotFoundError(repoID, 401)
	}
	var paths []string
	write := func(name string) error {
		path := filepath.Join(localDir, name)
		if err := afero.WriteFile(h.fs, path, []byte(repo[name]), 0o644); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}
	for _, name := range required {
		if _, ok := repo[name]; !ok {
			return nil, fmt.Errorf("required file %s missing", name)
		}
		if err := write(name); err != nil {
			return nil, err
		}
	}
	for _, name := range optional {
		if _, ok := repo[name]; !ok {
			continue
		}
		if err := write(name); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

type fakeStager struct {
	fs      afero.Fs
	files   map[string]string
	gotURI  storage.ObjectURI
	gotDest string
}

func (s *fakeStager) DownloadPrefix(_ context.Context, uri storage.ObjectURI, targetDir string) ([]string, error) {
	s.gotURI = uri
	s.gotDest = targetDir
	var paths []string
	for rel, content := range s.files {
		path := filepath.Join(targetDir, rel)
		if err := afero.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func newParams(t *testing.T, fs afero.Fs) *params.Params {
	t.Helper()
	p, err := params.NewParams(params.WithFs(fs))
	require.NoError(t, err)
	return p
}

func TestPrepareDirFromHub(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	h := &fakeHub{fs: fs, repos: map[string]map[string]string{
		"bert-base-chinese": {
			"config.json":           bertConfigJSON,
			"vocab.txt":             bertVocab,
			"tokenizer_config.json": `{"do_lower_case": false}`,
		},
	}}
	pr, err := NewPreparer(WithFs(fs), WithHubFetcher(h))
	require.NoError(t, err)
	p := newParams(t, fs)

	require.NoError(t, pr.PrepareDir(ctx, p, "", "", []string{"a", "b"}))

	ckpt := filepath.Join("models", "a_b_ckpt")
	assert.Equal(t, ckpt, p.CkptDir)
	assert.Equal(t, filepath.Join(ckpt, "params.json"), p.ParamsPath)
	assert.True(t, p.InitWeightFromHuggingface)
	assert.Equal(t, []string{"bert-base-chinese", "bert-base-chinese"}, h.calls)

	assert.Equal(t, filepath.Join(ckpt, "bert_config"), p.TransformerConfigName)
	assert.Equal(t, filepath.Join(ckpt, "tokenizer"), p.TransformerTokenizerName)
	assert.Empty(t, p.TransformerDecoderConfigName)
	assert.Empty(t, p.TransformerDecoderTokenizerName)
	assert.Equal(t, "bert-base-chinese", p.TransformerModelName)

	require.NotNil(t, p.BertConfig)
	assert.Equal(t, 6, p.BertConfig.VocabSize)
	assert.Equal(t, "bert", p.BertConfigDict["model_type"])
	assert.Equal(t, 6, p.VocabSize)
	assert.Nil(t, p.BOSID)

	ok, _ := afero.Exists(fs, filepath.Join(ckpt, "tokenizer", "config.json"))
	assert.True(t, ok, "tokenizer_config.json is renamed to config.json")
	ok, _ = afero.Exists(fs, filepath.Join(ckpt, "tokenizer", "tokenizer_config.json"))
	assert.False(t, ok)
	ok, _ = afero.Exists(fs, filepath.Join("models", "transformers_cache", "bert-base-chinese", "config.json"))
	assert.True(t, ok, "hub files land in the cache dir")
}

func TestPrepareDirFromInitCheckpoint(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"init/bert_config/config.json":         bertConfigJSON,
		"init/tokenizer/vocab.txt":             bertVocab,
		"init/bert_decoder_config/config.json": `{"model_type": "bert", "vocab_size": 3}`,
		"init/decoder_tokenizer/vocab.txt":     "x\ny\nz\n",
	})
	pr, err := NewPreparer(WithFs(fs))
	require.NoError(t, err)

	p := newParams(t, fs)
	p.InitCheckpoint = "init"
	p.TransformerDecoderModelName = "bert-base-chinese"

	require.NoError(t, pr.PrepareDir(ctx, p, "out", "run", []string{"a"}))

	ckpt := filepath.Join("out", "run")
	assert.False(t, p.InitWeightFromHuggingface)
	assert.Equal(t, filepath.Join(ckpt, "bert_decoder_config"), p.TransformerDecoderConfigName)
	assert.Equal(t, filepath.Join(ckpt, "decoder_tokenizer"), p.TransformerDecoderTokenizerName)

	require.NotNil(t, p.BertDecoderConfig)
	assert.Equal(t, 3, p.BertDecoderConfig.VocabSize)
	assert.Equal(t, 6, p.VocabSize)
	assert.Equal(t, 3, p.DecoderVocabSize)
	require.NotNil(t, p.BOSID)
	require.NotNil(t, p.EOSID)
	assert.Equal(t, 3, *p.BOSID)
	assert.Equal(t, 4, *p.EOSID)

	data, err := afero.ReadFile(fs, filepath.Join(ckpt, "decoder_tokenizer", "special_tokens_map.json"))
	require.NoError(t, err)
	var special map[string]string
	require.NoError(t, json.Unmarshal(data, &special))
	assert.Equal(t, map[string]string{"bos_token": "[PAD]", "eos_token": "[SEP]"}, special)
}

func TestPrepareDirKeepsExistingSpecialTokens(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"init/bert_config/config.json":                   bertConfigJSON,
		"init/tokenizer/vocab.txt":                       bertVocab,
		"init/decoder_tokenizer/vocab.txt":               bertVocab,
		"init/decoder_tokenizer/special_tokens_map.json": `{"bos_token": "[CLS]", "eos_token": {"content": "[SEP]"}}`,
	})
	pr, err := NewPreparer(WithFs(fs))
	require.NoError(t, err)
	p := newParams(t, fs)
	p.InitCheckpoint = "init"
	p.TransformerDecoderTokenizerName = "some-tokenizer"

	require.NoError(t, pr.PrepareDir(context.Background(), p, "out", "", []string{"a"}))
	assert.Equal(t, 6, p.DecoderVocabSize)
	assert.Equal(t, 2, *p.BOSID)
	assert.Equal(t, 3, *p.EOSID)
	assert.Nil(t, p.BertDecoderConfig)
	assert.Empty(t, p.TransformerDecoderConfigName)
}

func TestPrepareDirFromS3InitCheckpoint(t *testing.T) {
	fs := afero.NewMemMapFs()
	stager := &fakeStager{fs: fs, files: map[string]string{
		"bert_config/config.json": bertConfigJSON,
		"tokenizer/vocab.txt":     bertVocab,
	}}
	pr, err := NewPreparer(WithFs(fs), WithObjectStager(stager))
	require.NoError(t, err)
	p := newParams(t, fs)
	p.InitCheckpoint = "s3://models/runs/prev"

	require.NoError(t, pr.PrepareDir(context.Background(), p, "", "", []string{"a"}))
	assert.Equal(t, storage.ObjectURI{Provider: storage.ProviderAWS, BucketName: "models", Prefix: "runs/prev"}, stager.gotURI)
	assert.Equal(t, filepath.Join("tmp", "init_checkpoint"), stager.gotDest)
	assert.False(t, p.InitWeightFromHuggingface)
	assert.Equal(t, 6, p.VocabSize)

	ok, _ := afero.Exists(fs, filepath.Join("models", "a_ckpt", "bert_config", "config.json"))
	assert.True(t, ok)
}

func TestPrepareDirFromLocalNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"pretrained/config.json":       bertConfigJSON,
		"pretrained/vocab.txt":         bertVocab,
		"pretrained/added_tokens.json": `{"[NEW]": 6}`,
	})
	pr, err := NewPreparer(WithFs(fs))
	require.NoError(t, err)
	p := newParams(t, fs)
	p.TransformerConfigName = "pretrained"
	p.TransformerTokenizerName = "pretrained"

	require.NoError(t, pr.PrepareDir(context.Background(), p, "", "", []string{"a"}))
	assert.True(t, p.InitWeightFromHuggingface)
	assert.Equal(t, 6, p.VocabSize, "added tokens do not count")
}

func TestPrepareDirPredicting(t *testing.T) {
	fs := afero.NewMemMapFs()
	pr, err := NewPreparer(WithFs(fs))
	require.NoError(t, err)

	p := newParams(t, fs)
	p.Predicting = true
	err = pr.PrepareDir(context.Background(), p, "", "", []string{"a"})
	assert.Error(t, err, "nothing to load from the ckpt dir")

	writeFiles(t, fs, map[string]string{
		"models/a_ckpt/bert_config/config.json": bertConfigJSON,
		"models/a_ckpt/tokenizer/vocab.txt":     bertVocab,
	})
	p = newParams(t, fs)
	p.Predicting = true
	p.InitWeightFromHuggingface = true
	require.NoError(t, pr.PrepareDir(context.Background(), p, "", "", []string{"a"}))
	assert.False(t, p.InitWeightFromHuggingface)
	assert.Equal(t, 6, p.VocabSize)
}

func TestPrepareDirErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no hub client", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		pr, err := NewPreparer(WithFs(fs))
		require.NoError(t, err)
		err = pr.PrepareDir(ctx, newParams(t, fs), "", "", []string{"a"})
		assert.ErrorContains(t, err, "no hub client")
	})

	t.Run("hub failure", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		pr, err := NewPreparer(WithFs(fs), WithHubFetcher(&fakeHub{fs: fs}))
		require.NoError(t, err)
		err = pr.PrepareDir(ctx, newParams(t, fs), "", "", []string{"a"})
		var notFound *hub.RepositoryNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})

	t.Run("tokenizer without vocabulary", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		h := &fakeHub{fs: fs, repos: map[string]map[string]string{
			"bert-base-chinese": {"config.json": bertConfigJSON},
		}}
		pr, err := NewPreparer(WithFs(fs), WithHubFetcher(h))
		require.NoError(t, err)
		err = pr.PrepareDir(ctx, newParams(t, fs), "", "", []string{"a"})
		assert.ErrorIs(t, err, tokenizer.ErrNoVocabulary)
	})

	t.Run("s3 without stager", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		pr, err := NewPreparer(WithFs(fs))
		require.NoError(t, err)
		p := newParams(t, fs)
		p.InitCheckpoint = "s3://bucket/prefix"
		err = pr.PrepareDir(ctx, p, "", "", []string{"a"})
		assert.ErrorContains(t, err, "needs object storage")
	})

	t.Run("nil options", func(t *testing.T) {
		_, err := NewPreparer(WithFs(nil))
		assert.Error(t, err)
		_, err = NewPreparer(WithLogger(nil))
		assert.Error(t, err)
	})
}

func TestAssignProblemWithPreparer(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"init/bert_config/config.json": bertConfigJSON,
		"init/tokenizer/vocab.txt":     bertVocab,
		"data/a.jsonl":                 "{\"labels\": \"x\"}\n{\"labels\": \"y\"}\n",
	})
	pr, err := NewPreparer(WithFs(fs))
	require.NoError(t, err)

	p, err := params.NewParams(params.WithFs(fs), params.WithDirPreparer(pr))
	require.NoError(t, err)
	p.InitCheckpoint = "init"
	require.NoError(t, p.AddProblem("a", params.ProblemTypeCls, &params.FileDataReader{
		Files: map[params.Mode]string{params.ModeTrain: "data/a.jsonl"},
		Type:  params.ProblemTypeCls,
	}))

	require.NoError(t, p.AssignProblem(context.Background(), params.NewAssignOptions("a")))
	require.NoError(t, p.ToJSON())

	assert.Equal(t, 2, p.DataNum)
	assert.Equal(t, 2, p.NumClasses["a"])

	q, err := params.NewParams(params.WithFs(fs), params.WithDirPreparer(pr))
	require.NoError(t, err)
	require.NoError(t, q.AddProblem("a", params.ProblemTypeCls, nil))
	require.NoError(t, q.FromJSON(context.Background(), p.ParamsPath))
	assert.Equal(t, p.TransformerConfigName, q.TransformerConfigName)
	assert.Equal(t, p.TrainSteps, q.TrainSteps)
	require.NotNil(t, q.BertConfig)
	assert.Equal(t, 6, q.BertConfig.VocabSize)
}
