package tokenizer

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func TestLoad_VocabTxt(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/tok/vocab.txt":               "[PAD]\n[UNK]\n[CLS]\n[SEP]\n[MASK]\n我\n你\n",
		"/tok/special_tokens_map.json": `{"unk_token":"[UNK]","sep_token":"[SEP]","pad_token":{"content":"[PAD]","lstrip":false}}`,
		"/tok/config.json":             `{"do_lower_case":false}`,
	})

	tok, err := Load(fs, "/tok")
	require.NoError(t, err)
	assert.Equal(t, 7, tok.VocabSize())
	assert.Equal(t, "[PAD]", tok.SpecialTokens()[PadTokenKey])
	assert.Empty(t, tok.BOSToken())

	id, ok := tok.TokenID("[SEP]")
	assert.True(t, ok)
	assert.Equal(t, 3, id)
	_, ok = tok.TokenID("他")
	assert.False(t, ok)

	added := tok.AddSpecialTokens(map[string]string{BOSTokenKey: "[PAD]", EOSTokenKey: "[SEP]"})
	assert.Equal(t, 0, added)
	assert.Equal(t, "[PAD]", tok.BOSToken())
	assert.Equal(t, "[SEP]", tok.EOSToken())
	assert.Equal(t, 7, tok.Len())

	added = tok.AddSpecialTokens(map[string]string{"additional": "[NEW]"})
	assert.Equal(t, 1, added)
	id, ok = tok.TokenID("[NEW]")
	assert.True(t, ok)
	assert.Equal(t, 7, id)
	assert.Equal(t, 7, tok.VocabSize())
	assert.Equal(t, 8, tok.Len())

	require.NoError(t, tok.SavePretrained(fs, "/ckpt/decoder_tokenizer"))
	reloaded, err := Load(fs, "/ckpt/decoder_tokenizer")
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.VocabSize())
	assert.Equal(t, "[SEP]", reloaded.EOSToken())
	id, ok = reloaded.TokenID("[NEW]")
	assert.True(t, ok)
	assert.Equal(t, 7, id)

	exists, err := afero.Exists(fs, "/ckpt/decoder_tokenizer/config.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLoad_RepeatedTokenTakesLastID(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/tok/vocab.txt": "[PAD]\n[UNK]\n[SEP]\nx\n[SEP]\n",
	})

	tok, err := Load(fs, "/tok")
	require.NoError(t, err)
	id, ok := tok.TokenID("[SEP]")
	assert.True(t, ok)
	assert.Equal(t, 4, id)
	assert.Equal(t, 4, tok.VocabSize())

	added := tok.AddSpecialTokens(map[string]string{"additional": "[NEW]"})
	assert.Equal(t, 1, added)
	id, _ = tok.TokenID("[NEW]")
	assert.Equal(t, 5, id)
}

func TestLoad_TokenizerJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/wp/tokenizer.json": `{"model":{"type":"WordPiece","vocab":{"[PAD]":0,"a":1,"b":2}},
			"added_tokens":[{"id":0,"content":"[PAD]"},{"id":3,"content":"<extra>"}]}`,
		"/uni/tokenizer.json": `{"model":{"type":"Unigram","vocab":[["<pad>",0.0],["</s>",0.0],["▁a",-1.5]]}}`,
	})

	wp, err := Load(fs, "/wp")
	require.NoError(t, err)
	assert.Equal(t, 3, wp.VocabSize())
	assert.Equal(t, 4, wp.Len())

	uni, err := Load(fs, "/uni")
	require.NoError(t, err)
	assert.Equal(t, 3, uni.VocabSize())
	id, ok := uni.TokenID("</s>")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestLoad_VocabJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/bpe/vocab.json":            `{"<s>":0,"</s>":2,"hello":3}`,
		"/bpe/merges.txt":            "#version: 0.2\nh e\n",
		"/bpe/tokenizer_config.json": `{"model_max_length":512}`,
	})

	tok, err := Load(fs, "/bpe")
	require.NoError(t, err)
	assert.Equal(t, 3, tok.VocabSize())
	assert.Equal(t, 1, tok.AddSpecialTokens(map[string]string{BOSTokenKey: "<bos>"}))
	id, _ := tok.TokenID("<bos>")
	assert.Equal(t, 4, id)

	require.NoError(t, tok.SavePretrained(fs, "/out"))
	for _, f := range []string{"vocab.json", "merges.txt", "tokenizer_config.json", "added_tokens.json", "special_tokens_map.json"} {
		ok, err := afero.Exists(fs, "/out/"+f)
		require.NoError(t, err)
		assert.True(t, ok, f)
	}
	assert.True(t, HasVocabulary(fs, "/out"))
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))
	_, err := Load(fs, "/empty")
	assert.ErrorIs(t, err, ErrNoVocabulary)
	assert.False(t, HasVocabulary(fs, "/empty"))

	writeFiles(t, fs, map[string]string{
		"/broken/vocab.txt":               "a\n",
		"/broken/special_tokens_map.json": "{",
	})
	_, err = Load(fs, "/broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "special_tokens_map.json")
}

func TestLoad_UnreadableOptionalFile(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	writeFiles(t, fs, map[string]string{filepath.Join(dir, VocabTxtFile): "a\nb\n"})
	require.NoError(t, fs.Mkdir(filepath.Join(dir, AddedTokensFile), 0o755))

	_, err := Load(fs, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
	assert.Contains(t, err.Error(), AddedTokensFile)
}
