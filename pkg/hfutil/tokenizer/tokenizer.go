// Package tokenizer reads and writes the on-disk layout of a pretrained
// Hugging Face tokenizer. It never tokenizes text; the planner only needs
// vocabulary sizes and special token ids.
package tokenizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	VocabTxtFile         = "vocab.txt"
	VocabJSONFile        = "vocab.json"
	MergesFile           = "merges.txt"
	TokenizerJSONFile    = "tokenizer.json"
	AddedTokensFile      = "added_tokens.json"
	SpecialTokensMapFile = "special_tokens_map.json"
	TokenizerConfigFile  = "tokenizer_config.json"
	ConfigFile           = "config.json"
)

// Special token keys as used in special_tokens_map.json.
const (
	BOSTokenKey = "bos_token"
	EOSTokenKey = "eos_token"
	PadTokenKey = "pad_token"
	UnkTokenKey = "unk_token"
)

// PretrainedFiles lists what a hub repository may carry for a tokenizer.
var PretrainedFiles = []string{
	VocabTxtFile,
	VocabJSONFile,
	MergesFile,
	TokenizerJSONFile,
	AddedTokensFile,
	SpecialTokensMapFile,
	TokenizerConfigFile,
}

// ErrNoVocabulary is returned when a directory holds none of the vocabulary files.
var ErrNoVocabulary = errors.New("no vocabulary file found")

// Tokenizer is a loaded pretrained tokenizer directory.
type Tokenizer struct {
	Dir string

	vocab       map[string]int
	ordered     []string
	vocabSource string
	rawSource   []byte
	merges      []byte

	added      map[string]int
	special    map[string]string
	config     map[string]interface{}
	configFile string
}

// Load reads the tokenizer stored in dir.
func Load(fs afero.Fs, dir string) (*Tokenizer, error) {
	t := &Tokenizer{
		Dir:        dir,
		added:      map[string]int{},
		special:    map[string]string{},
		config:     map[string]interface{}{},
		configFile: TokenizerConfigFile,
	}

	if err := t.loadVocabulary(fs); err != nil {
		return nil, err
	}
	if merges, err := afero.ReadFile(fs, filepath.Join(dir, MergesFile)); err == nil {
		t.merges = merges
	}
	if err := readOptionalJSON(fs, filepath.Join(dir, AddedTokensFile), &t.added); err != nil {
		return nil, err
	}
	if err := t.loadSpecialTokens(fs); err != nil {
		return nil, err
	}
	for _, name := range []string{TokenizerConfigFile, ConfigFile} {
		p := filepath.Join(dir, name)
		if ok, _ := afero.Exists(fs, p); !ok {
			continue
		}
		if err := readOptionalJSON(fs, p, &t.config); err != nil {
			return nil, err
		}
		t.configFile = name
		break
	}
	return t, nil
}

func (t *Tokenizer) loadVocabulary(fs afero.Fs) error {
	if data, err := afero.ReadFile(fs, filepath.Join(t.Dir, VocabTxtFile)); err == nil {
		t.vocabSource = VocabTxtFile
		t.vocab = map[string]int{}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			token := strings.TrimRight(scanner.Text(), "\r")
			// a repeated token takes the id of its last line
			t.vocab[token] = len(t.ordered)
			t.ordered = append(t.ordered, token)
		}
		return scanner.Err()
	}

	if data, err := afero.ReadFile(fs, filepath.Join(t.Dir, VocabJSONFile)); err == nil {
		t.vocabSource = VocabJSONFile
		t.vocab = map[string]int{}
		if err := json.Unmarshal(data, &t.vocab); err != nil {
			return fmt.Errorf("failed to parse %s: %w", VocabJSONFile, err)
		}
		return nil
	}

	if data, err := afero.ReadFile(fs, filepath.Join(t.Dir, TokenizerJSONFile)); err == nil {
		t.vocabSource = TokenizerJSONFile
		t.rawSource = data
		return t.parseTokenizerJSON(data)
	}

	return fmt.Errorf("%w in %s", ErrNoVocabulary, t.Dir)
}

func (t *Tokenizer) parseTokenizerJSON(data []byte) error {
	var doc struct {
		Model struct {
			Vocab json.RawMessage `json:"vocab"`
		} `json:"model"`
		AddedTokens []struct {
			ID      int    `json:"id"`
			Content string `json:"content"`
		} `json:"added_tokens"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", TokenizerJSONFile, err)
	}

	t.vocab = map[string]int{}
	if len(doc.Model.Vocab) > 0 {
		// WordPiece and BPE store a map, Unigram a list of [token, score].
		if err := json.Unmarshal(doc.Model.Vocab, &t.vocab); err != nil {
			var pairs [][]interface{}
			if err := json.Unmarshal(doc.Model.Vocab, &pairs); err != nil {
				return fmt.Errorf("unsupported vocab layout in %s: %w", TokenizerJSONFile, err)
			}
			for id, pair := range pairs {
				if len(pair) == 0 {
					continue
				}
				if token, ok := pair[0].(string); ok {
					t.vocab[token] = id
				}
			}
		}
	}

	// added tokens outside the model vocabulary do not count towards the vocab size
	for _, tok := range doc.AddedTokens {
		if _, ok := t.vocab[tok.Content]; !ok {
			t.added[tok.Content] = tok.ID
		}
	}
	return nil
}

func (t *Tokenizer) loadSpecialTokens(fs afero.Fs) error {
	raw := map[string]interface{}{}
	if err := readOptionalJSON(fs, filepath.Join(t.Dir, SpecialTokensMapFile), &raw); err != nil {
		return err
	}
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			t.special[key] = v
		case map[string]interface{}:
			if content, ok := v["content"].(string); ok {
				t.special[key] = content
			}
		}
	}
	return nil
}

// VocabSize is the size of the base vocabulary, excluding added tokens.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// Len is the base vocabulary plus added tokens.
func (t *Tokenizer) Len() int {
	return len(t.vocab) + len(t.added)
}

func (t *Tokenizer) BOSToken() string { return t.special[BOSTokenKey] }
func (t *Tokenizer) EOSToken() string { return t.special[EOSTokenKey] }

// SpecialTokens returns a copy of the special token map.
func (t *Tokenizer) SpecialTokens() map[string]string {
	out := make(map[string]string, len(t.special))
	for k, v := range t.special {
		out[k] = v
	}
	return out
}

// TokenID looks a token up in the vocabulary and then the added tokens.
func (t *Tokenizer) TokenID(token string) (int, bool) {
	if id, ok := t.vocab[token]; ok {
		return id, true
	}
	id, ok := t.added[token]
	return id, ok
}

// AddSpecialTokens registers special tokens by role. Tokens unknown to the
// vocabulary get fresh ids after the current ones. It returns how many
// tokens were added.
func (t *Tokenizer) AddSpecialTokens(tokens map[string]string) int {
	keys := make([]string, 0, len(tokens))
	for k := range tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	added := 0
	for _, key := range keys {
		token := tokens[key]
		t.special[key] = token
		if _, ok := t.TokenID(token); ok {
			continue
		}
		t.added[token] = t.nextID()
		added++
	}
	return added
}

func (t *Tokenizer) nextID() int {
	next := 0
	for _, id := range t.vocab {
		if id >= next {
			next = id + 1
		}
	}
	for _, id := range t.added {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// SavePretrained writes the tokenizer into dir using the layout it was loaded from.
func (t *Tokenizer) SavePretrained(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	switch t.vocabSource {
	case VocabTxtFile:
		var buf bytes.Buffer
		for _, token := range t.ordered {
			buf.WriteString(token)
			buf.WriteByte('\n')
		}
		if err := afero.WriteFile(fs, filepath.Join(dir, VocabTxtFile), buf.Bytes(), 0o644); err != nil {
			return err
		}
	case VocabJSONFile:
		if err := writeJSON(fs, filepath.Join(dir, VocabJSONFile), t.vocab); err != nil {
			return err
		}
	case TokenizerJSONFile:
		if err := afero.WriteFile(fs, filepath.Join(dir, TokenizerJSONFile), t.rawSource, 0o644); err != nil {
			return err
		}
	}
	if t.merges != nil {
		if err := afero.WriteFile(fs, filepath.Join(dir, MergesFile), t.merges, 0o644); err != nil {
			return err
		}
	}

	if len(t.added) > 0 {
		if err := writeJSON(fs, filepath.Join(dir, AddedTokensFile), t.added); err != nil {
			return err
		}
	}
	if len(t.special) > 0 {
		if err := writeJSON(fs, filepath.Join(dir, SpecialTokensMapFile), t.special); err != nil {
			return err
		}
	}
	if len(t.config) > 0 {
		if err := writeJSON(fs, filepath.Join(dir, t.configFile), t.config); err != nil {
			return err
		}
	}
	t.Dir = dir
	return nil
}

// HasVocabulary reports whether dir holds one of the vocabulary files.
func HasVocabulary(fs afero.Fs, dir string) bool {
	for _, name := range []string{VocabTxtFile, VocabJSONFile, TokenizerJSONFile} {
		if ok, _ := afero.Exists(fs, filepath.Join(dir, name)); ok {
			return true
		}
	}
	return false
}

func readOptionalJSON(fs afero.Fs, path string, v interface{}) error {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(fs afero.Fs, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, append(data, '\n'), 0o644)
}
