package modelconfig

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// ConfigFileName is the file a pretrained config is stored under.
const ConfigFileName = "config.json"

// defaultBertVocabSize is used by the parameter estimate when the config omits vocab_size.
const defaultBertVocabSize = 30522

// TransformerConfig is a pretrained transformer configuration. The typed
// fields cover what the planner reads; the raw dictionary is kept so that
// saving never drops keys it does not know about.
type TransformerConfig struct {
	BaseModelConfig

	HiddenSize            int `json:"hidden_size"`
	IntermediateSize      int `json:"intermediate_size"`
	NumHiddenLayers       int `json:"num_hidden_layers"`
	NumAttentionHeads     int `json:"num_attention_heads"`
	MaxPositionEmbeddings int `json:"max_position_embeddings"`
	VocabSize             int `json:"vocab_size"`
	TypeVocabSize         int `json:"type_vocab_size"`

	raw map[string]interface{}
}

// LoadTransformerConfig loads a config from a config.json file or from a
// directory holding one.
func LoadTransformerConfig(fs afero.Fs, path string) (*TransformerConfig, error) {
	configPath := path
	if isDir, err := afero.IsDir(fs, path); err == nil && isDir {
		configPath = filepath.Join(path, ConfigFileName)
	}

	data, err := afero.ReadFile(fs, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transformer config '%s': %w", configPath, err)
	}

	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse transformer config JSON from '%s': %w", configPath, err)
	}

	config, err := FromDict(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid transformer config '%s': %w", configPath, err)
	}
	config.ConfigPath = configPath
	return config, nil
}

// FromDict builds a config from a dictionary as produced by ToDict.
func FromDict(dict map[string]interface{}) (*TransformerConfig, error) {
	if dict == nil {
		return nil, fmt.Errorf("config dictionary is nil")
	}
	data, err := json.Marshal(dict)
	if err != nil {
		return nil, err
	}
	config := &TransformerConfig{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	config.raw = make(map[string]interface{}, len(dict))
	for k, v := range dict {
		config.raw[k] = v
	}
	return config, nil
}

// ToDict returns a copy of the full configuration dictionary.
func (c *TransformerConfig) ToDict() map[string]interface{} {
	out := make(map[string]interface{}, len(c.raw))
	for k, v := range c.raw {
		out[k] = v
	}
	return out
}

// Set overrides a key, keeping the typed fields in sync.
func (c *TransformerConfig) Set(key string, value interface{}) error {
	dict := c.ToDict()
	dict[key] = value
	updated, err := FromDict(dict)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	updated.ConfigPath = c.ConfigPath
	*c = *updated
	return nil
}

// SavePretrained writes the configuration to dir/config.json.
func (c *TransformerConfig) SavePretrained(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(c.raw, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filepath.Join(dir, ConfigFileName), append(data, '\n'), 0o644)
}

// GetParameterCount estimates the encoder parameter count from the
// BERT-style dimensions.
func (c *TransformerConfig) GetParameterCount() int64 {
	vocabSize := c.VocabSize
	if vocabSize == 0 {
		vocabSize = defaultBertVocabSize
	}
	intermediate := c.IntermediateSize
	if intermediate == 0 {
		intermediate = 4 * c.HiddenSize
	}
	h := int64(c.HiddenSize)

	embeddings := int64(vocabSize+c.MaxPositionEmbeddings+c.TypeVocabSize) * h
	perLayer := 4*h*h + 2*h*int64(intermediate) + 2*h
	pooler := h * h
	return embeddings + int64(c.NumHiddenLayers)*perLayer + pooler
}

func (c *TransformerConfig) GetContextLength() int {
	return c.MaxPositionEmbeddings
}

func (c *TransformerConfig) GetModelSizeBytes() int64 {
	return EstimateModelSizeBytes(c.GetParameterCount(), c.TorchDtype)
}

var _ HuggingFaceModel = (*TransformerConfig)(nil)
