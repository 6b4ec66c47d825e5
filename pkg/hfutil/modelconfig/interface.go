package modelconfig

import (
	"fmt"
	"strings"
)

// HuggingFaceModel is the read-only view of a model configuration used when
// summarising a plan.
type HuggingFaceModel interface {
	GetParameterCount() int64
	GetArchitecture() string
	GetModelType() string
	GetContextLength() int
	GetModelSizeBytes() int64
	GetTorchDtype() string
}

// BaseModelConfig defines common fields shared across all Hugging Face model configurations
type BaseModelConfig struct {
	ModelType          string   `json:"model_type"`
	Architectures      []string `json:"architectures"`
	TorchDtype         string   `json:"torch_dtype"`
	TransformerVersion string   `json:"transformers_version"`

	ConfigPath string `json:"-"`
}

func (c *BaseModelConfig) GetModelType() string {
	return c.ModelType
}

func (c *BaseModelConfig) GetArchitecture() string {
	if len(c.Architectures) > 0 {
		return c.Architectures[0]
	}
	return ""
}

func (c *BaseModelConfig) GetTorchDtype() string {
	return c.TorchDtype
}

// DtypeSizeBytes maps torch data types to their size in bytes per parameter
var DtypeSizeBytes = map[string]float64{
	"float32":  4.0,
	"float":    4.0,
	"bfloat16": 2.0,
	"bf16":     2.0,
	"float16":  2.0,
	"fp16":     2.0,
	"half":     2.0,
	"int8":     1.0,
}

// EstimateModelSizeBytes estimates model size in bytes based on parameter count and data type
func EstimateModelSizeBytes(paramCount int64, dtype string) int64 {
	sizePerParam, ok := DtypeSizeBytes[strings.ToLower(dtype)]
	if !ok {
		sizePerParam = 4.0
	}
	return int64(float64(paramCount) * sizePerParam)
}

// FormatParamCount converts a parameter count to a human-readable string,
// e.g. 1500000 -> "1.5M".
func FormatParamCount(count int64) string {
	units := []struct {
		size   int64
		suffix string
	}{
		{1_000_000_000, "B"},
		{1_000_000, "M"},
		{1_000, "K"},
	}
	for _, u := range units {
		if count < u.size {
			continue
		}
		value := float64(count) / float64(u.size)
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d%s", int64(value), u.suffix)
		}
		return fmt.Sprintf("%.1f%s", value, u.suffix)
	}
	return fmt.Sprintf("%d", count)
}
