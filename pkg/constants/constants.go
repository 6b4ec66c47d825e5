package constants

// Agent
const (
	AgentName      = "mtl-agent"
	AgentEnvPrefix = "MTL_AGENT"
)

// Checkpoint layout
const (
	ParamsFileName        = "params.json"
	DataInfoFileName      = "data_info.json"
	BertConfigDir         = "bert_config"
	BertDecoderConfigDir  = "bert_decoder_config"
	TokenizerDir          = "tokenizer"
	DecoderTokenizerDir   = "decoder_tokenizer"
	ConfigFileName        = "config.json"
	TokenizerConfigFile   = "tokenizer_config.json"
	SpecialTokensMapFile  = "special_tokens_map.json"
	AddedTokensFile       = "added_tokens.json"
	VocabTxtFile          = "vocab.txt"
	VocabJSONFile         = "vocab.json"
	TokenizerJSONFile     = "tokenizer.json"
	InitCheckpointStaging = "init_checkpoint"
	CkptDirSuffix         = "_ckpt"
	DefaultBaseDir        = "models"
	DefaultTmpFileDir     = "tmp"
	DefaultCacheDir       = "models/transformers_cache"
)

// Special tokens added to decoder tokenizers.
const (
	DefaultBOSToken = "[PAD]"
	DefaultEOSToken = "[SEP]"
)

// Schedule
const (
	MaxShuffleBuffer = 200000
	WarmupRatio      = 0.1
	DefaultGPU       = 2
)

// Storage schemes
const (
	S3StoragePrefix    = "s3://"
	LocalStoragePrefix = "local://"
)
