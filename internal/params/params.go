package params

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/sgl-project/ome-mtl/pkg/constants"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/modelconfig"
	"github.com/sgl-project/ome-mtl/pkg/logging"
)

// Params is the resolved multi-task training plan. Every exported field is
// persisted to params.json; runtime collaborators are kept unexported.
type Params struct {
	RunProblemList []map[string]ProblemType `json:"run_problem_list"`
	ProblemTypes   map[string]ProblemType   `json:"problem_type"`

	TransformerModelName        string `json:"transformer_model_name"`
	TransformerTokenizerName    string `json:"transformer_tokenizer_name"`
	TransformerConfigName       string `json:"transformer_config_name"`
	TransformerModelLoading     string `json:"transformer_model_loading"`
	TransformerConfigLoading    string `json:"transformer_config_loading"`
	TransformerTokenizerLoading string `json:"transformer_tokenizer_loading"`

	// Decoder names are empty unless a decoder is configured.
	TransformerDecoderModelName        string `json:"transformer_decoder_model_name"`
	TransformerDecoderConfigName       string `json:"transformer_decoder_config_name"`
	TransformerDecoderTokenizerName    string `json:"transformer_decoder_tokenizer_name"`
	TransformerDecoderModelLoading     string `json:"transformer_decoder_model_loading"`
	TransformerDecoderConfigLoading    string `json:"transformer_decoder_config_loading"`
	TransformerDecoderTokenizerLoading string `json:"transformer_decoder_tokenizer_loading"`

	ModalSegmentID  map[string]int `json:"modal_segment_id"`
	ModalTypeID     map[string]int `json:"modal_type_id"`
	EnableModalType bool           `json:"enable_modal_type"`

	InitCheckpoint string `json:"init_checkpoint"`

	// ShareTop maps a problem to the problem whose top layer it reuses.
	ShareTop map[string]string `json:"share_top"`

	MultitaskBalanceType SamplingStrategy `json:"multitask_balance_type"`

	LogEveryNSteps   int    `json:"log_every_n_steps"`
	DetailLog        bool   `json:"detail_log"`
	Multiprocess     bool   `json:"multiprocess"`
	NumCPUs          int    `json:"num_cpus"`
	PerCPUBuffer     int    `json:"per_cpu_buffer"`
	DecodeVocabFile  string `json:"decode_vocab_file"`
	EvalThrottleSecs int    `json:"eval_throttle_secs"`

	InitLR           float64 `json:"init_lr"`
	BatchSize        int     `json:"batch_size"`
	TrainEpoch       int     `json:"train_epoch"`
	FreezeStep       int     `json:"freeze_step"`
	Prefetch         int     `json:"prefetch"`
	DynamicPadding   bool    `json:"dynamic_padding"`
	BucketBatchSizes []int   `json:"bucket_batch_sizes"`
	BucketBoundaries []int   `json:"bucket_boundaries"`

	DropoutKeepProb        float64 `json:"dropout_keep_prob"`
	MaxSeqLen              int     `json:"max_seq_len"`
	UseOneHotEmbeddings    bool    `json:"use_one_hot_embeddings"`
	LabelSmoothing         float64 `json:"label_smoothing"`
	CRF                    bool    `json:"crf"`
	BertNumHiddenLayer     int     `json:"bert_num_hidden_layer"`
	HiddenDense            bool    `json:"hidden_dense"`
	MultiClsThreshold      float64 `json:"multi_cls_threshold"`
	MultiClsPositiveWeight float64 `json:"multi_cls_positive_weight"`

	DecoderNumHiddenLayers int     `json:"decoder_num_hidden_layers"`
	BeamSize               int     `json:"beam_size"`
	InitDecoderFromEncoder bool    `json:"init_decoder_from_encoder"`
	BeamSearchAlpha        float64 `json:"beam_search_alpha"`
	DecodeMaxSeqLen        int     `json:"decode_max_seq_len"`

	LabelTransfer              bool     `json:"label_transfer"`
	AugumentMaskLM             bool     `json:"augument_mask_lm"`
	AugumentRate               float64  `json:"augument_rate"`
	Distillation               bool     `json:"distillation"`
	UncertainWeightLoss        bool     `json:"uncertain_weight_loss"`
	GridTransformer            bool     `json:"grid_transformer"`
	TaskTransformer            bool     `json:"task_transformer"`
	MeanGradients              bool     `json:"mean_gradients"`
	PuncReplaceProb            float64  `json:"punc_replace_prob"`
	PuncList                   []string `json:"punc_list"`
	HiddenGRU                  bool     `json:"hidden_gru"`
	LabelTransferGRU           bool     `json:"label_transfer_gru"`
	LabelTransferGRUHiddenSize *int     `json:"label_transfer_gru_hidden_size"`

	DupeFactor             int     `json:"dupe_factor"`
	ShortSeqProb           float64 `json:"short_seq_prob"`
	MaskedLMProb           float64 `json:"masked_lm_prob"`
	MaxPredictionsPerSeq   int     `json:"max_predictions_per_seq"`
	MaskLMHiddenSize       int     `json:"mask_lm_hidden_size"`
	MaskLMHiddenAct        string  `json:"mask_lm_hidden_act"`
	MaskLMInitializerRange float64 `json:"mask_lm_initializer_range"`

	TrainProblem []map[string]ProblemType `json:"train_problem"`
	TmpFileDir   string                   `json:"tmp_file_dir"`
	CacheDir     string                   `json:"cache_dir"`

	ProblemAssigned bool           `json:"problem_assigned"`
	AssignedDetails *AssignOptions `json:"assigned_details,omitempty"`
	Predicting      bool           `json:"predicting"`
	RunID           string         `json:"run_id,omitempty"`

	ProblemStr   string     `json:"problem_str,omitempty"`
	ProblemList  []string   `json:"problem_list,omitempty"`
	ProblemChunk [][]string `json:"problem_chunk,omitempty"`

	CkptDir                   string                 `json:"ckpt_dir,omitempty"`
	ParamsPath                string                 `json:"params_path,omitempty"`
	InitWeightFromHuggingface bool                   `json:"init_weight_from_huggingface"`
	BertConfigDict            map[string]interface{} `json:"bert_config_dict,omitempty"`
	BertDecoderConfigDict     map[string]interface{} `json:"bert_decoder_config_dict,omitempty"`
	VocabSize                 int                    `json:"vocab_size,omitempty"`
	DecoderVocabSize          int                    `json:"decoder_vocab_size,omitempty"`
	BOSID                     *int                   `json:"bos_id,omitempty"`
	EOSID                     *int                   `json:"eos_id,omitempty"`

	DataNumDict               map[string]int     `json:"data_num_dict,omitempty"`
	NumClasses                map[string]int     `json:"num_classes,omitempty"`
	DataNum                   int                `json:"data_num"`
	ProblemSamplingWeightDict map[string]float64 `json:"problem_sampling_weight_dict,omitempty"`

	ShuffleBuffer      int     `json:"shuffle_buffer,omitempty"`
	TrainSteps         int     `json:"train_steps"`
	TrainStepsPerEpoch int     `json:"train_steps_per_epoch"`
	NumWarmupSteps     int     `json:"num_warmup_steps"`
	LR                 float64 `json:"lr"`

	// BertConfig and BertDecoderConfig are rebuilt from the dicts above.
	BertConfig        *modelconfig.TransformerConfig `json:"-"`
	BertDecoderConfig *modelconfig.TransformerConfig `json:"-"`

	readers    map[string]DataReader
	logger     logging.Interface
	fs         afero.Fs
	preparer   DirPreparer
	samplingFn SamplingFunc
}

// Option configures the runtime side of Params.
type Option func(*Params) error

// WithLogger sets the logger.
func WithLogger(logger logging.Interface) Option {
	return func(p *Params) error {
		if logger == nil {
			return errors.New("invalid logger nil")
		}
		p.logger = logger
		return nil
	}
}

// WithFs sets the filesystem used for params.json and data_info.json.
func WithFs(fs afero.Fs) Option {
	return func(p *Params) error {
		if fs == nil {
			return errors.New("invalid fs nil")
		}
		p.fs = fs
		return nil
	}
}

// WithDirPreparer sets what lays out the checkpoint directory on AssignProblem.
func WithDirPreparer(preparer DirPreparer) Option {
	return func(p *Params) error {
		p.preparer = preparer
		return nil
	}
}

// WithSamplingFunc installs a custom chunk weighting used by AssignProblem.
func WithSamplingFunc(fn SamplingFunc) Option {
	return func(p *Params) error {
		p.samplingFn = fn
		return nil
	}
}

// Apply applies the given options.
func (p *Params) Apply(opts ...Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(p); err != nil {
			return err
		}
	}
	return nil
}

// NewParams returns Params holding the default hyperparameters.
func NewParams(opts ...Option) (*Params, error) {
	p := &Params{
		RunProblemList: []map[string]ProblemType{},
		ProblemTypes:   map[string]ProblemType{},

		TransformerModelName:        "bert-base-chinese",
		TransformerTokenizerName:    "bert-base-chinese",
		TransformerConfigName:       "bert-base-chinese",
		TransformerModelLoading:     "TFAutoModel",
		TransformerConfigLoading:    "AutoConfig",
		TransformerTokenizerLoading: "AutoTokenizer",

		TransformerDecoderModelLoading:     "TFAutoModel",
		TransformerDecoderConfigLoading:    "AutoConfig",
		TransformerDecoderTokenizerLoading: "AutoTokenizer",

		ModalSegmentID: map[string]int{"text": 0, "image": 0, "others": 0},
		ModalTypeID:    map[string]int{"text": 0, "image": 1, "others": 2},

		ShareTop:             map[string]string{},
		MultitaskBalanceType: DataBalanced,

		LogEveryNSteps:   100,
		DetailLog:        true,
		Multiprocess:     true,
		NumCPUs:          4,
		PerCPUBuffer:     3000,
		EvalThrottleSecs: 600,

		InitLR:           2e-5,
		BatchSize:        32,
		TrainEpoch:       15,
		Prefetch:         5000,
		DynamicPadding:   true,
		BucketBatchSizes: []int{32, 32, 32, 16},
		BucketBoundaries: []int{30, 64, 128},

		DropoutKeepProb:        0.9,
		MaxSeqLen:              256,
		UseOneHotEmbeddings:    true,
		BertNumHiddenLayer:     12,
		MultiClsThreshold:      0.5,
		MultiClsPositiveWeight: 1.0,

		DecoderNumHiddenLayers: 3,
		BeamSize:               10,
		BeamSearchAlpha:        0.6,
		DecodeMaxSeqLen:        90,

		AugumentRate: 0.5,
		PuncList:     []string{",", ".", "!", "?", "！", "。", "？", "，", "、"},

		DupeFactor:             10,
		ShortSeqProb:           0.1,
		MaskedLMProb:           0.15,
		MaxPredictionsPerSeq:   20,
		MaskLMHiddenSize:       768,
		MaskLMHiddenAct:        "gelu",
		MaskLMInitializerRange: 0.02,

		TmpFileDir: constants.DefaultTmpFileDir,
		CacheDir:   constants.DefaultCacheDir,

		readers: map[string]DataReader{},
		logger:  logging.Discard(),
		fs:      afero.NewOsFs(),
	}
	if err := p.Apply(opts...); err != nil {
		return nil, err
	}
	return p, nil
}

// Preset names a canned variation of the default hyperparameters.
type Preset string

const (
	PresetBase             Preset = "base"
	PresetCRF              Preset = "crf"
	PresetStaticBatch      Preset = "static_batch"
	PresetDynamicBatchSize Preset = "dynamic_batch_size"
)

// NewCRFParams enables the CRF layer for sequence tagging.
func NewCRFParams(opts ...Option) (*Params, error) {
	p, err := NewParams(opts...)
	if err != nil {
		return nil, err
	}
	p.CRF = true
	return p, nil
}

// NewStaticBatchParams pads every batch to max_seq_len.
func NewStaticBatchParams(opts ...Option) (*Params, error) {
	p, err := NewParams(opts...)
	if err != nil {
		return nil, err
	}
	p.DynamicPadding = false
	return p, nil
}

// NewDynamicBatchSizeParams uses larger batches for short sequences.
func NewDynamicBatchSizeParams(opts ...Option) (*Params, error) {
	p, err := NewParams(opts...)
	if err != nil {
		return nil, err
	}
	p.BucketBatchSizes = []int{128, 64, 32, 16}
	return p, nil
}

// NewPresetParams builds Params for a named preset. An empty name means PresetBase.
func NewPresetParams(preset Preset, opts ...Option) (*Params, error) {
	switch preset {
	case "", PresetBase:
		return NewParams(opts...)
	case PresetCRF:
		return NewCRFParams(opts...)
	case PresetStaticBatch:
		return NewStaticBatchParams(opts...)
	case PresetDynamicBatchSize:
		return NewDynamicBatchSizeParams(opts...)
	default:
		return nil, fmt.Errorf("unknown params preset %q", preset)
	}
}

// Logger returns the logger Params reports through.
func (p *Params) Logger() logging.Interface { return p.logger }

// Fs returns the filesystem Params persists to.
func (p *Params) Fs() afero.Fs { return p.fs }

// HasDecoder reports whether a decoder model is configured.
func (p *Params) HasDecoder() bool { return p.TransformerDecoderModelName != "" }
