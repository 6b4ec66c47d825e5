// Package checkpoint lays out the checkpoint directory of a training plan.
// It seeds bert_config and tokenizer (and their decoder variants) from an init
// checkpoint or from the model hub, then loads them back into the params.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/sgl-project/ome-mtl/internal/params"
	fsutil "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/constants"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/hub"
	"github.com/sgl-project/ome-mtl/pkg/logging"
	"github.com/sgl-project/ome-mtl/pkg/storage"
)

// HubFetcher downloads files of a model hub repository into a local directory.
type HubFetcher interface {
	DownloadFiles(ctx context.Context, repoID, localDir string, required, optional []string, opts ...hub.DownloadOption) ([]string, error)
}

// ObjectStager mirrors an object storage prefix into a local directory.
type ObjectStager interface {
	DownloadPrefix(ctx context.Context, uri storage.ObjectURI, targetDir string) ([]string, error)
}

// Preparer implements params.DirPreparer.
type Preparer struct {
	fs     afero.Fs
	hub    HubFetcher
	stager ObjectStager
	logger logging.Interface
}

var _ params.DirPreparer = (*Preparer)(nil)

// Option configures a Preparer.
type Option func(*Preparer) error

// WithFs sets the filesystem the checkpoint directory lives on.
func WithFs(fs afero.Fs) Option {
	return func(pr *Preparer) error {
		if fs == nil {
			return errors.New("invalid fs nil")
		}
		pr.fs = fs
		return nil
	}
}

// WithHubFetcher sets the client used when no init checkpoint is available.
func WithHubFetcher(fetcher HubFetcher) Option {
	return func(pr *Preparer) error {
		pr.hub = fetcher
		return nil
	}
}

// WithObjectStager sets the client used for s3:// init checkpoints.
func WithObjectStager(stager ObjectStager) Option {
	return func(pr *Preparer) error {
		pr.stager = stager
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Interface) Option {
	return func(pr *Preparer) error {
		if logger == nil {
			return errors.New("invalid logger nil")
		}
		pr.logger = logger
		return nil
	}
}

// NewPreparer creates a Preparer on the OS filesystem unless WithFs says otherwise.
func NewPreparer(opts ...Option) (*Preparer, error) {
	pr := &Preparer{
		fs:     afero.NewOsFs(),
		logger: logging.Discard(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(pr); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

// layout holds the source and target of every asset copied into a ckpt dir.
type layout struct {
	fromConfig, toConfig                     string
	fromDecoderConfig, toDecoderConfig       string
	fromTokenizer, toTokenizer               string
	fromDecoderTokenizer, toDecoderTokenizer string
}

func newLayout(initCheckpoint, ckptDir string) layout {
	return layout{
		fromConfig:           filepath.Join(initCheckpoint, constants.BertConfigDir),
		toConfig:             filepath.Join(ckptDir, constants.BertConfigDir),
		fromDecoderConfig:    filepath.Join(initCheckpoint, constants.BertDecoderConfigDir),
		toDecoderConfig:      filepath.Join(ckptDir, constants.BertDecoderConfigDir),
		fromTokenizer:        filepath.Join(initCheckpoint, constants.TokenizerDir),
		toTokenizer:          filepath.Join(ckptDir, constants.TokenizerDir),
		fromDecoderTokenizer: filepath.Join(initCheckpoint, constants.DecoderTokenizerDir),
		toDecoderTokenizer:   filepath.Join(ckptDir, constants.DecoderTokenizerDir),
	}
}

// PrepareDir sets CkptDir and ParamsPath, makes sure the transformer config
// and tokenizer live under the ckpt dir and records their details in p.
func (pr *Preparer) PrepareDir(ctx context.Context, p *params.Params, baseDir, dirName string, problemList []string) error {
	p.CkptDir = params.DefaultCkptDir(baseDir, dirName, problemList)
	p.ParamsPath = filepath.Join(p.CkptDir, constants.ParamsFileName)
	log := pr.logger.WithField("ckpt_dir", p.CkptDir)

	if p.HasDecoder() {
		if p.TransformerDecoderConfigName == "" {
			p.TransformerDecoderConfigName = p.TransformerDecoderModelName
		}
		if p.TransformerDecoderTokenizerName == "" {
			p.TransformerDecoderTokenizerName = p.TransformerDecoderModelName
		}
	}

	if p.Predicting {
		p.InitWeightFromHuggingface = false
		l := newLayout("", p.CkptDir)
		return pr.load(p, l)
	}

	if err := pr.fs.MkdirAll(p.CkptDir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir %s: %w", p.CkptDir, err)
	}

	initDir, err := pr.resolveInitCheckpoint(ctx, p)
	if err != nil {
		return err
	}
	l := newLayout(initDir, p.CkptDir)

	if initDir != "" && fsutil.IsDir(pr.fs, l.fromConfig) {
		log.WithField("init_checkpoint", p.InitCheckpoint).Info("Initializing from existing checkpoint")
		if err := pr.copyFromInit(l); err != nil {
			return err
		}
		p.InitWeightFromHuggingface = false
	} else {
		log.Warnf("%s not exists. will load model from huggingface checkpoint.", l.fromConfig)
		p.InitWeightFromHuggingface = true
		if err := pr.fetchPretrained(ctx, p, l); err != nil {
			return err
		}
	}
	return pr.load(p, l)
}

// resolveInitCheckpoint returns the local directory of the init checkpoint,
// staging it from object storage first when needed.
func (pr *Preparer) resolveInitCheckpoint(ctx context.Context, p *params.Params) (string, error) {
	if p.InitCheckpoint == "" {
		return "", nil
	}
	uri, err := storage.ParseURI(p.InitCheckpoint)
	if err != nil {
		return "", fmt.Errorf("invalid init checkpoint %q: %w", p.InitCheckpoint, err)
	}
	if uri.Provider == storage.ProviderLocal {
		return uri.Prefix, nil
	}

	if pr.stager == nil {
		return "", fmt.Errorf("init checkpoint %s needs object storage but none is configured", p.InitCheckpoint)
	}
	staging := filepath.Join(p.TmpFileDir, constants.InitCheckpointStaging)
	if _, err := pr.stager.DownloadPrefix(ctx, *uri, staging); err != nil {
		return "", fmt.Errorf("failed to stage init checkpoint %s: %w", p.InitCheckpoint, err)
	}
	return staging, nil
}

func (pr *Preparer) copyFromInit(l layout) error {
	pairs := [][2]string{
		{l.fromConfig, l.toConfig},
		{l.fromTokenizer, l.toTokenizer},
		{l.fromDecoderConfig, l.toDecoderConfig},
		{l.fromDecoderTokenizer, l.toDecoderTokenizer},
	}
	for _, pair := range pairs {
		from, to := pair[0], pair[1]
		if filepath.Clean(from) == filepath.Clean(to) {
			continue
		}
		ok, err := fsutil.Exists(pr.fs, from)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fsutil.CopyTree(pr.fs, from, to); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
		}
	}
	return nil
}

// isLocal reports whether name refers to something on disk rather than a hub repository.
func (pr *Preparer) isLocal(name string) bool {
	ok, _ := fsutil.Exists(pr.fs, name)
	return ok
}

func (pr *Preparer) cacheDir(p *params.Params, repoID string) string {
	return filepath.Join(p.CacheDir, strings.ReplaceAll(repoID, "/", "--"))
}
