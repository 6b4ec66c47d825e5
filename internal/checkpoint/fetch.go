package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sgl-project/ome-mtl/internal/params"
	fsutil "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/constants"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/modelconfig"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/tokenizer"
)

func (pr *Preparer) fetchPretrained(ctx context.Context, p *params.Params, l layout) error {
	cfg, err := pr.fetchConfig(ctx, p, p.TransformerConfigName)
	if err != nil {
		return err
	}
	if err := cfg.SavePretrained(pr.fs, l.toConfig); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", l.toConfig, err)
	}
	if err := pr.saveTokenizer(ctx, p, p.TransformerTokenizerName, l.toTokenizer); err != nil {
		return err
	}

	if !p.HasDecoder() {
		return nil
	}
	decoderCfg, err := pr.fetchConfig(ctx, p, p.TransformerDecoderConfigName)
	if err != nil {
		return err
	}
	if err := decoderCfg.SavePretrained(pr.fs, l.toDecoderConfig); err != nil {
		return fmt.Errorf("failed to save decoder config to %s: %w", l.toDecoderConfig, err)
	}
	return pr.saveTokenizer(ctx, p, p.TransformerDecoderTokenizerName, l.toDecoderTokenizer)
}

// fetchConfig loads a transformer config from a local path or from the hub.
func (pr *Preparer) fetchConfig(ctx context.Context, p *params.Params, name string) (*modelconfig.TransformerConfig, error) {
	if name == "" {
		return nil, errors.New("transformer config name is empty")
	}
	if pr.isLocal(name) {
		return modelconfig.LoadTransformerConfig(pr.fs, name)
	}
	if pr.hub == nil {
		return nil, fmt.Errorf("config %s is not a local path and no hub client is configured", name)
	}

	dir := pr.cacheDir(p, name)
	if _, err := pr.hub.DownloadFiles(ctx, name, dir, []string{modelconfig.ConfigFileName}, nil); err != nil {
		return nil, fmt.Errorf("failed to fetch config %s: %w", name, err)
	}
	return modelconfig.LoadTransformerConfig(pr.fs, dir)
}

// saveTokenizer copies a tokenizer from a local path or the hub into to, and
// renames tokenizer_config.json to config.json when present.
func (pr *Preparer) saveTokenizer(ctx context.Context, p *params.Params, name, to string) error {
	if name == "" {
		return errors.New("tokenizer name is empty")
	}
	src := name
	if !pr.isLocal(name) {
		if pr.hub == nil {
			return fmt.Errorf("tokenizer %s is not a local path and no hub client is configured", name)
		}
		src = pr.cacheDir(p, name)
		if _, err := pr.hub.DownloadFiles(ctx, name, src, nil, tokenizer.PretrainedFiles); err != nil {
			return fmt.Errorf("failed to fetch tokenizer %s: %w", name, err)
		}
	}

	if !tokenizer.HasVocabulary(pr.fs, src) {
		return fmt.Errorf("tokenizer %s: %w in %s", name, tokenizer.ErrNoVocabulary, src)
	}
	tok, err := tokenizer.Load(pr.fs, src)
	if err != nil {
		return fmt.Errorf("failed to load tokenizer %s: %w", name, err)
	}
	if err := tok.SavePretrained(pr.fs, to); err != nil {
		return fmt.Errorf("failed to save tokenizer to %s: %w", to, err)
	}

	err = pr.fs.Rename(
		filepath.Join(to, constants.TokenizerConfigFile),
		filepath.Join(to, constants.ConfigFileName),
	)
	if err != nil && !os.IsNotExist(err) {
		pr.logger.WithError(err).Debug("Could not rename tokenizer config")
	}
	return nil
}

// load reads the config and tokenizers back from the ckpt dir and points the
// transformer names at it.
func (pr *Preparer) load(p *params.Params, l layout) error {
	cfg, err := modelconfig.LoadTransformerConfig(pr.fs, l.toConfig)
	if err != nil {
		return err
	}
	p.BertConfig = cfg
	p.BertConfigDict = cfg.ToDict()

	if ok, _ := fsutil.Exists(pr.fs, l.toDecoderConfig); ok {
		decoderCfg, err := modelconfig.LoadTransformerConfig(pr.fs, l.toDecoderConfig)
		if err != nil {
			return err
		}
		p.BertDecoderConfig = decoderCfg
		p.BertDecoderConfigDict = decoderCfg.ToDict()
	}

	p.TransformerConfigName = l.toConfig
	p.TransformerTokenizerName = l.toTokenizer
	if p.TransformerDecoderConfigName != "" {
		p.TransformerDecoderConfigName = l.toDecoderConfig
	}
	if p.TransformerDecoderTokenizerName != "" {
		p.TransformerDecoderTokenizerName = l.toDecoderTokenizer
	}

	tok, err := tokenizer.Load(pr.fs, l.toTokenizer)
	if err != nil {
		return fmt.Errorf("failed to load tokenizer from %s: %w", l.toTokenizer, err)
	}
	p.VocabSize = tok.VocabSize()

	if p.TransformerDecoderTokenizerName == "" {
		return nil
	}
	return pr.loadDecoderTokenizer(p, l.toDecoderTokenizer)
}

func (pr *Preparer) loadDecoderTokenizer(p *params.Params, dir string) error {
	tok, err := tokenizer.Load(pr.fs, dir)
	if err != nil {
		return fmt.Errorf("failed to load decoder tokenizer from %s: %w", dir, err)
	}

	missing := map[string]string{}
	if tok.BOSToken() == "" {
		missing[tokenizer.BOSTokenKey] = constants.DefaultBOSToken
	}
	if tok.EOSToken() == "" {
		missing[tokenizer.EOSTokenKey] = constants.DefaultEOSToken
	}
	if len(missing) > 0 {
		added := tok.AddSpecialTokens(missing)
		pr.logger.WithField("added", added).Info("Added special tokens to decoder tokenizer")
	}
	if err := tok.SavePretrained(pr.fs, dir); err != nil {
		return fmt.Errorf("failed to save decoder tokenizer to %s: %w", dir, err)
	}

	p.DecoderVocabSize = tok.VocabSize()
	bos, ok := tok.TokenID(tok.BOSToken())
	if !ok {
		return fmt.Errorf("decoder tokenizer has no id for bos token %q", tok.BOSToken())
	}
	eos, ok := tok.TokenID(tok.EOSToken())
	if !ok {
		return fmt.Errorf("decoder tokenizer has no id for eos token %q", tok.EOSToken())
	}
	p.BOSID = &bos
	p.EOSID = &eos
	return nil
}
