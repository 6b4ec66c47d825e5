package params

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	fsutil "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/hfutil/modelconfig"
)

// ToJSON writes every exported field to ParamsPath.
func (p *Params) ToJSON() error {
	if p.ParamsPath == "" {
		return fmt.Errorf("params path is not set: %w", ErrNotAssigned)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	dir, file := filepath.Split(p.ParamsPath)
	if dir == "" {
		dir = "."
	}
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := fsutil.AtomicFileUpdate(p.fs, dir, file, data, 0o644, p.logger); err != nil {
		return err
	}
	p.logger.WithField("path", p.ParamsPath).Info("Params saved")
	return nil
}

// FromJSON loads the fields stored at path on top of the current values.
// Keys absent from the file keep their current value. An empty path means
// ParamsPath, which requires an assigned problem. When p itself was assigned
// before the load, its assignment is replayed on the loaded values. p is only
// modified when the whole load succeeds.
func (p *Params) FromJSON(ctx context.Context, path string) error {
	if path == "" {
		if !p.ProblemAssigned || p.ParamsPath == "" {
			return fmt.Errorf("no params path given: %w", ErrNotAssigned)
		}
		path = p.ParamsPath
	}
	var replay *AssignOptions
	if p.ProblemAssigned && p.AssignedDetails != nil {
		details := *p.AssignedDetails
		replay = &details
	}

	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read params from %s: %w", path, err)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse params from %s: %w", path, err)
	}

	current, err := json.Marshal(p)
	if err != nil {
		return err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return err
	}
	for k, v := range overlay {
		merged[k] = v
	}
	mergedData, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	loaded := Params{}
	if err := json.Unmarshal(mergedData, &loaded); err != nil {
		return fmt.Errorf("failed to load params from %s: %w", path, err)
	}
	loaded.readers = p.readers
	loaded.logger = p.logger
	loaded.fs = p.fs
	loaded.preparer = p.preparer
	loaded.samplingFn = p.samplingFn

	if err := loaded.rebuildConfigs(); err != nil {
		return err
	}

	if replay != nil {
		// a stored schedule may have been updated after assignment; keep it
		steps, perEpoch, warmup := loaded.TrainSteps, loaded.TrainStepsPerEpoch, loaded.NumWarmupSteps
		if err := loaded.AssignProblem(ctx, *replay); err != nil {
			return fmt.Errorf("failed to replay assignment %q: %w", replay.ProblemString, err)
		}
		if _, ok := overlay["train_steps"]; ok && !loaded.Predicting {
			loaded.TrainSteps, loaded.TrainStepsPerEpoch, loaded.NumWarmupSteps = steps, perEpoch, warmup
		}
	}

	*p = loaded
	p.logger.WithField("path", path).Info("Params loaded")
	return nil
}

func (p *Params) rebuildConfigs() error {
	p.BertConfig = nil
	p.BertDecoderConfig = nil
	if p.BertConfigDict != nil {
		cfg, err := modelconfig.FromDict(p.BertConfigDict)
		if err != nil {
			return fmt.Errorf("failed to rebuild bert config: %w", err)
		}
		p.BertConfig = cfg
	}
	if p.BertDecoderConfigDict != nil {
		cfg, err := modelconfig.FromDict(p.BertDecoderConfigDict)
		if err != nil {
			return fmt.Errorf("failed to rebuild bert decoder config: %w", err)
		}
		p.BertDecoderConfig = cfg
	}
	return nil
}
