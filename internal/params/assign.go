package params

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sgl-project/ome-mtl/pkg/constants"
)

// AssignOptions are the arguments of AssignProblem. They are stored on the
// params so a reload can replay the assignment.
type AssignOptions struct {
	ProblemString string `json:"flag_string"`
	GPU           int    `json:"gpu"`
	BaseDir       string `json:"base_dir,omitempty"`
	DirName       string `json:"dir_name,omitempty"`
	Predicting    bool   `json:"predicting"`
}

// NewAssignOptions returns options for problemString on the default GPU count.
func NewAssignOptions(problemString string) AssignOptions {
	return AssignOptions{ProblemString: problemString, GPU: constants.DefaultGPU}
}

// DirPreparer lays out the checkpoint directory of an assignment. It sets
// CkptDir and ParamsPath and loads the transformer config and tokenizer
// details into p.
type DirPreparer interface {
	PrepareDir(ctx context.Context, p *Params, baseDir, dirName string, problemList []string) error
}

// DefaultCkptDir returns <baseDir>/<problems joined by "_">_ckpt, with
// baseDir defaulting to "models". A non-empty dirName replaces the last element.
func DefaultCkptDir(baseDir, dirName string, problemList []string) string {
	if baseDir == "" {
		baseDir = constants.DefaultBaseDir
	}
	if dirName == "" {
		dirName = strings.Join(problemList, "_") + constants.CkptDirSuffix
	}
	return filepath.Join(baseDir, dirName)
}

// AssignProblem resolves a problem string into a training plan: it parses the
// string, prepares the checkpoint directory, reads the data info, computes
// sampling weights and, when training, the step schedule.
func (p *Params) AssignProblem(ctx context.Context, opts AssignOptions) error {
	p.Predicting = opts.Predicting

	problemList, _, err := p.ParseProblemString(opts.ProblemString)
	if err != nil {
		return err
	}

	if p.preparer != nil {
		if err := p.preparer.PrepareDir(ctx, p, opts.BaseDir, opts.DirName, problemList); err != nil {
			return fmt.Errorf("failed to prepare checkpoint dir: %w", err)
		}
	} else {
		p.CkptDir = DefaultCkptDir(opts.BaseDir, opts.DirName, problemList)
		p.ParamsPath = filepath.Join(p.CkptDir, constants.ParamsFileName)
	}

	if _, err := p.GetDataInfo(ctx, problemList, p.CkptDir); err != nil {
		return err
	}

	if _, err := p.SetDataSamplingStrategy(p.MultitaskBalanceType, p.samplingFn); err != nil {
		if !p.Predicting || p.samplingFn != nil {
			return err
		}
		p.logger.WithError(err).Warn("Falling back to problem balanced sampling")
		if _, err := p.SetDataSamplingStrategy(ProblemBalanced, nil); err != nil {
			return err
		}
	}

	if !p.Predicting {
		if err := p.computeSchedule(opts.GPU); err != nil {
			return err
		}
	}

	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	p.ProblemAssigned = true
	details := opts
	p.AssignedDetails = &details

	p.logger.
		WithField("run_id", p.RunID).
		WithField("problems", strings.Join(problemList, ",")).
		WithField("ckpt_dir", p.CkptDir).
		Info("Problem assigned")
	return nil
}

// ErrNotAssigned is returned by operations that need an assigned problem.
var ErrNotAssigned = errors.New("no problem assigned")
