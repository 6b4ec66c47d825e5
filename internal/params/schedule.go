package params

import (
	"fmt"

	"github.com/sgl-project/ome-mtl/pkg/constants"
)

func (p *Params) hasPretrain() bool {
	for _, name := range p.ProblemList {
		if p.ProblemTypes[name] == ProblemTypePretrain {
			return true
		}
	}
	return false
}

// computeSchedule derives the step counts, warmup and learning rate from
// DataNum. gpu below one counts as a single device.
func (p *Params) computeSchedule(gpu int) error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", p.BatchSize)
	}
	if p.TrainEpoch <= 0 {
		return fmt.Errorf("train_epoch must be positive, got %d", p.TrainEpoch)
	}
	devices := max(1, gpu)

	dupe := 1
	if p.hasPretrain() {
		dupe = max(1, p.DupeFactor)
	}

	p.ShuffleBuffer = min(constants.MaxShuffleBuffer, p.DataNum)
	p.TrainSteps = p.DataNum * p.TrainEpoch * dupe / (p.BatchSize * devices)
	p.TrainStepsPerEpoch = p.TrainSteps / p.TrainEpoch
	p.NumWarmupSteps = int(float64(p.TrainSteps) * constants.WarmupRatio)
	p.LR = p.InitLR * float64(devices)

	p.logger.
		WithField("data_num", p.DataNum).
		WithField("train_steps", p.TrainSteps).
		WithField("warmup_steps", p.NumWarmupSteps).
		WithField("lr", p.LR).
		Info("Computed training schedule")
	return nil
}

// UpdateTrainSteps resets the schedule from a known number of steps per
// epoch. epoch of zero keeps TrainEpoch.
func (p *Params) UpdateTrainSteps(stepsPerEpoch, epoch int) error {
	if stepsPerEpoch <= 0 {
		return fmt.Errorf("train steps per epoch must be positive, got %d", stepsPerEpoch)
	}
	if epoch < 0 {
		return fmt.Errorf("epoch cannot be negative, got %d", epoch)
	}
	if epoch > 0 {
		p.TrainEpoch = epoch
	}

	old := p.TrainSteps
	p.TrainStepsPerEpoch = stepsPerEpoch
	p.TrainSteps = stepsPerEpoch * p.TrainEpoch
	p.NumWarmupSteps = int(float64(p.TrainSteps) * constants.WarmupRatio)

	p.logger.Infof("Updating train_steps from %d to %d", old, p.TrainSteps)
	return nil
}
