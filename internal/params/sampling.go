package params

import (
	"fmt"
	"math"
)

// SamplingStrategy selects how chunk sampling weights are derived.
type SamplingStrategy string

const (
	// DataBalanced weights a chunk by the summed row counts of its problems.
	DataBalanced SamplingStrategy = "data_balanced"
	// ProblemBalanced gives every chunk the same weight.
	ProblemBalanced SamplingStrategy = "problem_balanced"
)

// SamplingFunc returns unnormalised weights keyed by chunk name.
type SamplingFunc func(p *Params) (map[string]float64, error)

// SetDataSamplingStrategy computes the per-chunk sampling weights, normalised
// to sum to 1, and stores them in ProblemSamplingWeightDict. A non-nil fn
// takes precedence over strategy.
func (p *Params) SetDataSamplingStrategy(strategy SamplingStrategy, fn SamplingFunc) (map[string]float64, error) {
	if len(p.ProblemChunk) == 0 {
		return nil, fmt.Errorf("no problem chunks; parse a problem string first")
	}

	var raw map[string]float64
	var err error
	switch {
	case fn != nil:
		p.logger.Info("Sampling function is provided, sampling strategy will be ignored")
		raw, err = p.customWeights(fn)
	case strategy == DataBalanced:
		raw, err = p.dataBalancedWeights()
	case strategy == ProblemBalanced:
		raw = make(map[string]float64, len(p.ProblemChunk))
		for _, name := range p.GetProblemChunk() {
			raw[name] = 1
		}
	default:
		err = fmt.Errorf("sampling strategy %q is not implemented, provide a sampling function", strategy)
	}
	if err != nil {
		return nil, err
	}

	weights, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	p.ProblemSamplingWeightDict = weights
	return weights, nil
}

func (p *Params) dataBalancedWeights() (map[string]float64, error) {
	raw := make(map[string]float64, len(p.ProblemChunk))
	for _, chunk := range p.ProblemChunk {
		name := ChunkName(chunk)
		for _, problem := range chunk {
			n, ok := p.DataNumDict[problem]
			if !ok {
				return nil, fmt.Errorf("no row count for problem %s", problem)
			}
			raw[name] += float64(n)
		}
	}
	return raw, nil
}

func (p *Params) customWeights(fn SamplingFunc) (map[string]float64, error) {
	raw, err := fn(p)
	if err != nil {
		return nil, fmt.Errorf("sampling function failed: %w", err)
	}
	names := p.GetProblemChunk()
	if len(raw) != len(names) {
		return nil, fmt.Errorf("sampling function returned %d weights for %d chunks", len(raw), len(names))
	}
	for _, name := range names {
		if _, ok := raw[name]; !ok {
			return nil, fmt.Errorf("sampling function returned no weight for chunk %s", name)
		}
	}
	return raw, nil
}

func normalize(raw map[string]float64) (map[string]float64, error) {
	total := 0.0
	for name, w := range raw {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid sampling weight %v for chunk %s", w, name)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("sampling weights sum to zero")
	}

	weights := make(map[string]float64, len(raw))
	for name, w := range raw {
		weights[name] = w / total
	}
	return weights, nil
}
