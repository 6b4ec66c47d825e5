package params

// ChunkSummary describes one problem chunk of a plan.
type ChunkSummary struct {
	Name     string   `json:"name"`
	Problems []string `json:"problems"`
	Weight   float64  `json:"weight"`
}

// ScheduleSummary is the step schedule of a plan.
type ScheduleSummary struct {
	DataNum            int     `json:"data_num"`
	TrainEpoch         int     `json:"train_epoch"`
	BatchSize          int     `json:"batch_size"`
	TrainSteps         int     `json:"train_steps"`
	TrainStepsPerEpoch int     `json:"train_steps_per_epoch"`
	NumWarmupSteps     int     `json:"num_warmup_steps"`
	LR                 float64 `json:"lr"`
	ShuffleBuffer      int     `json:"shuffle_buffer"`
}

// PlanSummary is a compact view of an assigned plan.
type PlanSummary struct {
	RunID      string                 `json:"run_id"`
	Assigned   bool                   `json:"problem_assigned"`
	Predicting bool                   `json:"predicting"`
	ProblemStr string                 `json:"problem_str"`
	Problems   map[string]ProblemType `json:"problems"`
	Chunks     []ChunkSummary         `json:"chunks"`
	CkptDir    string                 `json:"ckpt_dir"`
	Schedule   ScheduleSummary        `json:"schedule"`
}

// Summary builds the PlanSummary of p.
func (p *Params) Summary() PlanSummary {
	problems := make(map[string]ProblemType, len(p.ProblemList))
	for _, name := range p.ProblemList {
		problems[name] = p.ProblemTypes[name]
	}

	chunks := make([]ChunkSummary, 0, len(p.ProblemChunk))
	for _, chunk := range p.ProblemChunk {
		name := ChunkName(chunk)
		chunks = append(chunks, ChunkSummary{
			Name:     name,
			Problems: chunk,
			Weight:   p.ProblemSamplingWeightDict[name],
		})
	}

	return PlanSummary{
		RunID:      p.RunID,
		Assigned:   p.ProblemAssigned,
		Predicting: p.Predicting,
		ProblemStr: p.ProblemStr,
		Problems:   problems,
		Chunks:     chunks,
		CkptDir:    p.CkptDir,
		Schedule: ScheduleSummary{
			DataNum:            p.DataNum,
			TrainEpoch:         p.TrainEpoch,
			BatchSize:          p.BatchSize,
			TrainSteps:         p.TrainSteps,
			TrainStepsPerEpoch: p.TrainStepsPerEpoch,
			NumWarmupSteps:     p.NumWarmupSteps,
			LR:                 p.LR,
			ShuffleBuffer:      p.ShuffleBuffer,
		},
	}
}
