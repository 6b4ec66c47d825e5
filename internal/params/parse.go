package params

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

const (
	chunkSeparator   = "|"
	problemSeparator = "&"
	chunkNameJoiner  = "_"
)

// ParseProblemString parses a run string such as "cws|pos|weibo_ner&weibo_cws".
// "|" separates chunks; "&" joins problems trained on the same examples.
// It returns the sorted problem list and the chunks in string order, and
// records the run problem list. TrainProblem is only set when empty.
func (p *Params) ParseProblemString(s string) ([]string, [][]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil, fmt.Errorf("problem string cannot be empty")
	}

	var result *multierror.Error
	seen := map[string]struct{}{}
	var chunks [][]string
	for _, rawChunk := range strings.Split(s, chunkSeparator) {
		var chunk []string
		for _, raw := range strings.Split(rawChunk, problemSeparator) {
			name := strings.TrimSpace(raw)
			switch {
			case name == "":
				result = multierror.Append(result, fmt.Errorf("empty problem name in %q", s))
				continue
			case p.ProblemTypes[name] == "":
				result = multierror.Append(result, fmt.Errorf("problem %s is not registered", name))
			}
			if _, dup := seen[name]; dup {
				result = multierror.Append(result, fmt.Errorf("problem %s appears more than once", name))
				continue
			}
			seen[name] = struct{}{}
			chunk = append(chunk, name)
		}
		chunks = append(chunks, chunk)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, nil, fmt.Errorf("invalid problem string %q: %w", s, err)
	}

	runProblemList := make([]map[string]ProblemType, 0, len(chunks))
	problemList := make([]string, 0, len(seen))
	for _, chunk := range chunks {
		types := make(map[string]ProblemType, len(chunk))
		for _, name := range chunk {
			types[name] = p.ProblemTypes[name]
			problemList = append(problemList, name)
		}
		runProblemList = append(runProblemList, types)
	}
	sort.Strings(problemList)

	p.ProblemStr = s
	p.RunProblemList = runProblemList
	p.ProblemList = problemList
	p.ProblemChunk = chunks
	if len(p.TrainProblem) == 0 {
		p.TrainProblem = make([]map[string]ProblemType, len(runProblemList))
		copy(p.TrainProblem, runProblemList)
	}
	return problemList, chunks, nil
}

// ChunkName is the string form of a chunk: its sorted members joined by "_".
func ChunkName(chunk []string) string {
	sorted := append([]string(nil), chunk...)
	sort.Strings(sorted)
	return strings.Join(sorted, chunkNameJoiner)
}

// GetProblemChunk returns the chunk names of the parsed run string.
func (p *Params) GetProblemChunk() []string {
	names := make([]string, len(p.ProblemChunk))
	for i, chunk := range p.ProblemChunk {
		names[i] = ChunkName(chunk)
	}
	return names
}

// GetProblemChunkLists returns the raw chunks of the parsed run string.
func (p *Params) GetProblemChunkLists() [][]string {
	return p.ProblemChunk
}
