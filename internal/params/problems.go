package params

import (
	"fmt"
	"sort"
)

// AddProblem registers a problem with its type and the reader that counts
// its data. The reader may be nil when the counts are already cached.
func (p *Params) AddProblem(name string, problemType ProblemType, reader DataReader) error {
	if name == "" {
		return fmt.Errorf("problem name cannot be empty")
	}
	if err := problemType.Validate(); err != nil {
		return err
	}

	p.ProblemTypes[name] = problemType
	p.readers[name] = reader
	if _, ok := p.ShareTop[name]; !ok {
		p.ShareTop[name] = name
	}
	return nil
}

// AddProblems registers every problem in types. readers is optional.
func (p *Params) AddProblems(types map[string]ProblemType, readers map[string]DataReader) error {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p.logger.
			WithField("problem", name).
			WithField("type", types[name]).
			Info("Adding new problem")

		var reader DataReader
		if readers != nil {
			reader = readers[name]
		}
		if err := p.AddProblem(name, types[name], reader); err != nil {
			return fmt.Errorf("problem %s: %w", name, err)
		}
	}
	return nil
}

// GetProblemType returns the registered type of a problem.
func (p *Params) GetProblemType(name string) (ProblemType, error) {
	t, ok := p.ProblemTypes[name]
	if !ok {
		return "", fmt.Errorf("problem %s is not registered", name)
	}
	return t, nil
}

// Reader returns the DataReader registered for a problem, if any.
func (p *Params) Reader(name string) DataReader {
	return p.readers[name]
}
