package params

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	fsutil "github.com/sgl-project/ome-mtl/pkg/afero"
	"github.com/sgl-project/ome-mtl/pkg/constants"
)

// DataInfo is what a DataReader reports for one problem.
type DataInfo struct {
	DataNum    int
	NumClasses int
}

// DataReader counts the rows and classes of a problem's data.
type DataReader interface {
	ReadDataInfo(ctx context.Context, p *Params, problem string, mode Mode) (DataInfo, error)
}

// DataReaderFunc adapts a function to DataReader.
type DataReaderFunc func(ctx context.Context, p *Params, problem string, mode Mode) (DataInfo, error)

func (f DataReaderFunc) ReadDataInfo(ctx context.Context, p *Params, problem string, mode Mode) (DataInfo, error) {
	return f(ctx, p, problem, mode)
}

type dataInfoFile struct {
	DataNum    map[string]int `json:"data_num"`
	NumClasses map[string]int `json:"num_classes"`
}

// GetDataInfo loads the data_info.json cache under base, reads counts for
// problems missing from it and, when training, rewrites the cache and sets
// DataNum to the total over problemList. It returns the cache path.
func (p *Params) GetDataInfo(ctx context.Context, problemList []string, base string) (string, error) {
	jsonPath := filepath.Join(base, constants.DataInfoFileName)

	data, err := afero.ReadFile(p.fs, jsonPath)
	switch {
	case err == nil:
		var cached dataInfoFile
		if err := json.Unmarshal(data, &cached); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		p.DataNumDict = cached.DataNum
		p.NumClasses = cached.NumClasses
	case p.Predicting:
		p.ensureDataMaps()
		return jsonPath, p.writeDataInfo(base)
	}
	p.ensureDataMaps()

	if p.Predicting {
		return jsonPath, nil
	}

	p.DataNum = 0
	for _, problem := range problemList {
		if _, ok := p.DataNumDict[problem]; !ok {
			reader := p.readers[problem]
			if reader == nil {
				return "", fmt.Errorf("no data reader registered for problem %s", problem)
			}
			info, err := reader.ReadDataInfo(ctx, p, problem, ModeTrain)
			if err != nil {
				return "", fmt.Errorf("failed to read data info of problem %s: %w", problem, err)
			}
			p.DataNumDict[problem] = info.DataNum
			p.NumClasses[problem] = info.NumClasses
			p.logger.
				WithField("problem", problem).
				WithField("data_num", info.DataNum).
				WithField("num_classes", info.NumClasses).
				Info("Read data info")
		}
		p.DataNum += p.DataNumDict[problem]
	}

	return jsonPath, p.writeDataInfo(base)
}

func (p *Params) ensureDataMaps() {
	if p.DataNumDict == nil {
		p.DataNumDict = map[string]int{}
	}
	if p.NumClasses == nil {
		p.NumClasses = map[string]int{}
	}
}

func (p *Params) writeDataInfo(base string) error {
	data, err := json.Marshal(dataInfoFile{DataNum: p.DataNumDict, NumClasses: p.NumClasses})
	if err != nil {
		return err
	}
	if err := p.fs.MkdirAll(base, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", base, err)
	}
	return fsutil.AtomicFileUpdate(p.fs, base, constants.DataInfoFileName, data, 0o644, p.logger)
}
