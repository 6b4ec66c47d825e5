package params

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// maxRecordSize bounds a single JSONL record.
const maxRecordSize = 16 << 20

// FileDataReader counts a problem's rows from JSON lines files. Each line is
// an object with a "labels" field holding a scalar or a list of labels.
type FileDataReader struct {
	Fs    afero.Fs
	Files map[Mode]string
	Type  ProblemType
}

type record struct {
	Labels json.RawMessage `json:"labels"`
}

// ReadDataInfo implements DataReader.
func (r *FileDataReader) ReadDataInfo(ctx context.Context, p *Params, problem string, mode Mode) (DataInfo, error) {
	path, ok := r.Files[mode]
	if !ok || path == "" {
		return DataInfo{}, fmt.Errorf("no %s file configured for problem %s", mode, problem)
	}
	fs := r.Fs
	if fs == nil {
		fs = p.Fs()
	}

	f, err := fs.Open(path)
	if err != nil {
		return DataInfo{}, err
	}
	defer f.Close()

	labels := map[string]struct{}{}
	countLabels := r.Type != ProblemTypeSeq2SeqText && r.Type != ProblemTypePretrain

	info := DataInfo{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for line := 1; scanner.Scan(); line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return DataInfo{}, err
			}
		}
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		info.DataNum++
		if !countLabels {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return DataInfo{}, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := collectLabels(rec.Labels, labels); err != nil {
			return DataInfo{}, fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return DataInfo{}, err
	}

	switch r.Type {
	case ProblemTypeSeq2SeqText:
		info.NumClasses = p.DecoderVocabSize
		if info.NumClasses == 0 {
			info.NumClasses = p.VocabSize
		}
	case ProblemTypePretrain:
		info.NumClasses = p.VocabSize
	default:
		info.NumClasses = len(labels)
	}
	return info, nil
}

// collectLabels adds every leaf label of raw to seen. Lists are flattened so
// seq_tag and multi_cls records count their distinct tags.
func collectLabels(raw json.RawMessage, seen map[string]struct{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("record has no labels")
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if err := collectLabels(item, seen); err != nil {
				return err
			}
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		seen[s] = struct{}{}
		return nil
	}
	seen[string(raw)] = struct{}{}
	return nil
}
