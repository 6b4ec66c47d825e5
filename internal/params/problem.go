package params

import (
	"fmt"
	"strings"
)

// ProblemType is the kind of task a problem trains.
type ProblemType string

const (
	ProblemTypeCls         ProblemType = "cls"
	ProblemTypeSeqTag      ProblemType = "seq_tag"
	ProblemTypeSeq2SeqTag  ProblemType = "seq2seq_tag"
	ProblemTypeSeq2SeqText ProblemType = "seq2seq_text"
	ProblemTypeMultiCls    ProblemType = "multi_cls"
	ProblemTypePretrain    ProblemType = "pretrain"
)

// ProblemTypes lists every accepted problem type.
var ProblemTypes = []ProblemType{
	ProblemTypeCls,
	ProblemTypeSeqTag,
	ProblemTypeSeq2SeqTag,
	ProblemTypeSeq2SeqText,
	ProblemTypeMultiCls,
	ProblemTypePretrain,
}

// Validate rejects anything outside ProblemTypes.
func (t ProblemType) Validate() error {
	for _, known := range ProblemTypes {
		if t == known {
			return nil
		}
	}
	names := make([]string, len(ProblemTypes))
	for i, known := range ProblemTypes {
		names[i] = string(known)
	}
	return fmt.Errorf("provided problem type not valid, expect [%s], got %q", strings.Join(names, " "), string(t))
}

// Mode selects which split a DataReader reads.
type Mode string

const (
	ModeTrain Mode = "train"
	ModeEval  Mode = "eval"
	ModeInfer Mode = "infer"
)
