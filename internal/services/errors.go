package services

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrNoChallenge      = errors.New("record has no challenge")
	ErrProcessingFailed = errors.New("could not process image")
	// ErrCaptionMissing means the caption response had no answer block.
	ErrCaptionMissing = errors.New("caption response has no output block")
)

// Pipeline stage names, used in errors, logs and metrics.
const (
	StageNormalize = "normalize"
	StageAnalysis  = "analysis"
	StageBBox      = "bbox"
	StageCaption   = "caption"
	StageSpeech    = "speech"
	StagePersist   = "persist"
	StageRead      = "read"
	StageExplain   = "explain"
	StageAccount   = "account"
)

// StageError is a fatal pipeline failure. It matches ErrProcessingFailed
// with errors.Is and unwraps to its cause for logging.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrProcessingFailed }

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
