package exception

import "github.com/yanun0323/errors"

// Snapshot source errors
var (
	ErrMarketNotFound   = errors.New("source: market not found")
	ErrDecodeSnapshot   = errors.New("source: decode snapshot")
	ErrUnsupportedCodec = errors.New("source: unsupported file codec")
)

// Middleware errors
var (
	ErrStageOrder     = errors.New("middleware: stage reads a field no earlier stage writes")
	ErrStageDuplicate = errors.New("middleware: field written by more than one stage")
	ErrStagePanic     = errors.New("middleware: stage panicked")
)

// Inference errors
var (
	ErrScorerUnavailable = errors.New("inference: scorer unavailable")
	ErrEmptySlot         = errors.New("inference: empty prediction slot name")
)
