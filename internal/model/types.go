package model

import "errors"

var (
	ErrCheckpointNotFound = errors.New("model file not found")
	ErrMissingClasses     = errors.New("checkpoint does not contain 'classes' list")
	ErrClassCountMismatch = errors.New("model output size does not match class count")
	ErrInvalidInput       = errors.New("invalid model input")
)

// Metadata is the sidecar document stored next to a checkpoint that has no
// embedded class list.
type Metadata struct {
	Classes   []string `json:"classes"`
	ImageSize int      `json:"image_size,omitempty"`
}

// Checkpoint describes a resolved checkpoint file and its class list.
type Checkpoint struct {
	Path    string
	Classes []string
}

type Prediction struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}

type PredictionResponse struct {
	Predictions []Prediction `json:"predictions"`
}
