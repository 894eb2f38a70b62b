package tcav

import (
	"tcav_lib/concept"
	"tcav_lib/split"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
)

// ErrEmptyClassSubset is returned when a class to be scored has no examples.
var ErrEmptyClassSubset = errors.New("empty class subset")

// Errors surfaced by the pipeline, gathered so callers can match them
// against a single package.
var (
	ErrInvalidLayerIndex = split.ErrInvalidLayerIndex
	ErrLabelCardinality  = concept.ErrLabelCardinality
	ErrShapeMismatch     = tensor.ErrShapeMismatch
)
