package tcav

import (
	"tcav_lib/concept"
	"tcav_lib/core/ckkswrapper"
	"tcav_lib/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Projector maps a head-input gradient to its component along a CAV.
// Implementations must be safe for concurrent use.
type Projector interface {
	Project(grad []float64) (float64, error)
	Dim() int
}

// PlainProjector computes the dot product in the clear.
type PlainProjector struct {
	cav []float64
}

func NewPlainProjector(cav *concept.CAV) *PlainProjector {
	return &PlainProjector{cav: append([]float64(nil), cav.Vector...)}
}

func (p *PlainProjector) Dim() int { return len(p.cav) }

func (p *PlainProjector) Project(grad []float64) (float64, error) {
	if len(grad) != len(p.cav) {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "gradient has %d values, cav has %d", len(grad), len(p.cav))
	}
	return floats.Dot(grad, p.cav), nil
}

// EncryptedProjector keeps the CAV as CKKS ciphertexts and multiplies them
// by plaintext gradients. Results carry CKKS noise of roughly 1e-6, so
// sensitivities that close to zero may change sign.
type EncryptedProjector struct {
	he  *ckkswrapper.HeContext
	enc *ckkswrapper.EncryptedVector
}

// NewEncryptedProjector encrypts cav under he's public key.
func NewEncryptedProjector(he *ckkswrapper.HeContext, cav *concept.CAV) (*EncryptedProjector, error) {
	enc, err := he.EncryptVector(cav.Vector)
	if err != nil {
		return nil, errors.WithMessage(err, "encrypting cav")
	}
	return &EncryptedProjector{he: he, enc: enc}, nil
}

func (p *EncryptedProjector) Dim() int { return p.enc.Len }

func (p *EncryptedProjector) Project(grad []float64) (float64, error) {
	if len(grad) != p.enc.Len {
		return 0, errors.Wrapf(tensor.ErrShapeMismatch, "gradient has %d values, cav has %d", len(grad), p.enc.Len)
	}
	return p.he.InnerProductPlain(p.enc, grad)
}
