// Package ckkswrapper bundles the CKKS keys, encoder and evaluator used to
// keep concept activation vectors encrypted while they are scored.
package ckkswrapper

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// DefaultLogN gives 4096 slots per ciphertext.
const DefaultLogN = 13

// HeContext holds a CKKS key set with every power-of-two rotation key, so
// ciphertexts can be tree-summed into slot 0.
//
// Encoder and Evaluator are not safe for concurrent use; callers that share
// a context go through Lock/Unlock or the helpers in this package, which do.
type HeContext struct {
	Params    hefloat.Parameters
	Encoder   *hefloat.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor
	Evaluator *hefloat.Evaluator

	mu     sync.Mutex
	counts OpCounts
}

// NewHeContext builds a context with DefaultLogN.
func NewHeContext() (*HeContext, error) {
	return NewHeContextWithLogN(DefaultLogN)
}

// NewHeContextWithLogN builds a context with ring degree 2^logN and two
// multiplicative levels at a 2^45 scale.
func NewHeContextWithLogN(logN int) (*HeContext, error) {
	params, err := hefloat.NewParametersFromLiteral(hefloat.ParametersLiteral{
		LogN:            logN,
		LogQ:            []int{55, 45, 45},
		LogP:            []int{61},
		LogDefaultScale: 45,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "ckks parameters for logN=%d", logN)
	}

	kgen := hefloat.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)

	var galEls []uint64
	for k := 1; k < params.MaxSlots(); k *= 2 {
		galEls = append(galEls, params.GaloisElement(k))
	}
	evk := rlwe.NewMemEvaluationKeySet(rlk, kgen.GenGaloisKeysNew(galEls, sk)...)

	slog.Debug("ckks context ready", "logN", logN, "slots", params.MaxSlots(), "levels", params.MaxLevel(), "rotations", len(galEls))
	return &HeContext{
		Params:    params,
		Encoder:   hefloat.NewEncoder(params),
		Encryptor: hefloat.NewEncryptor(params, pk),
		Decryptor: hefloat.NewDecryptor(params, sk),
		Evaluator: hefloat.NewEvaluator(params, evk),
	}, nil
}

// Slots is the number of real values packed per ciphertext.
func (h *HeContext) Slots() int { return h.Params.MaxSlots() }

// Lock serialises use of the encoder and evaluator.
func (h *HeContext) Lock()   { h.mu.Lock() }
func (h *HeContext) Unlock() { h.mu.Unlock() }

// encryptLocked encodes values at the top level and encrypts them.
func (h *HeContext) encryptLocked(values []float64) (*rlwe.Ciphertext, error) {
	pt := hefloat.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, pt); err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	h.counts.Encryptions++
	return h.Encryptor.EncryptNew(pt)
}

// decryptLocked decrypts ct and decodes all slots.
func (h *HeContext) decryptLocked(ct *rlwe.Ciphertext) ([]float64, error) {
	values := make([]float64, h.Params.MaxSlots())
	h.counts.Decryptions++
	if err := h.Encoder.Decode(h.Decryptor.DecryptNew(ct), values); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return values, nil
}

// Decrypt returns every slot of ct.
func (h *HeContext) Decrypt(ct *rlwe.Ciphertext) ([]float64, error) {
	h.Lock()
	defer h.Unlock()
	return h.decryptLocked(ct)
}
