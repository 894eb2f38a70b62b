package ckkswrapper

import (
	"github.com/pkg/errors"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// EncryptedVector is a real vector packed into consecutive ciphertexts of
// Slots() values each.
type EncryptedVector struct {
	Chunks []*rlwe.Ciphertext
	Len    int
}

// EncryptVector encrypts vec, splitting it across as many ciphertexts as needed.
func (h *HeContext) EncryptVector(vec []float64) (*EncryptedVector, error) {
	if len(vec) == 0 {
		return nil, errors.New("cannot encrypt an empty vector")
	}
	h.Lock()
	defer h.Unlock()
	slots := h.Params.MaxSlots()
	enc := &EncryptedVector{Len: len(vec)}
	for start := 0; start < len(vec); start += slots {
		end := min(start+slots, len(vec))
		ct, err := h.encryptLocked(vec[start:end])
		if err != nil {
			return nil, errors.WithMessagef(err, "chunk at %d", start)
		}
		enc.Chunks = append(enc.Chunks, ct)
	}
	return enc, nil
}

// DecryptVector recovers the plaintext values of enc.
func (h *HeContext) DecryptVector(enc *EncryptedVector) ([]float64, error) {
	h.Lock()
	defer h.Unlock()
	out := make([]float64, 0, enc.Len)
	for _, ct := range enc.Chunks {
		values, err := h.decryptLocked(ct)
		if err != nil {
			return nil, err
		}
		out = append(out, values[:min(len(values), enc.Len-len(out))]...)
	}
	return out, nil
}

// treeSum folds the first n slots of ct into slot 0 with log2(n) rotations.
func (h *HeContext) treeSum(ct *rlwe.Ciphertext, n int) error {
	for k := 1; k < n; k *= 2 {
		h.counts.Rotations++
		h.counts.Adds++
		rot, err := h.Evaluator.RotateNew(ct, k)
		if err != nil {
			return errors.Wrapf(err, "rotate by %d", k)
		}
		if err := h.Evaluator.Add(ct, rot, ct); err != nil {
			return err
		}
	}
	return nil
}

// InnerProductPlain returns <enc, plain>: each chunk is multiplied by the
// matching plaintext chunk, rescaled and tree-summed, and the partial sums
// are added before a single decryption of slot 0.
func (h *HeContext) InnerProductPlain(enc *EncryptedVector, plain []float64) (float64, error) {
	if len(plain) != enc.Len {
		return 0, errors.Errorf("inner product of %d encrypted and %d plain values", enc.Len, len(plain))
	}
	h.Lock()
	defer h.Unlock()

	slots := h.Params.MaxSlots()
	var acc *rlwe.Ciphertext
	for i, ct := range enc.Chunks {
		if NeedsRefresh(ct, 0) {
			refreshed, err := h.refreshLocked(ct)
			if err != nil {
				return 0, err
			}
			ct = refreshed
		}
		start := i * slots
		end := min(start+slots, len(plain))

		pt := hefloat.NewPlaintext(h.Params, ct.Level())
		if err := h.Encoder.Encode(plain[start:end], pt); err != nil {
			return 0, errors.Wrap(err, "encode plain chunk")
		}
		h.counts.Muls++
		h.counts.Rescales++
		prod, err := h.Evaluator.MulNew(ct, pt)
		if err != nil {
			return 0, errors.Wrap(err, "multiply")
		}
		if err := h.Evaluator.Rescale(prod, prod); err != nil {
			return 0, errors.Wrap(err, "rescale")
		}
		if err := h.treeSum(prod, end-start); err != nil {
			return 0, err
		}
		if acc == nil {
			acc = prod
			continue
		}
		h.counts.Adds++
		if err := h.Evaluator.Add(acc, prod, acc); err != nil {
			return 0, err
		}
	}

	values, err := h.decryptLocked(acc)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}
