package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/hefloat"
)

// Refresh brings a ciphertext back to the maximum level by decrypting and
// re-encrypting it. It needs the secret key, so it only stands in for real
// bootstrapping when the key holder does the scoring.
//
// The refreshed ciphertext has the maximum level and default scale.
func (h *HeContext) Refresh(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	h.Lock()
	defer h.Unlock()
	return h.refreshLocked(ct)
}

func (h *HeContext) refreshLocked(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	h.counts.Refreshes++
	values, err := h.decryptLocked(ct)
	if err != nil {
		return nil, err
	}
	pt := hefloat.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, pt); err != nil {
		return nil, err
	}
	h.counts.Encryptions++
	return h.Encryptor.EncryptNew(pt)
}

// NeedsRefresh returns true if the ciphertext level is at or below the threshold.
// Default threshold is 1 level remaining.
func NeedsRefresh(ct *rlwe.Ciphertext, threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	return ct.Level() <= threshold
}
