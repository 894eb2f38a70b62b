package ckkswrapper

import "fmt"

// OpCounts tallies the homomorphic operations performed through a HeContext.
type OpCounts struct {
	Encryptions int `json:"encryptions" yaml:"encryptions"`
	Decryptions int `json:"decryptions" yaml:"decryptions"`
	Muls        int `json:"muls" yaml:"muls"`
	Rescales    int `json:"rescales" yaml:"rescales"`
	Rotations   int `json:"rotations" yaml:"rotations"`
	Adds        int `json:"adds" yaml:"adds"`
	Refreshes   int `json:"refreshes" yaml:"refreshes"`
}

func (c OpCounts) String() string {
	return fmt.Sprintf("Encs: %d, Decs: %d, Muls: %d, Rescales: %d, Rotates: %d, Adds: %d, Refreshes: %d",
		c.Encryptions, c.Decryptions, c.Muls, c.Rescales, c.Rotations, c.Adds, c.Refreshes)
}

// Counts returns the operations performed since the context was built or
// last reset.
func (h *HeContext) Counts() OpCounts {
	h.Lock()
	defer h.Unlock()
	return h.counts
}

// ResetCounts sets all operation counters to zero.
func (h *HeContext) ResetCounts() {
	h.Lock()
	defer h.Unlock()
	h.counts = OpCounts{}
}
