package layers

import (
	"math"
	"math/rand"

	"tcav_lib/tensor"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kernel initialisers by name. The empty name means GlorotUniformInit.
const (
	GlorotUniformInit = "glorot_uniform"
	HeNormalInit      = "he_normal"
)

// ValidateInit reports whether name is a known kernel initialiser.
func ValidateInit(name string) error {
	switch name {
	case "", GlorotUniformInit, HeNormalInit:
		return nil
	}
	return errors.Errorf("unknown initializer %q (want %s or %s)", name, GlorotUniformInit, HeNormalInit)
}

func initKernel(name string, w *tensor.Tensor, fanIn, fanOut int, rng *rand.Rand) {
	if name == HeNormalInit {
		HeNormal(w, fanIn, rng)
		return
	}
	GlorotUniform(w, fanIn, fanOut, rng)
}

// Initializable is implemented by layers with trainable weights.
type Initializable interface {
	InitWeights(rng *rand.Rand)
}

// quantile draws from a distribution by inverting its CDF at a uniform
// sample strictly inside (0, 1).
func quantile(rng *rand.Rand, q func(float64) float64) float64 {
	p := rng.Float64()
	for p == 0 {
		p = rng.Float64()
	}
	return q(p)
}

// GlorotUniform fills t from U(-l, l) with l = sqrt(6/(fanIn+fanOut)).
func GlorotUniform(t *tensor.Tensor, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -limit, Max: limit}
	for i := range t.Data {
		t.Data[i] = quantile(rng, dist.Quantile)
	}
}

// HeNormal fills t from N(0, sqrt(2/fanIn)).
func HeNormal(t *tensor.Tensor, fanIn int, rng *rand.Rand) {
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(fanIn))}
	for i := range t.Data {
		t.Data[i] = quantile(rng, dist.Quantile)
	}
}

// InitAll initialises every Initializable layer in order from one seed.
func InitAll(seed int64, mods ...interface{}) {
	rng := rand.New(rand.NewSource(seed))
	for _, m := range mods {
		if l, ok := m.(Initializable); ok {
			l.InitWeights(rng)
		}
	}
}
