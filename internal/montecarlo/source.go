package montecarlo

import "math/rand/v2"

// NormalSource produces standard-normal draws.
type NormalSource interface {
	NormFloat64() float64
}

// PCGSources returns a source factory giving every path its own PCG stream
// derived from seed.
func PCGSources(seed uint64) func(path int) NormalSource {
	return func(path int) NormalSource {
		return rand.New(rand.NewPCG(seed, uint64(path)))
	}
}
