package controller

import (
	"math/rand"
)

// Uniform draws integers uniformly from [min, max], both ends included.
// Implementations need not be safe for concurrent use.
type Uniform interface {
	Integer(min, max uint32) uint32
}

type randUniform struct {
	r *rand.Rand
}

func NewUniform(seed int64) Uniform {
	return &randUniform{r: rand.New(rand.NewSource(seed))}
}

func (u *randUniform) Integer(min, max uint32) uint32 {
	if max <= min {
		return min
	}
	return min + uint32(u.r.Int63n(int64(max-min)+1))
}
