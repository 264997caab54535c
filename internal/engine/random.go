package engine

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// RandomSource yields uniform draws in [0, 1).
type RandomSource interface {
	Float64() float64
}

// RandomFactory returns the source used for one (agent, post) pair.
type RandomFactory func(agentID, postID string) RandomSource

// SeededRandom derives an independent PCG stream per (seed, agent, post).
// The same seed always produces the same draws for a pair, whatever order
// agents and posts are visited in.
func SeededRandom(seed int64) RandomFactory {
	return func(agentID, postID string) RandomSource {
		h := fnv.New64a()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(seed))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte(agentID))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(postID))
		sum := h.Sum64()
		return rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))
	}
}

// ClockSeed picks a seed from the current time, for RandomSeed 0.
func ClockSeed() int64 {
	return time.Now().UnixNano()
}

// FixedRandom replays draws in order and then repeats the last one.
// It is meant for tests and dry runs.
type FixedRandom struct {
	draws []float64
	next  int
}

// NewFixedRandom returns a source replaying draws.
func NewFixedRandom(draws ...float64) *FixedRandom {
	if len(draws) == 0 {
		draws = []float64{0}
	}
	return &FixedRandom{draws: draws}
}

// Float64 returns the next draw.
func (f *FixedRandom) Float64() float64 {
	v := f.draws[min(f.next, len(f.draws)-1)]
	f.next++
	return v
}

// FixedFactory hands every pair a fresh FixedRandom replaying draws.
func FixedFactory(draws ...float64) RandomFactory {
	return func(string, string) RandomSource {
		return NewFixedRandom(draws...)
	}
}
