package quiz

import (
	"math/rand"
	"unicode/utf16"
)

const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
	lcgModulus    = 1 << 32
)

// Order returns a permutation of items that depends only on items and seed.
// The same seed yields the same order on every platform, including browser
// clients that hash the seed with charCodeAt; items is left untouched.
func Order[T any](items []T, seed string) []T {
	out := append([]T(nil), items...)
	rng := newSeqRand(hashSeed(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := int(rng.next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ShuffleLocal reorders items with a non-reproducible source. Use it only for
// throwaway client-side reordering, never for an order a user can reload.
func ShuffleLocal[T any](items []T) []T {
	out := append([]T(nil), items...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SessionSeed is the default seed for a user's run through a certification.
func SessionSeed(slug, userID string) string {
	return slug + "-" + userID
}

// ChoiceSeed keeps a question's choice order independent of where the question
// landed in the exam order.
func ChoiceSeed(sessionSeed, questionID string) string {
	return sessionSeed + ":" + questionID
}

func hashSeed(seed string) uint32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return uint32(v)
}

type seqRand struct {
	state uint32
}

func newSeqRand(seed uint32) *seqRand {
	return &seqRand{state: seed}
}

func (r *seqRand) next() float64 {
	r.state = r.state*lcgMultiplier + lcgIncrement
	return float64(r.state) / lcgModulus
}
