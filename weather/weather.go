// Package weather builds the per-turn weather schedule of a game.
package weather

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
)

// Code is the weather of a single turn. Its value is the water collected that turn.
type Code uint8

const (
	Calm Code = iota
	Windy
	Rainy
	Downpour
)

func (c Code) String() string {
	switch c {
	case Calm:
		return "Calm"
	case Windy:
		return "Windy"
	case Rainy:
		return "Rainy"
	case Downpour:
		return "Downpour"
	default:
		return "Unknown"
	}
}

// MarshalJSON keeps codes numeric; a []Code would otherwise encode as base64.
func (c Code) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(c), 10), nil
}

const (
	// StormCode is the card shuffled in on the storm turn.
	StormCode = Rainy
	// StormWindowStart and StormWindowEnd bound the storm turn, both inclusive.
	StormWindowStart = 6
	StormWindowEnd   = 11
)

// Deck is the set of weather cards shuffled at game creation.
var Deck = []Code{Calm, Calm, Calm, Windy, Windy, Windy, Rainy, Rainy, Rainy, Downpour, Downpour}

// ErrTurnOutOfRange means a turn index has no schedule entry. It signals a broken
// turn counter, never bad client input.
var ErrTurnOutOfRange = errors.New("turn out of weather schedule range")

// Rand is the random source used for shuffles and draws.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// NewRand returns a generator seeded from crypto/rand.
func NewRand() (*rand.Rand, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewSeededRand(int64(binary.LittleEndian.Uint64(b[:]))), nil
}

// NewSeededRand returns a deterministic generator.
func NewSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Schedule is the full weather of a game plus the turn the storm hits.
// StormTurn is authoritative: the storm card shares its code with ordinary rain.
type Schedule struct {
	Codes     []Code
	StormTurn int
}

// Generate shuffles the deck and inserts the storm card at a random turn in the
// storm window.
func Generate(rng Rand) Schedule {
	remaining := make([]Code, len(Deck))
	copy(remaining, Deck)

	codes := make([]Code, 0, len(Deck)+1)
	for len(remaining) > 0 {
		i := rng.Intn(len(remaining))
		codes = append(codes, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}

	storm := StormWindowStart + rng.Intn(StormWindowEnd-StormWindowStart+1)
	codes = append(codes, 0)
	copy(codes[storm+1:], codes[storm:])
	codes[storm] = StormCode

	return Schedule{Codes: codes, StormTurn: storm}
}

// Len is the number of turns in the game.
func (s Schedule) Len() int {
	return len(s.Codes)
}

// At returns the weather of the given turn.
func (s Schedule) At(turn int) (Code, error) {
	if turn < 0 || turn >= len(s.Codes) {
		return 0, fmt.Errorf("%w: turn %d of %d", ErrTurnOutOfRange, turn, len(s.Codes))
	}
	return s.Codes[turn], nil
}

// IsStorm reports whether the storm hits on the given turn.
func (s Schedule) IsStorm(turn int) bool {
	return turn == s.StormTurn
}
