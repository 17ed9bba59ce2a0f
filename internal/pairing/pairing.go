package pairing

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/torch-to-flame/walkmate/types"
)

// palette is the fixed set of colors a pair's display tag is drawn from.
var palette = []string{
	"#FF5733", "#33FF57", "#3357FF", "#FF33A8", "#33FFF5",
	"#F5FF33", "#C733FF", "#33FFA8", "#FFC733", "#FF9933",
}

// maxPairNumber bounds the random display number (1..maxPairNumber).
const maxPairNumber = 100

// NewPair builds a pair with a position-scoped ID and a freshly drawn display tag.
//
// Pair IDs are only unique within one partition; they are regenerated on every
// rotation and carry no identity across rotations.
func NewPair(rng *rand.Rand, index int, users []string) types.Pair {
	return types.Pair{
		ID:       fmt.Sprintf("pair-%d", index),
		Users:    users,
		Color:    palette[rng.IntN(len(palette))],
		Number:   rng.IntN(maxPairNumber) + 1,
		IsTriple: len(users) == 3,
	}
}

// Rotate partitions userIDs into a fresh set of pairs.
//
// The input is shuffled with an unbiased Fisher-Yates shuffle, then bound two
// at a time into pairs. An odd count is resolved by binding the last three
// shuffled entries into one triple, so rotation output never contains a
// 1-user pair for inputs of 2 or more.
//
// A single-user input yields one 1-user pair; that path only serves the
// join-time flow, which parks a participant until a partner arrives. The
// rotation orchestrator never calls Rotate with fewer than 2 users.
//
// No side effects: userIDs is not mutated, and every input user appears in
// exactly one output pair.
func Rotate(rng *rand.Rand, userIDs []string) []types.Pair {
	if len(userIDs) == 0 {
		return nil
	}

	shuffled := make([]string, len(userIDs))
	copy(shuffled, userIDs)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if len(shuffled) == 1 {
		return []types.Pair{NewPair(rng, 0, shuffled)}
	}

	var triple []string
	if len(shuffled)%2 == 1 {
		triple = shuffled[len(shuffled)-3:]
		shuffled = shuffled[:len(shuffled)-3]
	}

	pairs := make([]types.Pair, 0, len(shuffled)/2+1)
	for i := 0; i < len(shuffled); i += 2 {
		pairs = append(pairs, NewPair(rng, i/2, shuffled[i:i+2]))
	}

	if triple != nil {
		pairs = append(pairs, NewPair(rng, len(pairs), triple))
	}

	return pairs
}
