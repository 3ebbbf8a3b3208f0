package board

import (
	"sort"

	"github.com/openarcade/scoreboard/internal/domain"
)

// Board holds the entries of a single game, one per identity.
type Board []domain.BoardEntry

// Collection holds one board per configured game. Its length is fixed at
// process start.
type Collection []Board

func NewCollection(games int) Collection {
	return make(Collection, games)
}

// Upsert replaces the score and proof of an existing entry for the identity,
// or appends a new entry carrying the identity's display data. Ranks are not
// touched; callers recompute after mutating.
func (b *Board) Upsert(id domain.Identity, score float64, proof string) {
	for i := range *b {
		if (*b)[i].ID == id.ID {
			(*b)[i].Score = score
			(*b)[i].Proof = proof
			return
		}
	}

	*b = append(*b, domain.BoardEntry{
		Place: len(*b) + 1,
		ID:    id.ID,
		Name:  id.Name,
		Score: score,
		Image: id.Image,
		Link:  id.Link,
		Proof: proof,
	})
}

// RecomputeRanks sorts entries by score descending and assigns dense ranks:
// equal scores share a place, the next distinct score takes the immediately
// following place. The sort is stable, so ties keep their insertion order.
func (b Board) RecomputeRanks() {
	sort.SliceStable(b, func(i, j int) bool {
		return b[i].Score > b[j].Score
	})

	place := 0
	for i := range b {
		if i == 0 || b[i-1].Score > b[i].Score {
			place++
		}
		b[i].Place = place
	}
}

// TopN returns a copy of the first n entries. The board is not mutated.
func (b Board) TopN(n int) []domain.BoardEntry {
	if n > len(b) {
		n = len(b)
	}

	top := make([]domain.BoardEntry, n)
	copy(top, b[:n])
	return top
}
