package domain

// Identity is a verified external account returned by the identity provider.
// Immutable once obtained within one verification event.
type Identity struct {
	ID    string
	Name  string
	Image string
	Link  string
}

// Board represents the ranked entries of a single game.
// Entries are sorted by score in descending order; Place carries the dense
// rank assigned by the last recompute.
type Board struct {
	Game    int
	Entries []BoardEntry
}

type BoardEntry struct {
	Place int     `json:"place"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Image string  `json:"image"`
	Link  string  `json:"link"`
	Proof string  `json:"proof"`
}
