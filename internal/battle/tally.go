package battle

import "github.com/vladislavdragonenkov/barflow/internal/domain"

// Leader — кто впереди по голосам. Ничья — отдельное состояние.
type Leader string

const (
	LeaderA   Leader = "a"
	LeaderB   Leader = "b"
	LeaderTie Leader = "tie"
)

// Tally — производное отображение битвы, не хранится.
type Tally struct {
	BattleID string
	GenreA   string
	GenreB   string
	VotesA   int64
	VotesB   int64
	PercentA float64
	PercentB float64
	Leader   Leader
}

// Total возвращает общее число голосов.
func (t Tally) Total() int64 {
	return t.VotesA + t.VotesB
}

// Percent возвращает долю votes от total в процентах; при total == 0 результат 0.
func Percent(votes, total int64) float64 {
	if total < 1 {
		total = 1
	}
	return float64(votes) / float64(total) * 100
}

// NewTally вычисляет проценты и лидера для битвы.
func NewTally(b domain.GenreBattle) Tally {
	total := b.VotesA + b.VotesB
	leader := LeaderTie
	switch {
	case b.VotesA > b.VotesB:
		leader = LeaderA
	case b.VotesB > b.VotesA:
		leader = LeaderB
	}
	return Tally{
		BattleID: b.ID,
		GenreA:   b.GenreA,
		GenreB:   b.GenreB,
		VotesA:   b.VotesA,
		VotesB:   b.VotesB,
		PercentA: Percent(b.VotesA, total),
		PercentB: Percent(b.VotesB, total),
		Leader:   leader,
	}
}
