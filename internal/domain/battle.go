package domain

import (
	"sort"
	"time"
)

// Choice — вариант голосования в битве жанров.
type Choice string

const (
	ChoiceA Choice = "a"
	ChoiceB Choice = "b"
)

// Valid проверяет, что выбран один из двух вариантов.
func (c Choice) Valid() bool {
	return c == ChoiceA || c == ChoiceB
}

// GenreBattle — голосование между двумя жанрами. Счётчики меняются только атомарным инкрементом в хранилище.
type GenreBattle struct {
	ID        string
	GenreA    string
	GenreB    string
	VotesA    int64
	VotesB    int64
	Active    bool
	CreatedAt time.Time
}

// Votes возвращает счётчик для варианта.
func (b GenreBattle) Votes(choice Choice) int64 {
	if choice == ChoiceB {
		return b.VotesB
	}
	return b.VotesA
}

// ResolveActiveBattle выбирает одну битву из нескольких активных: самая ранняя по created_at, затем по id.
func ResolveActiveBattle(battles []GenreBattle) (GenreBattle, bool) {
	active := make([]GenreBattle, 0, len(battles))
	for _, b := range battles {
		if b.Active {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return GenreBattle{}, false
	}
	sort.SliceStable(active, func(i, j int) bool {
		return earlier(active[i].CreatedAt, active[i].ID, active[j].CreatedAt, active[j].ID)
	})
	return active[0], true
}

func earlier(at time.Time, id string, bt time.Time, bid string) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return id < bid
}
