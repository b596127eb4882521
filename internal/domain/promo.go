package domain

import (
	"sort"
	"time"
)

// FlashPromo — единственное активное промо-сообщение.
type FlashPromo struct {
	ID        string
	Message   string
	Active    bool
	CreatedAt time.Time
}

// ResolveActivePromo выбирает одно промо из нескольких активных по тем же правилам.
func ResolveActivePromo(promos []FlashPromo) (FlashPromo, bool) {
	active := make([]FlashPromo, 0, len(promos))
	for _, p := range promos {
		if p.Active {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return FlashPromo{}, false
	}
	sort.SliceStable(active, func(i, j int) bool {
		return earlier(active[i].CreatedAt, active[i].ID, active[j].CreatedAt, active[j].ID)
	})
	return active[0], true
}
