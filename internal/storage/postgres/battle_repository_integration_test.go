package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

func TestBattleRepository_PostgresConcurrentVotes(t *testing.T) {
	store := storeForTest(t)
	repo := NewBattleRepository(store)
	ctx := context.Background()

	if err := repo.CreateBattle(ctx, domain.GenreBattle{
		ID: "battle-1", GenreA: "Rock", GenreB: "Jazz", Active: true,
	}); err != nil {
		t.Fatalf("create battle: %v", err)
	}

	const voters = 50
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementVote(ctx, "battle-1", domain.ChoiceA)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("increment vote: %v", err)
		}
	}

	battles, err := repo.ListActiveBattles(ctx)
	if err != nil {
		t.Fatalf("list active battles: %v", err)
	}
	if len(battles) != 1 {
		t.Fatalf("expected 1 active battle, got %d", len(battles))
	}
	if battles[0].VotesA != voters || battles[0].VotesB != 0 {
		t.Fatalf("unexpected tally: a=%d b=%d", battles[0].VotesA, battles[0].VotesB)
	}
}

func TestBattleRepository_PostgresErrors(t *testing.T) {
	store := storeForTest(t)
	repo := NewBattleRepository(store)
	ctx := context.Background()

	if err := repo.IncrementVote(ctx, "missing", domain.ChoiceA); !errors.Is(err, domain.ErrNoActiveBattle) {
		t.Fatalf("expected ErrNoActiveBattle, got %v", err)
	}
	if err := repo.IncrementVote(ctx, "missing", "c"); !errors.Is(err, domain.ErrUnknownChoice) {
		t.Fatalf("expected ErrUnknownChoice, got %v", err)
	}

	if err := repo.CreateBattle(ctx, domain.GenreBattle{ID: "battle-off", GenreA: "Pop", GenreB: "Metal"}); err != nil {
		t.Fatalf("create inactive battle: %v", err)
	}
	if err := repo.IncrementVote(ctx, "battle-off", domain.ChoiceB); !errors.Is(err, domain.ErrNoActiveBattle) {
		t.Fatalf("expected ErrNoActiveBattle for inactive battle, got %v", err)
	}

	battles, err := repo.ListActiveBattles(ctx)
	if err != nil {
		t.Fatalf("list active battles: %v", err)
	}
	if len(battles) != 0 {
		t.Fatalf("inactive battle must not be listed: %+v", battles)
	}
}
