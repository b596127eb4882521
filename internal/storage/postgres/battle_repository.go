package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

type battleRepository struct {
	db *sql.DB
}

// NewBattleRepository создаёт PostgreSQL-реализацию BattleRepository.
func NewBattleRepository(store *Store) domain.BattleRepository {
	return &battleRepository{db: store.DB()}
}

func (r *battleRepository) ListActiveBattles(ctx context.Context) ([]domain.GenreBattle, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, genre_a_name, genre_b_name, votes_a, votes_b, is_active, created_at
		FROM genre_battles
		WHERE is_active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active battles: %w", err)
	}
	defer rows.Close()

	var battles []domain.GenreBattle
	for rows.Next() {
		var b domain.GenreBattle
		if err := rows.Scan(&b.ID, &b.GenreA, &b.GenreB, &b.VotesA, &b.VotesB, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan genre battle: %w", err)
		}
		b.CreatedAt = b.CreatedAt.UTC()
		battles = append(battles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genre battles: %w", err)
	}
	return battles, nil
}

// IncrementVote вызывает серверную функцию vote_for_genre: инкремент не теряется при конкуренции.
func (r *battleRepository) IncrementVote(ctx context.Context, battleID string, choice domain.Choice) error {
	if !choice.Valid() {
		return domain.ErrUnknownChoice
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `SELECT vote_for_genre($1, $2)`, battleID, string(choice)); err != nil {
		switch pgCode(err) {
		case pgNoDataFound:
			return fmt.Errorf("vote for %s: %w", battleID, domain.ErrNoActiveBattle)
		case pgInvalidParameter:
			return domain.ErrUnknownChoice
		}
		return fmt.Errorf("vote for %s: %w", battleID, err)
	}
	return nil
}

func (r *battleRepository) CreateBattle(ctx context.Context, b domain.GenreBattle) error {
	if strings.TrimSpace(b.ID) == "" {
		return &domain.ValidationError{Field: "battle_id", Reason: "is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO genre_battles (id, genre_a_name, genre_b_name, votes_a, votes_b, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			genre_a_name = EXCLUDED.genre_a_name,
			genre_b_name = EXCLUDED.genre_b_name,
			is_active = EXCLUDED.is_active
	`, b.ID, b.GenreA, b.GenreB, b.VotesA, b.VotesB, b.Active)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return &domain.ValidationError{Field: "votes", Reason: "must be non-negative"}
		}
		return fmt.Errorf("create genre battle: %w", err)
	}
	return nil
}

var _ domain.BattleRepository = (*battleRepository)(nil)
