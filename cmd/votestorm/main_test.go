package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/storage/memory"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:50051", cfg.addr)
	assert.Equal(t, choiceModeMixed, cfg.choice)

	cfg, err = parseConfig([]string{"-votes", "10", "-concurrency", "2", "-choice", " B ", "-battle", "b-1"})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.votes)
	assert.Equal(t, choiceModeB, cfg.choice)
	assert.Equal(t, "b-1", cfg.battleID)

	for _, args := range [][]string{
		{"-votes", "0"},
		{"-concurrency", "-1"},
		{"-choice", "c"},
		{"-timeout", "0s"},
		{"-unknown"},
	} {
		_, err := parseConfig(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestChoiceFor(t *testing.T) {
	assert.Equal(t, domain.ChoiceA, choiceFor(choiceModeA, 1))
	assert.Equal(t, domain.ChoiceB, choiceFor(choiceModeB, 0))
	assert.Equal(t, domain.ChoiceA, choiceFor(choiceModeMixed, 4))
	assert.Equal(t, domain.ChoiceB, choiceFor(choiceModeMixed, 5))
}

func TestRun_TallyGrowsByExactlyAcceptedVotes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.CreateBattle(ctx, domain.GenreBattle{
		ID: "battle-1", GenreA: "Rock", GenreB: "Jazz", VotesA: 3, VotesB: 1, Active: true,
	}))

	cfg := config{votes: 101, concurrency: 16, choice: choiceModeMixed, timeout: time.Second}
	result, err := run(ctx, cfg, store)
	require.NoError(t, err)

	assert.True(t, result.Consistent)
	assert.Equal(t, "battle-1", result.BattleID)
	assert.Equal(t, int64(101), result.Sent)
	assert.Equal(t, int64(51), result.Accepted["a"])
	assert.Equal(t, int64(50), result.Accepted["b"])
	assert.Equal(t, tally{A: 3, B: 1}, result.Before)
	assert.Equal(t, tally{A: 54, B: 51}, result.After)
	assert.Equal(t, int64(101), result.Codes["OK"])
}

func TestRun_NoActiveBattle(t *testing.T) {
	_, err := run(context.Background(), config{votes: 1, concurrency: 1, choice: choiceModeA, timeout: time.Second}, memory.NewStore())
	require.ErrorIs(t, err, domain.ErrNoActiveBattle)
}

type lossyBattles struct {
	domain.BattleRepository
}

// IncrementVote отвечает успехом, но не пишет голос.
func (lossyBattles) IncrementVote(context.Context, string, domain.Choice) error { return nil }

func TestRun_DetectsLostVotes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.CreateBattle(ctx, domain.GenreBattle{ID: "battle-1", GenreA: "Rock", GenreB: "Jazz", Active: true}))

	result, err := run(ctx, config{votes: 5, concurrency: 2, choice: choiceModeA, timeout: time.Second}, lossyBattles{store})
	require.True(t, errors.Is(err, errInconsistentTally))
	assert.False(t, result.Consistent)
}

func TestLatencySummary(t *testing.T) {
	ms := time.Millisecond
	summary := summarizeLatencies([]time.Duration{4 * ms, 1 * ms, 3 * ms, 2 * ms})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
	assert.Equal(t, 2.0, summary.P50)
	assert.Equal(t, 4.0, summary.P99)
	assert.Equal(t, latencySummary{}, summarizeLatencies(nil))
	assert.Equal(t, 7*ms, nearestRank([]time.Duration{7 * ms}, 99))
	assert.Equal(t, 1*ms, nearestRank([]time.Duration{1 * ms, 9 * ms}, 0))
}

func TestReportOutput(t *testing.T) {
	result := report{
		BattleID:   "battle-1",
		Sent:       2,
		Accepted:   map[string]int64{"a": 1, "b": 1},
		Before:     tally{},
		After:      tally{A: 1, B: 1},
		Consistent: true,
	}

	var out bytes.Buffer
	printReport(&out, result)
	assert.Contains(t, out.String(), "battle=battle-1 sent=2 accepted_a=1 accepted_b=1 failed=0 consistent=true")

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeJSONReport(path, result))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, result.After, decoded.After)
	assert.Error(t, writeJSONReport(".", result))
}
