package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/transport/grpcstore"
)

const (
	choiceModeA     = "a"
	choiceModeB     = "b"
	choiceModeMixed = "mixed"
)

type config struct {
	addr        string
	battleID    string
	votes       int
	concurrency int
	choice      string
	timeout     time.Duration
	outputPath  string
}

// report — итог прогона: сколько голосов отправлено и насколько вырос счётчик в хранилище.
type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	BattleID        string           `json:"battle_id"`
	Sent            int64            `json:"sent"`
	Accepted        map[string]int64 `json:"accepted"`
	Failed          int64            `json:"failed"`
	Codes           map[string]int64 `json:"codes"`
	Before          tally            `json:"before"`
	After           tally            `json:"after"`
	Consistent      bool             `json:"consistent"`
	RPS             float64          `json:"rps"`
	LatencyMs       latencySummary   `json:"latency_ms"`
}

type tally struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

var errInconsistentTally = errors.New("tally grew by a different amount than accepted votes")

func parseConfig(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("votestorm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "bar-service gRPC address")
	fs.StringVar(&cfg.battleID, "battle", "", "battle id (default: the displayed active battle)")
	fs.IntVar(&cfg.votes, "votes", 500, "number of votes to send")
	fs.IntVar(&cfg.concurrency, "concurrency", 50, "number of concurrent voters")
	fs.StringVar(&cfg.choice, "choice", choiceModeMixed, "vote choice: a|b|mixed")
	fs.DurationVar(&cfg.timeout, "timeout", 3*time.Second, "per-vote timeout")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.choice = strings.ToLower(strings.TrimSpace(cfg.choice))
	switch {
	case cfg.votes <= 0:
		return config{}, fmt.Errorf("votes must be > 0")
	case cfg.concurrency <= 0:
		return config{}, fmt.Errorf("concurrency must be > 0")
	case cfg.timeout <= 0:
		return config{}, fmt.Errorf("timeout must be > 0")
	case cfg.choice != choiceModeA && cfg.choice != choiceModeB && cfg.choice != choiceModeMixed:
		return config{}, fmt.Errorf("unsupported choice %q (use a|b|mixed)", cfg.choice)
	}
	return cfg, nil
}

// choiceFor распределяет голоса: в режиме mixed чётные за A, нечётные за B.
func choiceFor(mode string, index int) domain.Choice {
	switch mode {
	case choiceModeA:
		return domain.ChoiceA
	case choiceModeB:
		return domain.ChoiceB
	default:
		if index%2 == 0 {
			return domain.ChoiceA
		}
		return domain.ChoiceB
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := grpcstore.Dial(cfg.addr)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to bar-service")
	}
	defer client.Close()

	result, runErr := run(ctx, cfg, client)
	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Error("failed to write report")
		}
	}
	if runErr != nil {
		log.WithError(runErr).Fatal("vote storm failed")
	}
}

// run отправляет cfg.votes голосов в cfg.concurrency потоков и сверяет прирост счётчиков.
func run(ctx context.Context, cfg config, battles domain.BattleRepository) (report, error) {
	battle, err := findBattle(ctx, battles, cfg.battleID)
	if err != nil {
		return report{}, err
	}

	result := report{
		StartedAt: time.Now().UTC(),
		BattleID:  battle.ID,
		Accepted:  map[string]int64{string(domain.ChoiceA): 0, string(domain.ChoiceB): 0},
		Codes:     map[string]int64{},
		Before:    tally{A: battle.VotesA, B: battle.VotesB},
	}

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, cfg.votes)
		jobs      = make(chan int)
		wg        sync.WaitGroup
	)
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				choice := choiceFor(cfg.choice, i)
				callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
				started := time.Now()
				err := battles.IncrementVote(callCtx, battle.ID, choice)
				latency := time.Since(started)
				cancel()

				mu.Lock()
				result.Sent++
				latencies = append(latencies, latency)
				code := status.Code(err)
				result.Codes[code.String()]++
				if err == nil {
					result.Accepted[string(choice)]++
				} else {
					result.Failed++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i := 0; i < cfg.votes; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(result.StartedAt)
	result.DurationSeconds = elapsed.Seconds()
	if elapsed > 0 {
		result.RPS = float64(result.Sent) / elapsed.Seconds()
	}
	result.LatencyMs = summarizeLatencies(latencies)

	after, err := findBattle(context.WithoutCancel(ctx), battles, battle.ID)
	if err != nil {
		return result, fmt.Errorf("read final tally: %w", err)
	}
	result.After = tally{A: after.VotesA, B: after.VotesB}
	result.Consistent = result.After.A-result.Before.A == result.Accepted[string(domain.ChoiceA)] &&
		result.After.B-result.Before.B == result.Accepted[string(domain.ChoiceB)]
	if !result.Consistent {
		return result, errInconsistentTally
	}
	return result, ctx.Err()
}

// findBattle возвращает битву по id или отображаемую активную битву.
func findBattle(ctx context.Context, battles domain.BattleRepository, id string) (domain.GenreBattle, error) {
	active, err := battles.ListActiveBattles(ctx)
	if err != nil {
		return domain.GenreBattle{}, fmt.Errorf("list active battles: %w", err)
	}
	if id == "" {
		battle, ok := domain.ResolveActiveBattle(active)
		if !ok {
			return domain.GenreBattle{}, domain.ErrNoActiveBattle
		}
		return battle, nil
	}
	for _, battle := range active {
		if battle.ID == id {
			return battle, nil
		}
	}
	return domain.GenreBattle{}, fmt.Errorf("battle %s: %w", id, domain.ErrNoActiveBattle)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}

	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report) {
	_, _ = fmt.Fprintln(out, "Vote storm summary")
	_, _ = fmt.Fprintf(out, "battle=%s sent=%d accepted_a=%d accepted_b=%d failed=%d consistent=%t\n",
		result.BattleID,
		result.Sent,
		result.Accepted[string(domain.ChoiceA)],
		result.Accepted[string(domain.ChoiceB)],
		result.Failed,
		result.Consistent,
	)
	_, _ = fmt.Fprintf(out, "tally a: %d -> %d, b: %d -> %d\n", result.Before.A, result.After.A, result.Before.B, result.After.B)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f latency ms: p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.DurationSeconds,
		result.RPS,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)
}
