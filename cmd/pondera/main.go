// Command pondera answers a research question by deliberation: it grows a
// reasoning tree under a token budget, banks extracted facts across tiers,
// and reports the best-supported path.
//
// Usage:
//
//	pondera -question "Will grid-scale storage outpace demand growth?" \
//	        -config pondera.yaml -budget 50000 -json report.json
//
// With -offline the run uses a deterministic stub service and needs no API
// key. A finished run can be checkpointed with -save and picked up again
// with -resume <run-id>.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pondera-ai/pondera/pkg/axiom"
	"github.com/pondera-ai/pondera/pkg/budget"
	"github.com/pondera-ai/pondera/pkg/cache"
	"github.com/pondera-ai/pondera/pkg/config"
	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/llms"
	"github.com/pondera-ai/pondera/pkg/logging"
	"github.com/pondera-ai/pondera/pkg/reward"
	"github.com/pondera-ai/pondera/pkg/search"
	"github.com/pondera-ai/pondera/pkg/session"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration")
		question    = flag.String("question", "", "Research question to deliberate")
		budgetFlag  = flag.Int64("budget", 0, "Override total token budget")
		offline     = flag.Bool("offline", false, "Use the offline stub service")
		jsonPath    = flag.String("json", "", "Write the final report as JSON to this file")
		saveSession = flag.Bool("save", false, "Checkpoint the finished run to the session store")
		resumeID    = flag.String("resume", "", "Resume a saved run by id instead of starting fresh")
		listRuns    = flag.Bool("list", false, "List saved runs and exit")
	)
	flag.Parse()

	if err := run(*configPath, *question, *budgetFlag, *offline, *jsonPath, *saveSession, *resumeID, *listRuns); err != nil {
		fmt.Fprintf(os.Stderr, "pondera: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, question string, budgetOverride int64, offline bool, jsonPath string, saveSession bool, resumeID string, listRuns bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if budgetOverride > 0 {
		cfg.Budget.Total = budgetOverride
	}
	if offline {
		cfg.Offline = true
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if listRuns {
		return printSavedRuns(ctx, cfg, logger)
	}
	if question == "" && resumeID == "" {
		return fmt.Errorf("a -question (or -resume) is required")
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	var report *search.Report
	if resumeID != "" {
		report, err = app.resume(ctx, resumeID)
	} else {
		report, err = app.engine.Run(ctx, question)
	}
	if err != nil {
		return err
	}

	if saveSession {
		if err := app.save(ctx); err != nil {
			return err
		}
		fmt.Printf("Saved session %s\n", report.RunID)
	}

	if jsonPath != "" {
		if err := writeJSON(jsonPath, report); err != nil {
			return err
		}
	}
	printReport(report)
	return nil
}

// app owns the assembled component stack for one run.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	state    *core.RunState
	store    facts.Store
	governor *budget.Governor
	engine   *search.Engine
	sessions *session.Store
}

func buildApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	state := core.NewRunState(nil, logger)

	service, err := buildService(cfg, logger)
	if err != nil {
		return nil, err
	}

	evaluator, err := axiom.NewEvaluator(cfg.Axioms, service, state, 0)
	if err != nil {
		return nil, err
	}

	store, err := buildFactStore(cfg, evaluator)
	if err != nil {
		return nil, err
	}

	governor, err := budget.NewGovernor(cfg.Budget, logger)
	if err != nil {
		return nil, err
	}

	scorer, err := reward.NewScorer(cfg.Reward, evaluator, service, state)
	if err != nil {
		return nil, err
	}

	engine, err := search.NewEngine(cfg.Search, search.Dependencies{
		Service:        service,
		Store:          store,
		Governor:       governor,
		Evaluator:      evaluator,
		Scorer:         scorer,
		ConflictConfig: cfg.Conflict,
		State:          state,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		state:    state,
		store:    store,
		governor: governor,
		engine:   engine,
		sessions: sessions,
	}, nil
}

func buildService(cfg *config.Config, logger *logging.Logger) (core.GenerationService, error) {
	var inner core.GenerationService
	if cfg.Offline {
		inner = llms.NewStubService()
	} else {
		svc, err := llms.NewAnthropicService(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		inner = svc
	}

	responseCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	return cache.Wrap(inner, responseCache, logger), nil
}

func buildFactStore(cfg *config.Config, evaluator *axiom.Evaluator) (facts.Store, error) {
	policy := cfg.Facts.Policy(evaluator)
	if cfg.Facts.Backend == "sqlite" {
		return facts.NewSQLiteStore(cfg.Facts.Path, policy)
	}
	return facts.NewMemoryStore(policy), nil
}

func (a *app) resume(ctx context.Context, runID string) (*search.Report, error) {
	snap, err := a.sessions.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := session.Restore(ctx, snap, a.engine, a.store, a.governor, a.state); err != nil {
		return nil, err
	}
	a.logger.Info(ctx, "Resuming run %s (%d nodes, %d facts)", runID, len(snap.Nodes), len(snap.Facts))
	return a.engine.Resume(ctx)
}

func (a *app) save(ctx context.Context) error {
	snap, err := session.Capture(ctx, a.engine, a.store, a.governor, a.state)
	if err != nil {
		return err
	}
	return a.sessions.Save(ctx, snap)
}

func (a *app) close() {
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn(context.Background(), "Closing session store: %v", err)
	}
}

func printSavedRuns(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	sessions, err := session.NewStore(cfg.Session, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()

	ids, err := sessions.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No saved runs.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func printReport(r *search.Report) {
	fmt.Printf("\nRun %s finished in %s (%d iterations)\n", r.RunID, r.WallTime, r.Iterations)
	fmt.Printf("Nodes: %d created, %d expanded, %d pruned\n", r.NodesCreated, r.NodesExpanded, r.NodesPruned)
	fmt.Printf("Budget: %d/%d tokens consumed\n", r.Budget.Consumed, r.Budget.Total)

	if len(r.FactTierCounts) > 0 {
		fmt.Printf("Facts: unverified=%d corroborated=%d verified=%d\n",
			r.FactTierCounts["unverified"], r.FactTierCounts["corroborated"], r.FactTierCounts["verified"])
	}
	if len(r.ConflictCounts) > 0 {
		fmt.Printf("Conflicts: %v\n", r.ConflictCounts)
	}

	fmt.Println("\nBest path:")
	for i, entry := range r.BestPath {
		indent := ""
		for j := 0; j < i; j++ {
			indent += "  "
		}
		fmt.Printf("%s- %s\n", indent, entry.Question)
		if entry.Answer != "" {
			fmt.Printf("%s  %s\n", indent, entry.Answer)
		}
	}
}

func writeJSON(path string, report *search.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
