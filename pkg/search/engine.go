package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pondera-ai/pondera/pkg/axiom"
	"github.com/pondera-ai/pondera/pkg/budget"
	"github.com/pondera-ai/pondera/pkg/conflict"
	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/extract"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/logging"
	"github.com/pondera-ai/pondera/pkg/prior"
	"github.com/pondera-ai/pondera/pkg/reward"
	"github.com/pondera-ai/pondera/pkg/utils"
)

// Dependencies wires the engine to the rest of the system. Service, Store,
// and Governor are required; the rest default to sensible no-ops or are
// constructed internally.
type Dependencies struct {
	Service   core.GenerationService
	Store     facts.Store
	Governor  *budget.Governor
	Evaluator *axiom.Evaluator
	Scorer    *reward.Scorer
	Estimator *prior.Estimator
	Extractor *extract.Extractor

	ConflictConfig conflict.Config

	State  *core.RunState
	Logger *logging.Logger
	Trace  *logging.TraceSession
}

// Engine owns the reasoning tree. It is the tree's single writer; everything
// else reads through snapshots or the arena's shared lock.
type Engine struct {
	cfg      Config
	tree     *Tree
	service  core.GenerationService
	store    facts.Store
	governor *budget.Governor

	evaluator *axiom.Evaluator
	scorer    *reward.Scorer
	estimator *prior.Estimator
	extractor *extract.Extractor
	detector  *conflict.Detector
	resolver  *conflict.Resolver

	state  *core.RunState
	logger *logging.Logger
	trace  *logging.TraceSession

	mu        sync.Mutex
	iteration int
	expanded  int
	pruned    int
	conflicts []*conflict.Conflict
}

// NewEngine assembles the search loop. The engine registers itself as the
// conflict resolver's escalator so unresolvable contradictions become
// research nodes.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Service == nil {
		return nil, errors.New(errors.InvalidInput, "search engine requires a generation service")
	}
	if deps.Store == nil {
		return nil, errors.New(errors.InvalidInput, "search engine requires a fact store")
	}
	if deps.Governor == nil {
		return nil, errors.New(errors.InvalidInput, "search engine requires a budget governor")
	}
	if deps.State == nil {
		deps.State = core.NewRunState(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetLogger()
	}
	if deps.Scorer == nil {
		scorer, err := reward.NewScorer(reward.DefaultConfig(), deps.Evaluator, deps.Service, deps.State)
		if err != nil {
			return nil, err
		}
		deps.Scorer = scorer
	}
	if deps.Estimator == nil {
		deps.Estimator = prior.NewEstimator(deps.Service, deps.State, cfg.PriorTimeout)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewExtractor(deps.Service, deps.Store, deps.State, deps.Logger, cfg.ExtractionTimeout)
	}

	e := &Engine{
		cfg:       cfg,
		tree:      NewTree(),
		service:   deps.Service,
		store:     deps.Store,
		governor:  deps.Governor,
		evaluator: deps.Evaluator,
		scorer:    deps.Scorer,
		estimator: deps.Estimator,
		extractor: deps.Extractor,
		detector:  conflict.NewDetector(deps.State.Clock),
		state:     deps.State,
		logger:    deps.Logger,
		trace:     deps.Trace,
	}
	e.resolver = conflict.NewResolver(deps.Store, deps.ConflictConfig, e, deps.Logger, deps.State.Clock)
	return e, nil
}

// Tree exposes the arena for reports and persistence.
func (e *Engine) Tree() *Tree { return e.tree }

// CreateRoot creates the root node for a question.
func (e *Engine) CreateRoot(question string) (int, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return 0, errors.New(errors.InvalidInput, "question cannot be empty")
	}
	return e.tree.AddRoot(question)
}

const decomposePrompt = `Break the following research question into at most %d focused sub-questions that together would answer it. Number them 1., 2., 3. and so on, one per line. Output only the numbered list.

Question: %s`

// Decompose splits a node's question into sub-questions and creates child
// nodes. Fails with NotExpandable when the node already has children; a
// generation failure yields zero children and marks the node exhausted so
// selection moves on.
func (e *Engine) Decompose(ctx context.Context, nodeID int, branchingFactor int) ([]int, error) {
	if branchingFactor <= 0 {
		branchingFactor = e.cfg.BranchingFactor
	}

	node, err := e.tree.Get(nodeID)
	if err != nil {
		return nil, err
	}
	if len(node.Children) > 0 {
		return nil, errors.WithFields(
			errors.New(errors.NotExpandable, "node already has children"),
			errors.Fields{"node_id": nodeID},
		)
	}
	if node.Status == StatusPruned {
		return nil, errors.WithFields(
			errors.New(errors.NotExpandable, "pruned nodes cannot be decomposed"),
			errors.Fields{"node_id": nodeID},
		)
	}

	questions := e.generateSubQuestions(ctx, node.Question, branchingFactor)
	if len(questions) == 0 {
		if err := e.tree.Update(nodeID, func(n *Node) { n.Exhausted = true }); err != nil {
			return nil, err
		}
		return nil, nil
	}

	ids := make([]int, 0, len(questions))
	for _, q := range questions {
		id, err := e.tree.AddChild(nodeID, q)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	e.logger.Debug(ctx, "decomposed node %d into %d sub-questions", nodeID, len(ids))
	return ids, nil
}

func (e *Engine) generateSubQuestions(ctx context.Context, question string, limit int) []string {
	resp, err := e.service.Generate(ctx,
		fmt.Sprintf(decomposePrompt, limit, question),
		core.WithCapability(core.CapabilityReasoning),
		core.WithQuality(core.QualityBalanced),
	)
	if err != nil {
		if errors.CodeOf(err) == errors.Timeout {
			e.state.RecordTimeout()
		}
		e.logger.Warn(ctx, "decomposition call failed: %v", err)
		return nil
	}

	questions := utils.ParseNumberedList(resp.Content)
	if len(questions) == 0 {
		e.state.RecordParseFailure()
		return nil
	}
	if len(questions) > limit {
		questions = questions[:limit]
	}
	return questions
}

// Backpropagate adds value along the path from nodeID to the root,
// incrementing each visit count.
func (e *Engine) Backpropagate(nodeID int, value float64) error {
	return e.tree.Backpropagate(nodeID, value)
}

// BestPath returns the root-to-leaf path following highest visit counts, ties
// broken by highest accumulated value.
func (e *Engine) BestPath() []int {
	nodes := e.tree.Snapshot()
	if len(nodes) == 0 {
		return nil
	}

	path := []int{0}
	current := nodes[0]
	for len(current.Children) > 0 {
		var best *Node
		for _, childID := range current.Children {
			child := nodes[childID]
			if best == nil ||
				child.Visits > best.Visits ||
				(child.Visits == best.Visits && child.Value > best.Value) {
				best = child
			}
		}
		path = append(path, best.ID)
		current = best
	}
	return path
}

// Prune marks a node pruned by operator signal.
func (e *Engine) Prune(nodeID int, reason PruneReason) error {
	if reason == "" {
		reason = PruneOperator
	}
	return e.prune(context.Background(), nodeID, reason)
}

func (e *Engine) prune(ctx context.Context, nodeID int, reason PruneReason) error {
	err := e.tree.Update(nodeID, func(n *Node) {
		n.Status = StatusPruned
		n.PruneReason = reason
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.pruned++
	e.mu.Unlock()
	e.logger.Info(ctx, "pruned node %d: %s", nodeID, reason)
	if e.trace != nil {
		_ = e.trace.EmitPrune(nodeID, string(reason))
	}
	return nil
}

// EscalateConflict implements conflict.Escalator: a contradiction neither
// authority nor recency could settle becomes a dedicated research node under
// the root, pinned to maximum prior so selection reaches it quickly.
func (e *Engine) EscalateConflict(ctx context.Context, c *conflict.Conflict, a, b *facts.Fact) error {
	question := fmt.Sprintf(
		"Resolve the contradiction about %q: one source claims %q, another claims %q. Which is correct, and why?",
		a.Subject,
		strings.TrimSpace(a.Relation+" "+a.Object),
		strings.TrimSpace(b.Relation+" "+b.Object),
	)

	id, err := e.tree.AddChild(0, question)
	if err != nil {
		return err
	}
	if err := e.tree.Update(id, func(n *Node) { n.Research = true }); err != nil {
		return err
	}
	e.estimator.Pin(id, 1.0)
	e.logger.Info(ctx, "spawned research node %d for conflict %s", id, c.ID)
	return nil
}

// summarizePath renders the questions and answers from the root down to a
// node, the compact context the prior estimator and expansion prompts use.
func (e *Engine) summarizePath(nodeID int) string {
	path, err := e.tree.Path(nodeID)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, id := range path {
		_ = e.tree.Read(id, func(n *Node) {
			fmt.Fprintf(&b, "Q: %s\n", n.Question)
			if n.Answer != "" {
				fmt.Fprintf(&b, "A: %s\n", utils.TruncateString(n.Answer, 300))
			}
		})
	}
	return strings.TrimSpace(b.String())
}

// Report summarizes a finished run.
type Report struct {
	RunID      string        `json:"run_id"`
	Question   string        `json:"question"`
	BestPath   []PathEntry   `json:"best_path"`
	WallTime   time.Duration `json:"wall_time"`
	Iterations int           `json:"iterations"`

	NodesCreated  int `json:"nodes_created"`
	NodesExpanded int `json:"nodes_expanded"`
	NodesPruned   int `json:"nodes_pruned"`

	Timeouts      int64 `json:"timeouts"`
	ParseFailures int64 `json:"parse_failures"`
	Generations   int64 `json:"generations"`

	FactTierCounts map[string]int `json:"fact_tier_counts"`
	ConflictCounts map[string]int `json:"conflict_counts"`

	Budget budget.Report `json:"budget"`
}

// PathEntry is one hop of the best path with its answer.
type PathEntry struct {
	NodeID   int     `json:"node_id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer,omitempty"`
	Visits   int64   `json:"visits"`
	Value    float64 `json:"value"`
}

// Conflicts returns the conflicts recorded so far.
func (e *Engine) Conflicts() []*conflict.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*conflict.Conflict(nil), e.conflicts...)
}

// RestoreConflicts replaces the recorded conflict list when a checkpointed
// run is reinstated, so the final report counts conflicts from before the
// checkpoint too.
func (e *Engine) RestoreConflicts(cs []*conflict.Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflicts = append([]*conflict.Conflict(nil), cs...)
}

func (e *Engine) buildReport(ctx context.Context, started time.Time) *Report {
	counters := e.state.Counters()

	report := &Report{
		RunID:          e.state.RunID,
		WallTime:       e.state.Clock.Now().Sub(started),
		NodesCreated:   e.tree.Len(),
		Timeouts:       counters.Timeouts,
		ParseFailures:  counters.ParseFailures,
		Generations:    counters.Generations,
		FactTierCounts: map[string]int{},
		ConflictCounts: map[string]int{},
		Budget:         e.governor.Report(),
	}

	e.mu.Lock()
	report.Iterations = e.iteration
	report.NodesExpanded = e.expanded
	report.NodesPruned = e.pruned
	for _, c := range e.conflicts {
		report.ConflictCounts[string(c.Outcome)]++
	}
	e.mu.Unlock()

	_ = e.tree.Read(0, func(n *Node) { report.Question = n.Question })

	if all, err := e.store.All(ctx); err == nil {
		for _, f := range all {
			report.FactTierCounts[f.Tier.String()]++
		}
	}

	for _, id := range e.BestPath() {
		_ = e.tree.Read(id, func(n *Node) {
			report.BestPath = append(report.BestPath, PathEntry{
				NodeID:   n.ID,
				Question: n.Question,
				Answer:   n.Answer,
				Visits:   n.Visits,
				Value:    n.Value,
			})
		})
	}
	return report
}
