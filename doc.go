// Package pondera is a deliberation engine: it answers open research
// questions by growing a reasoning tree under an explicit token budget,
// banking extracted factual claims in a tiered store, and resolving the
// contradictions it runs into along the way.
//
// A run starts from a root question, decomposes it into sub-questions, and
// repeatedly selects the most promising frontier node to expand. Each
// expansion generates several candidate reasoning chains, scores their steps
// against a declarative value-rule set, extracts subject/relation/object
// claims from the survivor, and backpropagates the result up the tree. Facts
// corroborated by independent sources climb from unverified through
// corroborated to verified; facts that contradict each other are resolved by
// source authority, recency, or escalated into new research nodes.
//
// Key packages:
//
//   - search: the tree, selection policy, expansion pipeline, and run loop
//   - facts: the tiered fact store with noisy-OR corroboration
//   - axiom: declarative value rules and content evaluation
//   - budget: per-node token allocation and global spend accounting
//   - conflict: contradiction detection and the resolution chain
//   - reward: per-step scoring (axiom compliance, consistency, evidence)
//   - prior: fast promise estimates for unvisited nodes
//   - extract: claim extraction from reasoning text
//   - session: checkpointing and resuming runs
//   - llms: the Anthropic-backed generation service and an offline stub
//
// Minimal offline example:
//
//	cfg := config.Default()
//	cfg.Offline = true
//
//	logger, _ := cfg.BuildLogger()
//	service := llms.NewStubService()
//	store := facts.NewMemoryStore(cfg.Facts.Policy(nil))
//	governor, _ := budget.NewGovernor(cfg.Budget, logger)
//
//	engine, _ := search.NewEngine(cfg.Search, search.Dependencies{
//	    Service:  service,
//	    Store:    store,
//	    Governor: governor,
//	})
//	report, _ := engine.Run(ctx, "Will grid-scale storage outpace demand growth?")
//	fmt.Println(report.BestPath[0].Answer)
//
// The pondera command in cmd/pondera wires the full stack from a YAML
// configuration, including response caching and session persistence.
package pondera
