// Package extract turns free-text answers into structured facts. One
// extraction call requests subject/relation/object triples as JSON; malformed
// entries are dropped and a completely failed extraction yields no facts
// rather than an error, so a bad call never stalls the search.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/logging"
	"github.com/pondera-ai/pondera/pkg/utils"
)

const defaultConfidence = 0.5

const extractionPrompt = `Extract factual claims from the text below as subject/relation/object triples.

Text:
%s

Respond with ONLY a JSON array. Each element: {"subject": "...", "relation": "...", "object": "...", "confidence": <0.0-1.0>}. Extract only claims actually stated in the text. An empty array is a valid answer.`

// Extractor extracts facts from node answers and inserts them into the store.
type Extractor struct {
	service core.GenerationService
	store   facts.Store
	state   *core.RunState
	logger  *logging.Logger
	timeout time.Duration
}

// NewExtractor creates an extractor. A non-positive timeout defaults to 20s.
func NewExtractor(service core.GenerationService, store facts.Store, state *core.RunState, logger *logging.Logger, timeout time.Duration) *Extractor {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Extractor{
		service: service,
		store:   store,
		state:   state,
		logger:  logger,
		timeout: timeout,
	}
}

// Extract pulls triples out of text and inserts them with the given
// provenance, returning the canonical stored facts (which may be existing
// facts the new observations corroborated). Generation and parse failures
// return an empty slice; only store failures surface as errors.
func (e *Extractor) Extract(ctx context.Context, text string, prov facts.Provenance) ([]*facts.Fact, error) {
	entries := e.generate(ctx, text)
	if len(entries) == 0 {
		return nil, nil
	}

	var stored []*facts.Fact
	for _, entry := range entries {
		f, ok := e.buildFact(ctx, entry, prov)
		if !ok {
			continue
		}
		canonical, err := e.store.Insert(ctx, f)
		if err != nil {
			return stored, errors.Wrap(err, errors.StoreFailure, "fact insert failed")
		}
		stored = append(stored, canonical)
	}
	return stored, nil
}

func (e *Extractor) generate(ctx context.Context, text string) []map[string]interface{} {
	if e.service == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.service.Generate(callCtx,
		fmt.Sprintf(extractionPrompt, text),
		core.WithCapability(core.CapabilityExtraction),
		core.WithQuality(core.QualityFast),
	)
	if err != nil {
		if e.state != nil && errors.CodeOf(err) == errors.Timeout {
			e.state.RecordTimeout()
		}
		e.logger.Debug(ctx, "fact extraction call failed: %v", err)
		return nil
	}

	entries, err := utils.ParseJSONArray(resp.Content)
	if err != nil {
		if e.state != nil {
			e.state.RecordParseFailure()
		}
		e.logger.Debug(ctx, "fact extraction returned unparseable output: %v", err)
		return nil
	}
	return entries
}

// buildFact validates one extracted entry. Entries without a subject and
// relation are dropped; missing or out-of-range confidence falls back to the
// default.
func (e *Extractor) buildFact(ctx context.Context, entry map[string]interface{}, prov facts.Provenance) (*facts.Fact, bool) {
	subject, _ := entry["subject"].(string)
	relation, _ := entry["relation"].(string)
	object, _ := entry["object"].(string)
	if subject == "" || relation == "" {
		return nil, false
	}

	confidence := defaultConfidence
	if c, ok := entry["confidence"].(float64); ok && c >= 0 && c <= 1 {
		confidence = c
	}

	f, err := facts.NewFact(subject, relation, object, confidence, prov)
	if err != nil {
		e.logger.Debug(ctx, "dropping malformed extracted fact: %v", err)
		return nil, false
	}
	return f, true
}
