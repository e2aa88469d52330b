package cache

import (
	"context"
	"encoding/json"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/logging"
)

// CachedService decorates a GenerationService with read-through caching.
// Only successful responses are cached; failures always retry the inner
// service. Cache errors degrade to a direct call, never to a request failure.
type CachedService struct {
	inner  core.GenerationService
	cache  Cache
	logger *logging.Logger
}

// Wrap decorates a service with the given cache.
func Wrap(inner core.GenerationService, cache Cache, logger *logging.Logger) *CachedService {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &CachedService{inner: inner, cache: cache, logger: logger}
}

// cacheable reports whether calls with this capability may be served from
// cache. Extraction and validation prompts are deterministic for a given
// input; reasoning and synthesis calls want fresh variants every time.
func cacheable(c core.Capability) bool {
	return c == core.CapabilityExtraction || c == core.CapabilityValidation
}

// Generate implements core.GenerationService.
func (s *CachedService) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.Response, error) {
	options := core.NewGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}
	if !cacheable(options.Capability) {
		return s.inner.Generate(ctx, prompt, opts...)
	}
	key := Key(prompt, options)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn(ctx, "Cache lookup failed, calling service directly: %v", err)
	} else if ok {
		var resp core.Response
		if err := json.Unmarshal(data, &resp); err == nil {
			// A cache hit consumed no new tokens.
			resp.Usage = &core.TokenUsage{}
			return &resp, nil
		}
		s.logger.Warn(ctx, "Dropping undecodable cache entry %s", key)
		_ = s.cache.Delete(ctx, key)
	}

	resp, err := s.inner.Generate(ctx, prompt, opts...)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, data, 0); err != nil {
			s.logger.Warn(ctx, "Cache write failed: %v", err)
		}
	}
	return resp, nil
}

// Stats exposes the underlying cache counters.
func (s *CachedService) Stats() Stats {
	return s.cache.Stats()
}

var _ core.GenerationService = (*CachedService)(nil)
