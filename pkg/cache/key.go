package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pondera-ai/pondera/pkg/core"
)

// Key derives a deterministic cache key from everything that shapes a
// generation: capability, quality tier, sampling parameters, and the prompt
// itself. Two calls with the same key would produce interchangeable output.
func Key(prompt string, opts *core.GenerateOptions) string {
	material := fmt.Sprintf("%s|%s|temp:%.2f|max:%d|%s",
		opts.Capability, opts.Quality, opts.Temperature, opts.MaxTokens,
		strings.TrimSpace(prompt))

	sum := sha256.Sum256([]byte(material))
	return "gen_" + hex.EncodeToString(sum[:])[:32]
}
