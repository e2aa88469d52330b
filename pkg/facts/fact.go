package facts

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// Tier is a fact's verification status, ordered unverified < corroborated < verified.
type Tier int

const (
	TierUnverified Tier = iota
	TierCorroborated
	TierVerified
)

func (t Tier) String() string {
	switch t {
	case TierUnverified:
		return "unverified"
	case TierCorroborated:
		return "corroborated"
	case TierVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// ParseTier converts a string to a Tier, defaulting to unverified.
func ParseTier(s string) Tier {
	switch s {
	case "corroborated":
		return TierCorroborated
	case "verified":
		return TierVerified
	default:
		return TierUnverified
	}
}

// MarshalText keeps persisted snapshots readable and stable.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(data []byte) error {
	*t = ParseTier(string(data))
	return nil
}

// Provenance records where a fact came from.
type Provenance struct {
	NodeID    int       `json:"node_id"`
	Method    string    `json:"method"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Fact is a structured subject/relation/object triple with a confidence and a
// verification tier. Facts are never deleted; disputed facts are flagged and
// retained for audit.
type Fact struct {
	ID         string     `json:"id"`
	Subject    string     `json:"subject"`
	Relation   string     `json:"relation"`
	Object     string     `json:"object"`
	Confidence float64    `json:"confidence"`
	Tier       Tier       `json:"tier"`
	Disputed   bool       `json:"disputed"`
	Provenance Provenance `json:"provenance"`

	// Sources maps each distinct corroborating source id to the confidence
	// that source reported. The primary source is included.
	Sources map[string]float64 `json:"sources"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFact creates an unverified fact with a fresh time-ordered id.
func NewFact(subject, relation, object string, confidence float64, prov Provenance) (*Fact, error) {
	if subject == "" || relation == "" {
		return nil, errors.New(errors.InvalidInput, "fact requires a subject and relation")
	}
	if confidence < 0 || confidence > 1 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "confidence must be in [0,1]"),
			errors.Fields{"confidence": confidence},
		)
	}

	now := prov.Timestamp
	if now.IsZero() {
		now = time.Now()
		prov.Timestamp = now
	}

	sources := map[string]float64{}
	if prov.Source != "" {
		sources[prov.Source] = confidence
	}

	return &Fact{
		ID:         ulid.Make().String(),
		Subject:    subject,
		Relation:   relation,
		Object:     object,
		Confidence: confidence,
		Tier:       TierUnverified,
		Provenance: prov,
		Sources:    sources,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// EffectiveConfidence is the confidence used for tier computation. Disputed
// facts contribute half their confidence.
func (f *Fact) EffectiveConfidence() float64 {
	if f.Disputed {
		return f.Confidence / 2
	}
	return f.Confidence
}

// AggregateConfidence combines per-source confidences via noisy-OR: the
// probability that at least one source is right, assuming independence.
// Disputed facts contribute half of each source's confidence.
func (f *Fact) AggregateConfidence() float64 {
	if len(f.Sources) == 0 {
		return f.EffectiveConfidence()
	}

	miss := 1.0
	for _, c := range f.Sources {
		if f.Disputed {
			c /= 2
		}
		miss *= 1 - c
	}
	return 1 - miss
}

// SourceCount returns the number of distinct corroborating sources.
func (f *Fact) SourceCount() int {
	if len(f.Sources) == 0 {
		// A fact with unattributed provenance still has its originating claim.
		return 1
	}
	return len(f.Sources)
}

// Clone returns a deep copy so stores can hand out facts without exposing
// internal state to mutation.
func (f *Fact) Clone() *Fact {
	cp := *f
	cp.Sources = make(map[string]float64, len(f.Sources))
	for k, v := range f.Sources {
		cp.Sources[k] = v
	}
	return &cp
}
