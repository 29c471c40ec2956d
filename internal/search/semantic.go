package search

import (
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"bazaar/internal/models"
)

const embeddingDim = 64

// semanticStrategy ranks by cosine similarity between an embedding of the
// query and a cached embedding of each business's searchable text. Business
// embeddings are computed once per id and reused across queries for the
// lifetime of the registry.
type semanticStrategy struct {
	opts models.SearchableTextOptions

	mu    sync.RWMutex
	cache map[string][]float64
}

func newSemanticStrategy(opts models.SearchableTextOptions) *semanticStrategy {
	return &semanticStrategy{opts: opts, cache: make(map[string][]float64)}
}

func (*semanticStrategy) Name() string { return "semantic" }

func (s *semanticStrategy) Rank(req Request, businesses []models.AgentProfile) []models.AgentProfile {
	if strings.TrimSpace(req.Query) == "" {
		return sortByRating(businesses)
	}
	queryVec := embedText(req.Query)
	scored := make([]scoredProfile, 0, len(businesses))
	for _, p := range businesses {
		scored = append(scored, scoredProfile{
			profile: p,
			score:   cosineSimilarity(queryVec, s.embedding(p)),
		})
	}
	return sortScored(scored)
}

func (s *semanticStrategy) embedding(p models.AgentProfile) []float64 {
	s.mu.RLock()
	vec, ok := s.cache[p.ID]
	s.mu.RUnlock()
	if ok {
		return vec
	}
	vec = embedText(p.Business.SearchableText(s.opts))
	s.mu.Lock()
	s.cache[p.ID] = vec
	s.mu.Unlock()
	return vec
}

// embedText builds a deterministic bag-of-tokens vector: each token hashes
// to a handful of signed dimensions. Crude, but stable across processes and
// free of any model dependency.
func embedText(text string) []float64 {
	vec := make([]float64, embeddingDim)
	for _, token := range strings.Fields(normalizeText(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		for k := 0; k < 4; k++ {
			part := sum >> (16 * k)
			idx := int(part % embeddingDim)
			if part&(1<<15) != 0 {
				vec[idx] -= 1
			} else {
				vec[idx] += 1
			}
		}
	}
	return vec
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
