package search

import (
	"sort"
	"strings"
	"unicode"

	"bazaar/internal/models"
)

// shingleSize is the character n-gram width used for text similarity. Four
// characters is wide enough to separate "bakery" from "bike" while still
// tolerating plural and suffix variation.
const shingleSize = 4

// lexicalStrategy scores each business by the overlap between the query's
// character shingles and the shingles of the business's searchable text. A
// query fully contained in the text scores 1, a disjoint one scores 0.
type lexicalStrategy struct {
	opts models.SearchableTextOptions
}

func (*lexicalStrategy) Name() string { return "lexical" }

func (s *lexicalStrategy) Rank(req Request, businesses []models.AgentProfile) []models.AgentProfile {
	if strings.TrimSpace(req.Query) == "" {
		return sortByRating(businesses)
	}
	queryShingles := shingles(req.Query)
	scored := make([]scoredProfile, 0, len(businesses))
	for _, p := range businesses {
		text := p.Business.SearchableText(s.opts)
		scored = append(scored, scoredProfile{
			profile: p,
			score:   shingleOverlap(queryShingles, shingles(text)),
		})
	}
	return sortScored(scored)
}

type scoredProfile struct {
	profile models.AgentProfile
	score   float64
}

// sortScored orders by score descending, ties by rating descending then id.
func sortScored(scored []scoredProfile) []models.AgentProfile {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		ri, rj := scored[i].profile.Business.Rating, scored[j].profile.Business.Rating
		if ri != rj {
			return ri > rj
		}
		return scored[i].profile.ID < scored[j].profile.ID
	})
	out := make([]models.AgentProfile, len(scored))
	for i, sp := range scored {
		out[i] = sp.profile
	}
	return out
}

// normalizeText lowercases and collapses every non-alphanumeric run into a
// single space.
func normalizeText(s string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			sb.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// shingles returns the set of character n-grams of the normalized text. Text
// shorter than the shingle size contributes itself as a single shingle.
func shingles(s string) map[string]struct{} {
	norm := []rune(normalizeText(s))
	set := make(map[string]struct{})
	if len(norm) == 0 {
		return set
	}
	if len(norm) < shingleSize {
		set[string(norm)] = struct{}{}
		return set
	}
	for i := 0; i+shingleSize <= len(norm); i++ {
		set[string(norm[i:i+shingleSize])] = struct{}{}
	}
	return set
}

// shingleOverlap is the fraction of query shingles present in the text.
func shingleOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for sh := range query {
		if _, ok := text[sh]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
