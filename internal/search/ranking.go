package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
)

const (
	titleWeight       = 3
	tagWeight         = 2
	categoryWeight    = 1
	descriptionWeight = 1
	sectionWeight     = 1

	// MaxSuggestions bounds the suggestion panel.
	MaxSuggestions = 3
)

// Match describes how a query matched one manual.
type Match struct {
	Title       bool
	Tag         bool
	Category    bool
	Description bool
	Sections    int
}

// Score returns the total points of the match.
func (m Match) Score() int {
	score := m.Sections * sectionWeight
	if m.Title {
		score += titleWeight
	}
	if m.Tag {
		score += tagWeight
	}
	if m.Category {
		score += categoryWeight
	}
	if m.Description {
		score += descriptionWeight
	}
	return score
}

// Explain renders the matched fields and score as a sentence.
func (m Match) Explain() string {
	fields := make([]string, 0, 5)
	if m.Title {
		fields = append(fields, "title")
	}
	if m.Tag {
		fields = append(fields, "tags")
	}
	if m.Category {
		fields = append(fields, "category")
	}
	if m.Description {
		fields = append(fields, "description")
	}
	switch {
	case m.Sections == 1:
		fields = append(fields, "1 section")
	case m.Sections > 1:
		fields = append(fields, fmt.Sprintf("%d sections", m.Sections))
	}
	return fmt.Sprintf("Matched %s (score %d)", strings.Join(fields, ", "), m.Score())
}

// MatchManual evaluates query against every scored field of manual.
// Matching is case-insensitive substring containment.
func MatchManual(query string, manual manuals.Manual) Match {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return Match{}
	}
	match := Match{
		Title:       containsFold(manual.Title, needle),
		Category:    containsFold(string(manual.Category), needle),
		Description: containsFold(manual.Description, needle),
	}
	for _, tag := range manual.Tags {
		if containsFold(tag, needle) {
			match.Tag = true
			break
		}
	}
	for _, section := range manual.Sections {
		if containsFold(section.Title, needle) || containsFold(section.Content, needle) {
			match.Sections++
		}
	}
	return match
}

// Score is the relevance of manual for query. A blank query scores 0.
func Score(query string, manual manuals.Manual) int {
	return MatchManual(query, manual).Score()
}

// Ranking is the suggestion panel content: manuals with their parallel
// scores and explanations.
type Ranking struct {
	Manuals      []manuals.Manual
	Scores       []int
	Explanations []string
}

// Rank scores every manual, drops non-matches, orders by score with input
// order breaking ties, and keeps the top MaxSuggestions.
func Rank(query string, candidates []manuals.Manual) Ranking {
	type scored struct {
		manual manuals.Manual
		match  Match
		score  int
	}
	results := make([]scored, 0, len(candidates))
	for _, manual := range candidates {
		match := MatchManual(query, manual)
		score := match.Score()
		if score == 0 {
			continue
		}
		results = append(results, scored{manual: manual, match: match, score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > MaxSuggestions {
		results = results[:MaxSuggestions]
	}

	ranking := Ranking{
		Manuals:      make([]manuals.Manual, 0, len(results)),
		Scores:       make([]int, 0, len(results)),
		Explanations: make([]string, 0, len(results)),
	}
	for _, result := range results {
		ranking.Manuals = append(ranking.Manuals, result.manual)
		ranking.Scores = append(ranking.Scores, result.score)
		ranking.Explanations = append(ranking.Explanations, result.match.Explain())
	}
	return ranking
}

// Criteria narrows the primary listing. Empty fields match everything.
type Criteria struct {
	Keyword  string
	Category manuals.Category
	Tag      string
}

// Filter keeps the manuals satisfying every non-empty criterion, in input order.
// The keyword is a case-insensitive substring over title, category and tags.
func Filter(candidates []manuals.Manual, criteria Criteria) []manuals.Manual {
	keyword := strings.ToLower(strings.TrimSpace(criteria.Keyword))
	category := manuals.Category(strings.TrimSpace(string(criteria.Category)))
	tag := strings.TrimSpace(criteria.Tag)

	filtered := make([]manuals.Manual, 0, len(candidates))
	for _, manual := range candidates {
		if keyword != "" && !keywordMatches(manual, keyword) {
			continue
		}
		if category != "" && manual.Category != category {
			continue
		}
		if tag != "" && !manual.HasTag(tag) {
			continue
		}
		filtered = append(filtered, manual)
	}
	return filtered
}

func keywordMatches(manual manuals.Manual, keyword string) bool {
	if containsFold(manual.Title, keyword) || containsFold(string(manual.Category), keyword) {
		return true
	}
	for _, tag := range manual.Tags {
		if containsFold(tag, keyword) {
			return true
		}
	}
	return false
}

func containsFold(haystack, loweredNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), loweredNeedle)
}
