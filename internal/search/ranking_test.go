package search

import (
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/quickhelp/internal/manuals"
)

func TestScoreComponents(t *testing.T) {
	manual := manuals.Manual{
		Title:       "Deploy guide",
		Description: "How to deploy services",
		Category:    manuals.CategoryOperations,
		Tags:        []string{"deploy", "release"},
		Sections: []manuals.Section{
			{Title: "Deploy staging", Content: "x"},
			{Title: "Rollback", Content: "Re-deploy the previous build"},
			{Title: "Other", Content: "nothing"},
		},
	}
	testCases := []struct {
		name   string
		query  string
		expect int
	}{
		{name: "every field", query: "DEPLOY", expect: 3 + 2 + 1 + 2},
		{name: "category only", query: "operations", expect: 1},
		{name: "tag only", query: "release", expect: 2},
		{name: "blank query", query: "   ", expect: 0},
		{name: "no match", query: "kubernetes", expect: 0},
	}
	for _, testCase := range testCases {
		if got := Score(testCase.query, manual); got != testCase.expect {
			t.Fatalf("%s: expected score %d, got %d", testCase.name, testCase.expect, got)
		}
	}
}

func TestSectionScoringIsUnbounded(t *testing.T) {
	manual := manuals.Manual{Title: "Other"}
	for index := 0; index < 10; index++ {
		manual.Sections = append(manual.Sections, manuals.Section{Title: fmt.Sprintf("step %d", index), Content: "ssh into the host"})
	}
	if got := Score("ssh", manual); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestRankSeedDatasetForVSCode(t *testing.T) {
	ranking := Rank("vs code", manuals.SeedManuals())
	if len(ranking.Manuals) == 0 || ranking.Manuals[0].ID != "1" {
		t.Fatalf("expected manual 1 first, got %#v", ranking.Manuals)
	}
	if ranking.Scores[0] < 3 {
		t.Fatalf("expected title score of at least 3, got %d", ranking.Scores[0])
	}
	if ranking.Explanations[0] != "Matched title (score 3)" {
		t.Fatalf("unexpected explanation %q", ranking.Explanations[0])
	}
	if len(ranking.Manuals) != 2 || ranking.Manuals[1].ID != "5" || ranking.Explanations[1] != "Matched 1 section (score 1)" {
		t.Fatalf("unexpected secondary suggestion %#v %v", ranking.Manuals, ranking.Explanations)
	}
}

func TestRankTruncatesAndKeepsInputOrderOnTies(t *testing.T) {
	candidates := []manuals.Manual{
		{ID: "a", Description: "shared word"},
		{ID: "b", Title: "shared title"},
		{ID: "c", Description: "shared again"},
		{ID: "d", Description: "shared too"},
		{ID: "e", Title: "unrelated"},
	}
	ranking := Rank("shared", candidates)
	if len(ranking.Manuals) != MaxSuggestions {
		t.Fatalf("expected %d results, got %d", MaxSuggestions, len(ranking.Manuals))
	}
	gotIDs := []string{ranking.Manuals[0].ID, ranking.Manuals[1].ID, ranking.Manuals[2].ID}
	if gotIDs[0] != "b" || gotIDs[1] != "a" || gotIDs[2] != "c" {
		t.Fatalf("unexpected order %v", gotIDs)
	}
	for index := 1; index < len(ranking.Scores); index++ {
		if ranking.Scores[index] > ranking.Scores[index-1] || ranking.Scores[index] <= 0 {
			t.Fatalf("scores must be positive and non-increasing: %v", ranking.Scores)
		}
	}
	if len(ranking.Explanations) != len(ranking.Manuals) {
		t.Fatalf("explanations must parallel results")
	}
}

func TestRankBlankQueryIsEmpty(t *testing.T) {
	if ranking := Rank("", manuals.SeedManuals()); len(ranking.Manuals) != 0 {
		t.Fatalf("expected no suggestions, got %d", len(ranking.Manuals))
	}
}

func TestFilterCombinesCriteria(t *testing.T) {
	seeds := manuals.SeedManuals()
	testCases := []struct {
		name     string
		criteria Criteria
		expect   []string
	}{
		{name: "empty criteria", criteria: Criteria{}, expect: []string{"1", "2", "3", "4", "5", "6", "7"}},
		{name: "keyword over tags", criteria: Criteria{Keyword: "VPN"}, expect: []string{"2"}},
		{name: "keyword over category", criteria: Criteria{Keyword: "develop"}, expect: []string{"1", "3"}},
		{name: "keyword ignores description", criteria: Criteria{Keyword: "receipts"}, expect: []string{}},
		{name: "category equality", criteria: Criteria{Category: manuals.CategoryDevelopment}, expect: []string{"1", "3"}},
		{name: "tag equality", criteria: Criteria{Tag: "Git"}, expect: []string{"3"}},
		{name: "and combination", criteria: Criteria{Keyword: "setup", Category: manuals.CategoryDevelopment}, expect: []string{"1"}},
		{name: "and combination excludes", criteria: Criteria{Keyword: "setup", Category: manuals.CategoryDesign}, expect: []string{}},
	}
	for _, testCase := range testCases {
		filtered := Filter(seeds, testCase.criteria)
		if len(filtered) != len(testCase.expect) {
			t.Fatalf("%s: expected %v, got %d manuals", testCase.name, testCase.expect, len(filtered))
		}
		for index, manual := range filtered {
			if manual.ID != testCase.expect[index] {
				t.Fatalf("%s: expected %v at %d, got %s", testCase.name, testCase.expect, index, manual.ID)
			}
		}
	}
}
