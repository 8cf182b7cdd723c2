package rerank

import (
	"context"
	"strings"
	"testing"
)

func TestLexicalScorer_BasicMatch(t *testing.T) {
	scores, err := LexicalScorer{}.Score(context.Background(), "Project updates", []Document{
		{Title: "Planning", Text: "The project timeline lists recent updates for the project."},
		{Title: "Unrelated", Text: "Cooking pasta requires boiling water."},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] <= scores[1] {
		t.Fatalf("matching document scored %f, unrelated %f", scores[0], scores[1])
	}
	if scores[1] != 0 {
		t.Errorf("unrelated document scored %f, want 0", scores[1])
	}
}

func TestLexicalScorer_TitleBonus(t *testing.T) {
	scores, err := LexicalScorer{}.Score(context.Background(), "database", []Document{
		{Title: "Database Layer", Text: "General context without the keyword."},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if scores[0] != titleWeight {
		t.Fatalf("expected title bonus only (%f), got %f", titleWeight, scores[0])
	}
}

func TestLexicalScorer_StopwordsOnly(t *testing.T) {
	scores, _ := LexicalScorer{}.Score(context.Background(), "the and of", []Document{{Text: "the and of"}})
	if scores[0] != 0 {
		t.Fatalf("expected score 0 when query tokens are only stopwords, got %f", scores[0])
	}
}

func TestLexicalScorer_Range(t *testing.T) {
	docs := []Document{
		{Title: "project", Text: strings.Repeat("project ", 50)},
		{Text: "project " + strings.Repeat(" filler", 200)},
		{},
	}
	scores, _ := LexicalScorer{}.Score(context.Background(), "project", docs)
	for i, s := range scores {
		if s < 0 || s > 1 {
			t.Errorf("score %d = %f outside [0,1]", i, s)
		}
	}
	if scores[0] < 0.999 {
		t.Errorf("full match scored %f, want 1", scores[0])
	}
}

func TestLexicalScorer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (LexicalScorer{}).Score(ctx, "q", []Document{{Text: "q"}}); err == nil {
		t.Fatal("Score() with cancelled context should fail")
	}
}
