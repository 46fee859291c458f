package predict

import (
	"testing"

	"github.com/newsmap/hubcrawl/internal/models"
)

func TestLibraryLookupMatchesParentDomain(t *testing.T) {
	lib := NewLibrary()

	if e := lib.Lookup("www.theguardian.com"); e == nil {
		t.Error("expected subdomain to match parent entry")
	}
	if e := lib.Lookup("theguardian.com"); e == nil || e.VerifiedCount() == 0 {
		t.Error("expected verified patterns for known domain")
	}
	if e := lib.Lookup("unknown.example"); e != nil {
		t.Errorf("expected nil for unknown domain, got %+v", e)
	}
}

func TestLibrarySummarize(t *testing.T) {
	lib := NewLibrary()

	known := lib.Summarize("bbc.co.uk")
	if !known.Known || known.VerifiedPatterns == 0 {
		t.Errorf("expected known summary with verified patterns, got %+v", known)
	}

	unknown := lib.Summarize("a.test")
	if unknown.Known || unknown.PatternCount != 0 {
		t.Errorf("expected empty summary, got %+v", unknown)
	}
}

func TestPredictPlaceHubURLs(t *testing.T) {
	a := NewAnalyzers()
	place := models.Place{Kind: models.PlaceKindCountry, Name: "France", Code: "FR", Importance: 0.92}

	preds := a.PredictPlaceHubURLs("a.test", place)
	if len(preds) == 0 {
		t.Fatal("expected predictions for a generic domain")
	}
	for i := 1; i < len(preds); i++ {
		if preds[i].Score > preds[i-1].Score {
			t.Fatalf("predictions not sorted by score: %v", preds)
		}
	}

	seen := make(map[string]bool)
	for _, p := range preds {
		if seen[p.URL] {
			t.Errorf("duplicate prediction %q", p.URL)
		}
		seen[p.URL] = true
		if p.Analyzer != "country" {
			t.Errorf("expected analyzer country, got %q", p.Analyzer)
		}
	}
	if !seen["/news/france"] {
		t.Errorf("expected /news/france among predictions, got %v", preds)
	}
}

func TestPredictPlaceHubURLsPrefersVerifiedPatterns(t *testing.T) {
	a := NewAnalyzers()
	place := models.Place{Kind: models.PlaceKindCountry, Name: "France", Importance: 0.92}

	preds := a.PredictPlaceHubURLs("www.theguardian.com", place)
	if len(preds) == 0 {
		t.Fatal("expected predictions")
	}
	if preds[0].URL != "/world/france" || preds[0].Strategy != "dspl-verified" {
		t.Errorf("expected verified /world/france first, got %+v", preds[0])
	}
}

func TestPredictTopicAndCombination(t *testing.T) {
	a := NewAnalyzers()
	topic := models.Topic{Slug: "climate", Label: "Climate"}
	place := models.Place{Kind: models.PlaceKindCountry, Name: "France"}

	topicPreds := a.PredictTopicHubURLs("a.test", topic)
	if len(topicPreds) == 0 {
		t.Fatal("expected topic predictions")
	}
	found := false
	for _, p := range topicPreds {
		if p.URL == "/tag/climate" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected /tag/climate, got %v", topicPreds)
	}

	comboPreds := a.PredictCombinationHubURLs("a.test", place, topic)
	if len(comboPreds) == 0 {
		t.Fatal("expected combination predictions")
	}
	if comboPreds[0].URL != "/france/climate" {
		t.Errorf("expected /france/climate first, got %+v", comboPreds[0])
	}

	if preds := a.PredictPlaceHubURLs("a.test", models.Place{Name: "  "}); preds != nil {
		t.Errorf("expected nil for unsluggable place, got %v", preds)
	}
}

func TestPlacesByKindOrderAndLimit(t *testing.T) {
	a := NewAnalyzers()

	countries := a.PlacesByKind(models.PlaceKindCountry, 5)
	if len(countries) != 5 {
		t.Fatalf("expected 5 countries, got %d", len(countries))
	}
	for i := 1; i < len(countries); i++ {
		if countries[i].Importance > countries[i-1].Importance {
			t.Fatal("places not in importance order")
		}
	}

	all := a.PlacesByKind(models.PlaceKindCity, 0)
	if len(all) == 0 {
		t.Fatal("expected cities with no limit")
	}
}
