package predict

import (
	"sort"
	"strings"

	"github.com/newsmap/hubcrawl/internal/hub"
	"github.com/newsmap/hubcrawl/internal/models"
)

// Analyzers enumerates candidate hub URLs. Verified library patterns rank
// above generic ones; results are relative paths until the pipeline
// applies the domain's scheme.
type Analyzers struct {
	Library   *Library
	Gazetteer PlaceProvider
	Topics    TopicProvider
}

// NewAnalyzers creates analyzers with the built-in library, gazetteer and
// topic set.
func NewAnalyzers() *Analyzers {
	return &Analyzers{
		Library:   NewLibrary(),
		Gazetteer: StaticGazetteer{},
		Topics:    StaticTopics{},
	}
}

// PlacesByKind returns up to limit places of a kind in importance order.
// limit <= 0 means no limit.
func (a *Analyzers) PlacesByKind(kind models.PlaceKind, limit int) []models.Place {
	places := a.Gazetteer.Places(kind)
	if limit > 0 && len(places) > limit {
		places = places[:limit]
	}
	return places
}

// AllTopics returns the known topic set.
func (a *Analyzers) AllTopics() []models.Topic {
	return a.Topics.Topics()
}

// PredictPlaceHubURLs enumerates candidate URLs for one place.
func (a *Analyzers) PredictPlaceHubURLs(host string, place models.Place) []models.Prediction {
	slug := hub.Slugify(place.Name)
	if slug == "" {
		return nil
	}

	analyzer := string(place.Kind)
	var out []models.Prediction
	for _, p := range a.patternsFor(host, PatternPlace) {
		path := strings.ReplaceAll(p.Template, "{slug}", slug)
		path = strings.ReplaceAll(path, "{code}", strings.ToLower(place.Code))
		out = append(out, models.Prediction{
			URL:        path,
			Analyzer:   analyzer,
			Strategy:   strategyFor(p),
			Pattern:    p.Template,
			Score:      p.Score,
			Confidence: p.Score,
		})
	}
	return sortByScore(out)
}

// PredictTopicHubURLs enumerates candidate URLs for one topic.
func (a *Analyzers) PredictTopicHubURLs(host string, topic models.Topic) []models.Prediction {
	if topic.Slug == "" {
		return nil
	}

	var out []models.Prediction
	for _, p := range a.patternsFor(host, PatternTopic) {
		path := strings.ReplaceAll(p.Template, "{slug}", topic.Slug)
		out = append(out, models.Prediction{
			URL:        path,
			Analyzer:   "topic",
			Strategy:   strategyFor(p),
			Pattern:    p.Template,
			Score:      p.Score,
			Confidence: p.Score,
		})
	}
	return sortByScore(out)
}

// PredictCombinationHubURLs enumerates candidate URLs for a place-topic
// pair.
func (a *Analyzers) PredictCombinationHubURLs(host string, place models.Place, topic models.Topic) []models.Prediction {
	placeSlug := hub.Slugify(place.Name)
	if placeSlug == "" || topic.Slug == "" {
		return nil
	}

	var out []models.Prediction
	for _, p := range a.patternsFor(host, PatternCombination) {
		path := strings.ReplaceAll(p.Template, "{place}", placeSlug)
		path = strings.ReplaceAll(path, "{topic}", topic.Slug)
		out = append(out, models.Prediction{
			URL:        path,
			Analyzer:   "combination",
			Strategy:   strategyFor(p),
			Pattern:    p.Template,
			Score:      p.Score,
			Confidence: p.Score,
		})
	}
	return sortByScore(out)
}

// patternsFor merges library patterns (first) with generic ones, skipping
// generic templates the library already covers.
func (a *Analyzers) patternsFor(host string, kind PatternKind) []Pattern {
	var out []Pattern
	seen := make(map[string]bool)

	if entry := a.Library.Lookup(host); entry != nil {
		for _, p := range entry.Patterns {
			if p.Kind == kind {
				out = append(out, p)
				seen[p.Template] = true
			}
		}
	}
	for _, p := range genericPatterns {
		if p.Kind == kind && !seen[p.Template] {
			out = append(out, p)
		}
	}
	return out
}

func strategyFor(p Pattern) string {
	if p.Verified {
		return "dspl-verified"
	}
	return "pattern"
}

func sortByScore(preds []models.Prediction) []models.Prediction {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Score > preds[j].Score
	})
	return preds
}
