package predict

import (
	"sort"

	"github.com/newsmap/hubcrawl/internal/models"
)

// PlaceProvider supplies the place set for a kind. The built-in gazetteer
// is a static snapshot; a richer provider can be injected.
type PlaceProvider interface {
	Places(kind models.PlaceKind) []models.Place
}

// TopicProvider supplies the topic set.
type TopicProvider interface {
	Topics() []models.Topic
}

// StaticGazetteer is the built-in place provider.
type StaticGazetteer struct{}

// Places returns the known places of a kind sorted by importance
// descending, name ascending for equal importance.
func (StaticGazetteer) Places(kind models.PlaceKind) []models.Place {
	var out []models.Place
	for _, p := range builtinPlaces {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// StaticTopics is the built-in topic provider.
type StaticTopics struct{}

func (StaticTopics) Topics() []models.Topic {
	out := make([]models.Topic, len(builtinTopics))
	copy(out, builtinTopics)
	return out
}

var builtinPlaces = []models.Place{
	{Kind: models.PlaceKindCountry, Name: "United States", Code: "us", Importance: 0.98},
	{Kind: models.PlaceKindCountry, Name: "United Kingdom", Code: "gb", Importance: 0.95},
	{Kind: models.PlaceKindCountry, Name: "France", Code: "fr", Importance: 0.92},
	{Kind: models.PlaceKindCountry, Name: "Germany", Code: "de", Importance: 0.92},
	{Kind: models.PlaceKindCountry, Name: "India", Code: "in", Importance: 0.9},
	{Kind: models.PlaceKindCountry, Name: "China", Code: "cn", Importance: 0.9},
	{Kind: models.PlaceKindCountry, Name: "Japan", Code: "jp", Importance: 0.88},
	{Kind: models.PlaceKindCountry, Name: "Brazil", Code: "br", Importance: 0.85},
	{Kind: models.PlaceKindCountry, Name: "Australia", Code: "au", Importance: 0.85},
	{Kind: models.PlaceKindCountry, Name: "Canada", Code: "ca", Importance: 0.85},
	{Kind: models.PlaceKindCountry, Name: "Russia", Code: "ru", Importance: 0.82},
	{Kind: models.PlaceKindCountry, Name: "South Africa", Code: "za", Importance: 0.78},
	{Kind: models.PlaceKindCountry, Name: "Nigeria", Code: "ng", Importance: 0.75},
	{Kind: models.PlaceKindCountry, Name: "Mexico", Code: "mx", Importance: 0.75},
	{Kind: models.PlaceKindCountry, Name: "Ukraine", Code: "ua", Importance: 0.75},

	{Kind: models.PlaceKindRegion, Name: "Europe", Code: "eu", Importance: 0.9},
	{Kind: models.PlaceKindRegion, Name: "Asia", Code: "as", Importance: 0.88},
	{Kind: models.PlaceKindRegion, Name: "Africa", Code: "af", Importance: 0.85},
	{Kind: models.PlaceKindRegion, Name: "Middle East", Code: "me", Importance: 0.85},
	{Kind: models.PlaceKindRegion, Name: "Latin America", Code: "latam", Importance: 0.8},
	{Kind: models.PlaceKindRegion, Name: "Scotland", Code: "sct", ParentCode: "gb", Importance: 0.6},
	{Kind: models.PlaceKindRegion, Name: "California", Code: "ca-us", ParentCode: "us", Importance: 0.6},

	{Kind: models.PlaceKindCity, Name: "London", ParentCode: "gb", Importance: 0.9},
	{Kind: models.PlaceKindCity, Name: "New York", ParentCode: "us", Importance: 0.9},
	{Kind: models.PlaceKindCity, Name: "Paris", ParentCode: "fr", Importance: 0.85},
	{Kind: models.PlaceKindCity, Name: "Berlin", ParentCode: "de", Importance: 0.8},
	{Kind: models.PlaceKindCity, Name: "Tokyo", ParentCode: "jp", Importance: 0.8},
	{Kind: models.PlaceKindCity, Name: "Sydney", ParentCode: "au", Importance: 0.75},
	{Kind: models.PlaceKindCity, Name: "Mumbai", ParentCode: "in", Importance: 0.75},
	{Kind: models.PlaceKindCity, Name: "São Paulo", ParentCode: "br", Importance: 0.7},
}

var builtinTopics = []models.Topic{
	{Slug: "politics", Label: "Politics", Category: "news"},
	{Slug: "business", Label: "Business", Category: "news"},
	{Slug: "technology", Label: "Technology", Category: "news"},
	{Slug: "climate", Label: "Climate", Category: "news"},
	{Slug: "science", Label: "Science", Category: "news"},
	{Slug: "health", Label: "Health", Category: "news"},
	{Slug: "sport", Label: "Sport", Category: "news"},
	{Slug: "culture", Label: "Culture", Category: "news"},
}
