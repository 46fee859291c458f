// Package hub classifies fetched HTML bodies as place, topic or
// place-topic hub pages. Validation is a deterministic scoring pass over
// extracted links, the page title and expected tokens; the pipeline never
// re-interprets a verdict.
package hub

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Scoring thresholds. A hub needs enough article links to be a listing
// page and some site navigation to not be a dead-end or error page.
const (
	minArticleLinks = 5
	minNavLinks     = 2
	acceptThreshold = 0.5
)

// Rejection reasons. Bucketed by the pipeline into failure counters.
const (
	ReasonEmptyBody      = "empty-body"
	ReasonUnparseable    = "unparseable-html"
	ReasonTooFewArticles = "too-few-article-links"
	ReasonTooFewNavLinks = "too-few-nav-links"
	ReasonLowConfidence  = "low-confidence"
	ReasonMissingPlace   = "missing-place-token"
	ReasonMissingTopic   = "missing-topic-token"
)

// Expectation describes what the page is supposed to be about.
type Expectation struct {
	Domain     string
	PlaceName  string
	PlaceSlug  string
	TopicSlug  string
	TopicLabel string
}

// Validation is the verdict for one body. Reason is set whenever IsValid
// is false.
type Validation struct {
	IsValid          bool    `json:"is_valid"`
	Reason           string  `json:"reason,omitempty"`
	Confidence       float64 `json:"confidence"`
	NavLinkCount     int     `json:"nav_link_count"`
	ArticleLinkCount int     `json:"article_link_count"`
	TokenMatches     int     `json:"token_matches"`
	TitleMatched     bool    `json:"title_matched"`
	Title            string  `json:"title,omitempty"`
}

var articlePathPattern = regexp.MustCompile(`(/\d{4}/\d{2}/|/article|/story|/news/.+-|-\d{5,})`)

// ValidatePlaceHub checks a body against an expected place.
func ValidatePlaceHub(body string, exp Expectation) Validation {
	return validate(body, exp, tokensForPlace(exp), ReasonMissingPlace)
}

// ValidateTopicHub checks a body against an expected topic.
func ValidateTopicHub(body string, exp Expectation) Validation {
	return validate(body, exp, tokensForTopic(exp), ReasonMissingTopic)
}

// ValidatePlaceTopicHub checks a body against a place-topic combination.
// Both token families must appear.
func ValidatePlaceTopicHub(body string, exp Expectation) Validation {
	v := validate(body, exp, tokensForPlace(exp), ReasonMissingPlace)
	if !v.IsValid {
		return v
	}
	topicMatches, topicInTitle := countTokens(body, v.Title, tokensForTopic(exp))
	if topicMatches == 0 && !topicInTitle {
		v.IsValid = false
		v.Reason = ReasonMissingTopic
		return v
	}
	v.TokenMatches += topicMatches
	return v
}

func validate(body string, exp Expectation, tokens []string, missingReason string) Validation {
	var v Validation

	if strings.TrimSpace(body) == "" {
		v.Reason = ReasonEmptyBody
		return v
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		v.Reason = ReasonUnparseable
		return v
	}

	v.Title = strings.TrimSpace(doc.Find("title").First().Text())
	v.NavLinkCount, v.ArticleLinkCount = countLinks(doc, exp.Domain)

	lowerTitle := strings.ToLower(v.Title)
	for _, token := range tokens {
		if token != "" && strings.Contains(lowerTitle, token) {
			v.TitleMatched = true
			break
		}
	}
	v.TokenMatches, _ = countTokens(body, v.Title, tokens)

	switch {
	case v.ArticleLinkCount < minArticleLinks:
		v.Reason = ReasonTooFewArticles
	case v.NavLinkCount < minNavLinks:
		v.Reason = ReasonTooFewNavLinks
	case len(tokens) > 0 && v.TokenMatches == 0 && !v.TitleMatched:
		v.Reason = missingReason
	}

	v.Confidence = confidence(v)
	if v.Reason != "" {
		return v
	}

	if v.Confidence < acceptThreshold {
		v.Reason = ReasonLowConfidence
		return v
	}

	v.IsValid = true
	return v
}

// countLinks splits anchors into navigation links (short structural paths
// or anchors inside nav/header/footer) and article links (dated or
// slug-heavy paths).
func countLinks(doc *goquery.Document, domain string) (nav, article int) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}

		parsed, err := url.Parse(href)
		if err != nil {
			return
		}
		if parsed.Host != "" && domain != "" && !strings.HasSuffix(strings.ToLower(parsed.Host), strings.ToLower(domain)) {
			return
		}

		path := strings.Trim(parsed.Path, "/")
		if articlePathPattern.MatchString(parsed.Path) || strings.Count(path, "-") >= 4 {
			article++
			return
		}

		inChrome := s.ParentsFiltered("nav, header, footer").Length() > 0
		if inChrome || strings.Count(path, "/") <= 1 {
			nav++
		}
	})
	return nav, article
}

func countTokens(body, title string, tokens []string) (matches int, inTitle bool) {
	lowerBody := strings.ToLower(body)
	lowerTitle := strings.ToLower(title)
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if strings.Contains(lowerTitle, token) {
			inTitle = true
		}
		matches += strings.Count(lowerBody, token)
	}
	return matches, inTitle
}

func tokensForPlace(exp Expectation) []string {
	var tokens []string
	if exp.PlaceName != "" {
		tokens = append(tokens, strings.ToLower(exp.PlaceName))
	}
	if exp.PlaceSlug != "" && !strings.EqualFold(exp.PlaceSlug, exp.PlaceName) {
		tokens = append(tokens, strings.ToLower(exp.PlaceSlug))
	}
	return tokens
}

func tokensForTopic(exp Expectation) []string {
	var tokens []string
	if exp.TopicSlug != "" {
		tokens = append(tokens, strings.ToLower(exp.TopicSlug))
	}
	if exp.TopicLabel != "" && !strings.EqualFold(exp.TopicLabel, exp.TopicSlug) {
		tokens = append(tokens, strings.ToLower(exp.TopicLabel))
	}
	return tokens
}

// confidence folds the structural signals into [0,1]. Weights favour the
// article listing signal, then token presence, then navigation.
func confidence(v Validation) float64 {
	score := 0.0

	score += 0.4 * ratio(v.ArticleLinkCount, minArticleLinks*3)
	score += 0.2 * ratio(v.NavLinkCount, minNavLinks*4)
	score += 0.25 * ratio(v.TokenMatches, 4)
	if v.TitleMatched {
		score += 0.15
	}

	if score > 1 {
		score = 1
	}
	return score
}

func ratio(n, full int) float64 {
	if n <= 0 {
		return 0
	}
	if n >= full {
		return 1
	}
	return float64(n) / float64(full)
}

// Slugify turns a place or topic name into its URL slug form.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '_' || r == '-':
			return '-'
		default:
			return -1
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
