package services

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"serpmonitor/models"
)

type blockSignature struct {
	needle string
	label  string
}

// Order matters: reports list signatures in this order.
var blockSignatures = []blockSignature{
	{"captcha", "CAPTCHA detected"},
	{"unusual traffic", "Unusual traffic warning"},
	{"precondition check failed", "Precondition check failed"},
	{"are you a robot", "Robot check"},
	{"i'm not a robot", "Robot verification"},
	{"blocked", "Blocked message"},
	{"access denied", "Access denied"},
	{"please verify you are human", "Human verification required"},
	{"rate limit", "Rate limited"},
}

const blockContextRadius = 30

// ScanBlockPatterns checks the visible text of a page against the known
// blocking signatures. Script, style and noscript content is ignored. One
// entry is returned per signature, found or not.
func ScanBlockPatterns(html string) []models.BlockPattern {
	haystack := visibleText(html)

	patterns := make([]models.BlockPattern, 0, len(blockSignatures))
	for _, sig := range blockSignatures {
		p := models.BlockPattern{Pattern: sig.label}
		if idx := strings.Index(haystack, sig.needle); idx >= 0 {
			p.Found = true
			p.Context = contextWindow(haystack, idx, sig.needle)
		}
		patterns = append(patterns, p)
	}
	return patterns
}

// FoundPatternLabels returns the labels of matched signatures in table order.
func FoundPatternLabels(patterns []models.BlockPattern) []string {
	var labels []string
	for _, p := range patterns {
		if p.Found {
			labels = append(labels, p.Pattern)
		}
	}
	return labels
}

func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.ToLower(html)
	}
	doc.Find("script, style, noscript").Remove()

	title := strings.ToLower(doc.Find("title").Text())
	meta, _ := doc.Find(`meta[name="description"]`).Attr("content")
	body := strings.ToLower(doc.Find("body").Text())

	return title + " " + strings.ToLower(meta) + " " + body
}

// contextWindow returns up to blockContextRadius characters either side of
// the match at byte offset idx, with whitespace collapsed.
func contextWindow(haystack string, idx int, needle string) string {
	runes := []rune(haystack)
	start := utf8.RuneCountInString(haystack[:idx])
	end := start + utf8.RuneCountInString(needle)

	from := start - blockContextRadius
	if from < 0 {
		from = 0
	}
	to := end + blockContextRadius
	if to > len(runes) {
		to = len(runes)
	}
	return strings.Join(strings.Fields(string(runes[from:to])), " ")
}
