package services

import (
	"github.com/PuerkitoBio/goquery"

	"serpmonitor/config"
	"serpmonitor/models"
)

var (
	criticalSections = map[string]bool{
		"organic_results":  true,
		"shopping_results": true,
		"news_results":     true,
		"web_results":      true,
	}
	warningSections = map[string]bool{
		"local_results":     true,
		"knowledge_graph":   true,
		"related_questions": true,
	}
)

// SectionSeverity classifies a missing section by name. Sections that were
// not actually seen in the HTML are always info.
func SectionSeverity(name string, count int) models.Severity {
	if count <= 0 {
		return models.SeverityInfo
	}
	switch {
	case criticalSections[name]:
		return models.SeverityCritical
	case warningSections[name]:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// ExtractHTMLSections applies each selector to doc and keeps the ones that
// match at least one element, in table order.
func ExtractHTMLSections(doc *goquery.Document, selectors []config.SectionSelector) []models.HTMLSection {
	sections := []models.HTMLSection{}
	if doc == nil {
		return sections
	}
	for _, sel := range selectors {
		n := doc.Find(sel.Selector).Length()
		if n == 0 {
			continue
		}
		sections = append(sections, models.HTMLSection{Name: sel.Name, Count: n, Selector: sel.Selector})
	}
	return sections
}

// ExtractJSONSections returns the expected names present in payload. An
// empty array does not count; any non-null object does.
func ExtractJSONSections(payload map[string]interface{}, names []string) []string {
	present := []string{}
	for _, name := range names {
		switch v := payload[name].(type) {
		case []interface{}:
			if len(v) > 0 {
				present = append(present, name)
			}
		case map[string]interface{}:
			if v != nil {
				present = append(present, name)
			}
		}
	}
	return present
}
