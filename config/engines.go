package config

import "sort"

// SectionSelector maps a named section to the CSS selector that finds it in
// the raw HTML of an engine's result page.
type SectionSelector struct {
	Name        string `json:"name" yaml:"name"`
	Selector    string `json:"selector" yaml:"selector"`
	Description string `json:"description" yaml:"description"`
}

// EngineSpec is the compiled-in section table of one engine.
type EngineSpec struct {
	HTMLSections []SectionSelector `json:"htmlSections"`
	JSONSections []string          `json:"jsonSections"`
}

// engineSpecs is read-only after package init. Order inside each slice is
// the order sections are reported in.
var engineSpecs = map[string]EngineSpec{
	"google": {
		HTMLSections: []SectionSelector{
			{"organic_results", "div.g, div.MjjYud", "Organic search results"},
			{"local_results", "div.VkpGBb, div[data-attrid*='local']", "Local pack results"},
			{"knowledge_graph", "div.kp-wholepage, div.knowledge-panel, div.kp-header", "Knowledge panel"},
			{"shopping_results", "div.commercial-unit-desktop-top, div.pla-unit", "Shopping ads"},
			{"related_questions", "div.related-question-pair, div[data-sgrd]", "People also ask"},
			{"top_stories", "g-card, div[data-hveid] article", "Top stories"},
			{"inline_images", "div.islrc img, g-img.ivg-i", "Image results"},
			{"inline_videos", "video-voyager, div[data-ved] a[href*='youtube.com']", "Video results"},
		},
		JSONSections: []string{
			"organic_results",
			"local_results",
			"knowledge_graph",
			"shopping_results",
			"related_questions",
			"top_stories",
			"inline_images",
			"inline_videos",
		},
	},
	"google_shopping": {
		HTMLSections: []SectionSelector{
			{"shopping_results", "div.sh-dgr__gr-auto, div.sh-dlr__list-result, div.KZmu8e", "Products"},
			{"filters", "div.eFNjkd, div[data-filter]", "Filters"},
		},
		JSONSections: []string{"shopping_results", "filters"},
	},
	"google_news": {
		HTMLSections: []SectionSelector{
			{"news_results", "article, div[data-n-tid], c-wiz article, div.xrnccd", "News articles"},
		},
		JSONSections: []string{"news_results"},
	},
	"youtube_video_transcript": {
		JSONSections: []string{"transcript"},
	},
	"ebay": {
		HTMLSections: []SectionSelector{
			{"organic_results", "li.s-item, div.s-item__wrapper", "Product listings"},
		},
		JSONSections: []string{"organic_results"},
	},
	"naver": {
		HTMLSections: []SectionSelector{
			{"web_results", "li.bx, div.total_wrap, ul.lst_total > li", "Web results"},
			{"news_results", "div.news_wrap, ul.list_news > li", "News results"},
			{"ads_results", "div.ad_area, li.sp_keyword", "Ads"},
		},
		JSONSections: []string{"web_results", "news_results", "ads_results"},
	},
}

// Engine returns a copy of the section table for engine. Unknown engines
// get an empty spec and ok=false.
func Engine(engine string) (EngineSpec, bool) {
	spec, ok := engineSpecs[engine]
	if !ok {
		return EngineSpec{}, false
	}
	return EngineSpec{
		HTMLSections: append([]SectionSelector(nil), spec.HTMLSections...),
		JSONSections: append([]string(nil), spec.JSONSections...),
	}, true
}

// EngineNames lists every engine with a compiled-in table, sorted.
func EngineNames() []string {
	names := make([]string, 0, len(engineSpecs))
	for name := range engineSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
