package models

// Status is the overall health classification of an engine for one scan.
type Status string

const (
	StatusStable        Status = "STABLE"
	StatusFlaky         Status = "FLAKY"
	StatusParserFail    Status = "PARSER_FAIL"
	StatusUpstreamBlock Status = "UPSTREAM_BLOCK"
)

// Rank orders statuses by severity, higher is worse. Unknown values rank
// below STABLE.
func (s Status) Rank() int {
	switch s {
	case StatusStable:
		return 1
	case StatusFlaky:
		return 2
	case StatusParserFail:
		return 3
	case StatusUpstreamBlock:
		return 4
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	return s.Rank() > 0
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type ContentType string

const (
	ContentHTML    ContentType = "html"
	ContentJSON    ContentType = "json"
	ContentUnknown ContentType = "unknown"
)

// HTMLSection is one structural match-group found in raw HTML.
type HTMLSection struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Selector string `json:"selector"`
}

// MissingSection is a section present in HTML but absent from the JSON payload.
type MissingSection struct {
	Section      string   `json:"section"`
	Description  string   `json:"description"`
	Severity     Severity `json:"severity"`
	HTMLEvidence string   `json:"htmlEvidence"`
	HTMLCount    int      `json:"htmlCount"`
}

type HTMLComparison struct {
	HTMLFetched    bool             `json:"htmlFetched"`
	HTMLURL        string           `json:"htmlUrl,omitempty"`
	HTMLSize       int              `json:"htmlSize,omitempty"`
	SectionsInHTML []HTMLSection    `json:"sectionsInHtml"`
	SectionsInJSON []string         `json:"sectionsInJson"`
	MissingInJSON  []MissingSection `json:"missingInJson"`
	Summary        string           `json:"summary"`
}

type DeepAnalysisReport struct {
	Engine         string         `json:"engine"`
	Timestamp      string         `json:"timestamp"`
	HTMLComparison HTMLComparison `json:"htmlComparison"`

	TotalSectionsInHTML int `json:"totalSectionsInHtml"`
	TotalSectionsInJSON int `json:"totalSectionsInJson"`
	TotalMissing        int `json:"totalMissing"`
	CriticalMissing     int `json:"criticalMissing"`

	HasCriticalIssues    bool   `json:"hasCriticalIssues"`
	SuggestedTicketTitle string `json:"suggestedTicketTitle,omitempty"`
}

type BlockPattern struct {
	Pattern string `json:"pattern"`
	Found   bool   `json:"found"`
	Context string `json:"context,omitempty"`
}

type UpstreamReport struct {
	RawHTMLURL    string         `json:"rawHtmlUrl"`
	ContentType   ContentType    `json:"contentType"`
	IsBlocked     bool           `json:"isBlocked"`
	BlockPatterns []BlockPattern `json:"blockPatterns"`
	HTMLSize      int            `json:"htmlSize"`
	Status        Status         `json:"status"`
	AlertMessage  string         `json:"alertMessage,omitempty"`
}

// DiagnosticSummary is the unit of record persisted per scan.
type DiagnosticSummary struct {
	Upstream      *UpstreamReport     `json:"upstream,omitempty"`
	DeepAnalysis  *DeepAnalysisReport `json:"deepAnalysis,omitempty"`
	OverallStatus Status              `json:"overallStatus"`
	Timestamp     string              `json:"timestamp"`
}

// MissingSectionNames returns up to limit missing section names, optionally
// only the critical ones. limit <= 0 means no limit.
func (s *DiagnosticSummary) MissingSectionNames(limit int, criticalOnly bool) []string {
	if s == nil || s.DeepAnalysis == nil {
		return nil
	}
	var names []string
	for _, m := range s.DeepAnalysis.HTMLComparison.MissingInJSON {
		if criticalOnly && m.Severity != SeverityCritical {
			continue
		}
		if limit > 0 && len(names) >= limit {
			break
		}
		names = append(names, m.Section)
	}
	return names
}

type AnomalyType string

const (
	AnomalyParsingIssue  AnomalyType = "parsing_issue"
	AnomalyUpstreamBlock AnomalyType = "upstream_block"
	AnomalyStatusChange  AnomalyType = "status_change"
)

// Anomaly is a detected worsening between a new scan and recent history.
type Anomaly struct {
	Type          AnomalyType `json:"type"`
	Message       string      `json:"message"`
	Severity      Severity    `json:"severity"`
	CurrentValue  int         `json:"currentValue"`
	PreviousValue *int        `json:"previousValue,omitempty"`
	Threshold     *float64    `json:"threshold,omitempty"`
}

// Ticket is an issue template generated from a diagnostic summary.
type Ticket struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}
