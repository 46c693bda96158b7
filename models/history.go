package models

import "encoding/json"

// Summary decodes the stored result. A corrupted record yields ok=false and
// callers treat the run as having no result.
func (r DiagnosticRun) Summary() (*DiagnosticSummary, bool) {
	if r.Result == "" {
		return nil, false
	}
	var s DiagnosticSummary
	if err := json.Unmarshal([]byte(r.Result), &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (r DiagnosticRun) HistoryEntry() HistoryEntry {
	e := HistoryEntry{
		ID:        r.ID,
		Engine:    r.Engine,
		Type:      r.Type,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	s, ok := r.Summary()
	if !ok {
		return e
	}
	if s.DeepAnalysis != nil {
		missing := s.DeepAnalysis.TotalMissing
		critical := s.DeepAnalysis.CriticalMissing
		e.MissingSections = &missing
		e.CriticalMissing = &critical
	}
	if s.Upstream != nil {
		blocked := s.Upstream.IsBlocked
		e.IsBlocked = &blocked
	}
	return e
}
