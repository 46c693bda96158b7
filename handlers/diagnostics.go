package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"serpmonitor/models"
	"serpmonitor/services"
)

func failJSON(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// searchFailure is the error shown when the search API call did not yield
// a usable payload.
func searchFailure(res models.APICallResult) string {
	if res.Error != "" {
		return res.Error
	}
	return "Failed to fetch data from SerpApi"
}

// AnalyzeUpstream checks a raw HTML URL for blocking. The URL is either
// given directly or taken from a fresh search made with params and apiKey.
func (h *Handler) AnalyzeUpstream(c *gin.Context) {
	var req struct {
		RawHTMLURL string                 `json:"rawHtmlUrl"`
		Params     map[string]interface{} `json:"params"`
		APIKey     string                 `json:"apiKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		failJSON(c, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RawHTMLURL != "" && !validURL(req.RawHTMLURL) {
		failJSON(c, http.StatusBadRequest, "rawHtmlUrl must be a valid URL")
		return
	}

	ctx := c.Request.Context()
	target := req.RawHTMLURL
	if target == "" && req.Params != nil && req.APIKey != "" {
		res := h.scanner.Search(ctx, "", req.Params, req.APIKey)
		if res.Success && res.Response != nil {
			target = services.RawHTMLURL(res.Response)
		}
	}
	if target == "" {
		failJSON(c, http.StatusBadRequest, "No raw HTML URL available. Provide rawHtmlUrl or valid params with apiKey.")
		return
	}

	report := h.scanner.AnalyzeUpstream(ctx, target)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

type searchRequest struct {
	Params map[string]interface{} `json:"params"`
	Engine string                 `json:"engine"`
	APIKey string                 `json:"apiKey"`
}

func (r searchRequest) validate() string {
	switch {
	case r.Params == nil:
		return "params is required"
	case r.Engine == "":
		return "engine is required"
	case r.APIKey == "":
		return "API key is required"
	}
	return ""
}

func (h *Handler) DeepAnalysis(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failJSON(c, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		failJSON(c, http.StatusBadRequest, msg)
		return
	}

	ctx := c.Request.Context()
	res := h.scanner.Search(ctx, req.Engine, req.Params, req.APIKey)
	if !res.Success || res.Response == nil {
		failJSON(c, http.StatusBadRequest, searchFailure(res))
		return
	}

	report := h.scanner.DeepAnalyze(ctx, req.Engine, res.Response)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": struct {
			models.DeepAnalysisReport
			RawResponse map[string]interface{} `json:"rawResponse"`
		}{report, res.Response},
	})
}

// FullDiagnostic runs the search and both analyses, returning the combined
// summary. Nothing is persisted.
func (h *Handler) FullDiagnostic(c *gin.Context) {
	var req struct {
		searchRequest
		RunUpstream     *bool `json:"runUpstream"`
		RunDeepAnalysis *bool `json:"runDeepAnalysis"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		failJSON(c, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		failJSON(c, http.StatusBadRequest, msg)
		return
	}
	opts := services.DiagnoseOptions{Deep: true, Upstream: true}
	if req.RunUpstream != nil {
		opts.Upstream = *req.RunUpstream
	}
	if req.RunDeepAnalysis != nil {
		opts.Deep = *req.RunDeepAnalysis
	}

	ctx := c.Request.Context()
	res := h.scanner.Search(ctx, req.Engine, req.Params, req.APIKey)
	if !res.Success || res.Response == nil {
		failJSON(c, http.StatusBadRequest, searchFailure(res))
		return
	}

	summary := h.scanner.Diagnose(ctx, req.Engine, res.Response, opts)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": summary})
}

func (h *Handler) GenerateTicket(c *gin.Context) {
	var req struct {
		Summary *models.DiagnosticSummary `json:"summary"`
		Params  map[string]interface{}    `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		failJSON(c, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Summary == nil || !req.Summary.OverallStatus.Valid() {
		failJSON(c, http.StatusBadRequest, "summary.overallStatus must be one of STABLE, FLAKY, PARSER_FAIL, UPSTREAM_BLOCK")
		return
	}
	if req.Params == nil {
		failJSON(c, http.StatusBadRequest, "params is required")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": services.GenerateTicket(*req.Summary, req.Params)})
}
