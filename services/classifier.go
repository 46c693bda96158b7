package services

import (
	"encoding/json"
	"strings"

	"serpmonitor/models"
)

// ClassifyContent guesses whether a fetched body is JSON, HTML or neither.
func ClassifyContent(body string) models.ContentType {
	trimmed := strings.TrimSpace(body)

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return models.ContentJSON
		}
	}

	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return models.ContentHTML
	}

	if strings.Contains(trimmed, "<html") || strings.Contains(trimmed, "<body") || strings.Contains(trimmed, "<head") {
		return models.ContentHTML
	}

	return models.ContentUnknown
}
