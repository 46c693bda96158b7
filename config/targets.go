package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"serpmonitor/models"
)

// DefaultTargets is the engine list monitored when no targets file and no
// stored configuration exist.
func DefaultTargets() []models.TargetConfig {
	return []models.TargetConfig{
		{Engine: "google", Label: "Google Search", Params: map[string]interface{}{"q": "coffee"}, IntervalHours: 1, Enabled: true},
		{Engine: "google_shopping", Label: "Google Shopping", Params: map[string]interface{}{"q": "laptop"}, IntervalHours: 1, Enabled: true},
		{Engine: "google_news", Label: "Google News", Params: map[string]interface{}{"q": "technology"}, IntervalHours: 1, Enabled: true},
		{Engine: "youtube_video_transcript", Label: "YouTube Transcript", Params: map[string]interface{}{"v": "dQw4w9WgXcQ"}, IntervalHours: 1, Enabled: true},
		{Engine: "ebay", Label: "eBay", Params: map[string]interface{}{"_nkw": "vintage camera"}, IntervalHours: 1, Enabled: true},
		{Engine: "naver", Label: "Naver", Params: map[string]interface{}{"query": "서울"}, IntervalHours: 1, Enabled: true},
	}
}

type targetsFile struct {
	Engines []struct {
		Engine        string                 `yaml:"engine"`
		Label         string                 `yaml:"label"`
		Params        map[string]interface{} `yaml:"params"`
		IntervalHours int                    `yaml:"interval_hours"`
		Enabled       *bool                  `yaml:"enabled"`
	} `yaml:"engines"`
}

// LoadTargets reads the targets file at path. An empty path returns
// DefaultTargets.
func LoadTargets(path string) ([]models.TargetConfig, error) {
	if path == "" {
		return DefaultTargets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return ParseTargets(data)
}

func ParseTargets(data []byte) ([]models.TargetConfig, error) {
	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}

	seen := make(map[string]bool)
	targets := make([]models.TargetConfig, 0, len(f.Engines))
	for i, e := range f.Engines {
		if e.Engine == "" {
			return nil, fmt.Errorf("targets file: entry %d has no engine", i)
		}
		if seen[e.Engine] {
			return nil, fmt.Errorf("targets file: duplicate engine %q", e.Engine)
		}
		seen[e.Engine] = true

		t := models.TargetConfig{
			Engine:        e.Engine,
			Label:         e.Label,
			Params:        e.Params,
			IntervalHours: e.IntervalHours,
			Enabled:       e.Enabled == nil || *e.Enabled,
		}
		if t.Label == "" {
			t.Label = e.Engine
		}
		if t.Params == nil {
			t.Params = map[string]interface{}{}
		}
		if t.IntervalHours < 1 {
			t.IntervalHours = 1
		}
		targets = append(targets, t)
	}
	return targets, nil
}
