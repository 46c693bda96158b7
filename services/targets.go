package services

import (
	"context"
	"fmt"

	"serpmonitor/models"
)

type TargetProvider interface {
	ListTargets(ctx context.Context) ([]models.TargetConfig, error)
}

type TargetConfigStore interface {
	ListTargetConfigs(ctx context.Context) ([]models.TargetConfig, error)
}

// ConfigTargetProvider layers stored monitoring_config rows over a base
// list (compiled-in defaults or the targets file). Stored rows win per
// engine; engines only present in the store are appended.
type ConfigTargetProvider struct {
	base  []models.TargetConfig
	store TargetConfigStore
}

func NewTargetProvider(base []models.TargetConfig, store TargetConfigStore) *ConfigTargetProvider {
	return &ConfigTargetProvider{base: base, store: store}
}

func (p *ConfigTargetProvider) ListTargets(ctx context.Context) ([]models.TargetConfig, error) {
	targets := make([]models.TargetConfig, len(p.base))
	copy(targets, p.base)
	if p.store == nil {
		return targets, nil
	}

	stored, err := p.store.ListTargetConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored targets: %w", err)
	}

	index := make(map[string]int, len(targets))
	for i, t := range targets {
		index[t.Engine] = i
	}
	for _, s := range stored {
		i, ok := index[s.Engine]
		if !ok {
			if s.Label == "" {
				s.Label = EngineTitle(s.Engine)
			}
			index[s.Engine] = len(targets)
			targets = append(targets, s)
			continue
		}
		if s.Label == "" {
			s.Label = targets[i].Label
		}
		targets[i] = s
	}
	return targets, nil
}

// StaticTargets serves a fixed list.
type StaticTargets []models.TargetConfig

func (s StaticTargets) ListTargets(context.Context) ([]models.TargetConfig, error) {
	out := make([]models.TargetConfig, len(s))
	copy(out, s)
	return out, nil
}
