package services

import (
	"context"
	"errors"
	"testing"

	"serpmonitor/config"
	"serpmonitor/models"
)

type stubConfigStore struct {
	rows []models.TargetConfig
	err  error
}

func (s stubConfigStore) ListTargetConfigs(context.Context) ([]models.TargetConfig, error) {
	return s.rows, s.err
}

func TestConfigTargetProvider(t *testing.T) {
	base := config.DefaultTargets()
	store := stubConfigStore{rows: []models.TargetConfig{
		{Engine: "google", IntervalHours: 6, Enabled: false},
		{Engine: "bing", IntervalHours: 2, Enabled: true},
	}}

	targets, err := NewTargetProvider(base, store).ListTargets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != len(base)+1 {
		t.Fatalf("got %d targets, want %d", len(targets), len(base)+1)
	}

	byEngine := map[string]models.TargetConfig{}
	for _, tc := range targets {
		byEngine[tc.Engine] = tc
	}
	g := byEngine["google"]
	if g.Enabled || g.IntervalHours != 6 {
		t.Errorf("stored row did not override google: %+v", g)
	}
	if g.Label == "" {
		t.Error("override lost the base label")
	}
	if byEngine["bing"].Label != "Bing" {
		t.Errorf("store-only label = %q", byEngine["bing"].Label)
	}
	if targets[len(targets)-1].Engine != "bing" {
		t.Error("store-only engines should be appended")
	}

	again, _ := NewTargetProvider(base, nil).ListTargets(context.Background())
	if len(again) != len(base) || !base[0].Enabled {
		t.Error("base list was mutated")
	}
}

func TestConfigTargetProviderStoreError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewTargetProvider(nil, stubConfigStore{err: boom}).ListTargets(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
