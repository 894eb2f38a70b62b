package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"tcav_lib/models"
	"tcav_lib/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := output
	output = &buf
	t.Cleanup(func() { output = old })
	err := newApp().Run(context.Background(), append([]string{"tcav", "--quiet"}, args...))
	return buf.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcav.yaml")
	_, err := run(t, "config", "init", "--out", path)
	require.NoError(t, err)

	cfg, err := utils.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultConfig(), cfg)

	out, err := run(t, "--config", path, "--format", "yaml", "--workers", "3", "--data", "/tmp/cifar", "config", "show")
	require.NoError(t, err)

	var shown utils.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 3, shown.Workers)
	assert.Equal(t, "/tmp/cifar", shown.DataDir)
	assert.Equal(t, "sea", shown.Concept.Positive)
}

func TestConfigInitArchitecture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcav.yaml")
	_, err := run(t, "config", "init", "--out", path, "--filters", "16 32", "--hidden", "128,64", "--pool", "avg", "--init", "he_normal")
	require.NoError(t, err)

	cfg, err := utils.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []int{16, 32}, cfg.Model.Filters)
	assert.Equal(t, []int{128, 64}, cfg.Model.Hidden)
	assert.Equal(t, models.PoolAvg, cfg.Model.Pool)
	assert.Equal(t, "he_normal", cfg.Model.Init)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_, err = run(t, "config", "init", "--out", bad, "--filters", "16 x")
	assert.ErrorContains(t, err, "--filters")
	assert.NoFileExists(t, bad)
}

func TestScoreNeedsModel(t *testing.T) {
	_, err := run(t, "score", "--model", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCAVRejectsInvalidLayer(t *testing.T) {
	arch := utils.DefaultConfig().Model
	arch.InputShape = []int{3, 8, 8}
	arch.Filters = []int{2}
	arch.Hidden = []int{4}
	model, err := models.Build(arch, 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, utils.SaveModel(path, arch, model))

	cfgPath := filepath.Join(t.TempDir(), "tcav.yaml")
	require.NoError(t, utils.SaveConfig(cfgPath, utils.DefaultConfig()))

	_, err = run(t, "--config", cfgPath, "--format", "json", "cav", "--model", path, "--layer", "99")
	assert.ErrorContains(t, err, "invalid layer index")
}

// Runs last: flag values live on the shared flag definitions.
func TestRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "config", "show")
	assert.ErrorContains(t, err, "xml")
}
