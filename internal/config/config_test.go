package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("DATA_DIR", "")
	t.Setenv("TARGET_LANGUAGE", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("./data", "scene-sub.db"), cfg.DBPath())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, language.Chinese, cfg.Translate.TargetLanguage)
	assert.Equal(t, 30*time.Second, cfg.Segment.SceneThreshold)
	assert.Equal(t, 7*time.Second, cfg.Segment.BatchThreshold)
	assert.Equal(t, "@every 30s", cfg.Project.AutosaveSpec)
}

func TestNewFromEnv_DataDirFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("DATA_DIR", "/tmp/scene-data")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/scene-data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/tmp/scene-data", "scene-sub.db"), cfg.DBPath())
}

func TestNewFromEnv_ParsesValues(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("TARGET_LANGUAGE", "de")
	t.Setenv("SCENE_THRESHOLD", "45")
	t.Setenv("BATCH_THRESHOLD", "2.5s")
	t.Setenv("CHARACTERS", "Alice, Bob ,")
	t.Setenv("MAX_CONCURRENT_SCENES", "0")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, language.German, cfg.Translate.TargetLanguage)
	assert.Equal(t, 45*time.Second, cfg.Segment.SceneThreshold)
	assert.Equal(t, 2500*time.Millisecond, cfg.Segment.BatchThreshold)
	assert.Equal(t, []string{"Alice", "Bob"}, cfg.Translate.Characters)
	assert.Equal(t, 1, cfg.Translate.MaxConcurrentScenes)
}

func TestNewFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing api key", env: map[string]string{"LLM_API_KEY": ""}},
		{name: "batch sizes", env: map[string]string{"MIN_BATCH_SIZE": "40", "MAX_BATCH_SIZE": "30"}},
		{name: "thresholds", env: map[string]string{"BATCH_THRESHOLD": "60s"}},
		{name: "line durations", env: map[string]string{"MAX_LINE_DURATION": "1s", "MIN_LINE_DURATION": "800ms"}},
		{name: "substitution mode", env: map[string]string{"SUBSTITUTION_MODE": "sometimes"}},
		{name: "autosave spec", env: map[string]string{"AUTOSAVE_SPEC": "whenever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_API_KEY", "test-key")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestNewFromEnv_DummyNeedsNoKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "dummy")
	t.Setenv("LLM_API_KEY", "")

	_, err := NewFromEnv()
	assert.NoError(t, err)
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("TARGET_LANGUAGE", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: gpt-4o
translate:
  target_language: fr
  names: [Gotham, Wayne Manor]
segment:
  scene_threshold: 45s
  max_batch_size: 20
project:
  autosave: false
`), 0o644))

	cfg, err := LoadFile(path, WithRuntimeSettings(RuntimeSettings{LLMModel: "override"}))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "override", cfg.LLM.Model)
	assert.Equal(t, language.French, cfg.Translate.TargetLanguage)
	assert.Equal(t, []string{"Gotham", "Wayne Manor"}, cfg.Translate.Names)
	assert.Equal(t, 45*time.Second, cfg.Segment.SceneThreshold)
	assert.Equal(t, 20, cfg.Segment.MaxBatchSize)
	assert.Equal(t, 10, cfg.Segment.MinBatchSize)
	assert.False(t, cfg.Project.Autosave)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
