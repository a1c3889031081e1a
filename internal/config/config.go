package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/scene-sub-translator/internal/substitution"
	"github.com/MimeLyc/scene-sub-translator/pkg/icron"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

// Config holds all application configuration.
// Values come from the environment with defaults, then an optional YAML
// file, then Option functions.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: openai, openrouter or dummy (default: openrouter)
// - LLM_API_KEY: API key for the LLM provider (required unless dummy)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_SITE_URL, LLM_APP_NAME: optional attribution headers
// - LLM_MAX_RETRIES: transport retries per request (default: 3)
// - LLM_RETRY_DELAY: first backoff delay (default: 2s)
//
// Translation:
// - TARGET_LANGUAGE (default: zh), SOURCE_LANGUAGE (default: detected)
// - INSTRUCTIONS, SYNOPSIS, CHARACTERS, NAMES
// - SUBSTITUTIONS_FILE, SUBSTITUTIONS, SUBSTITUTION_MODE
// - MAX_LINES, STOP_ON_ERROR, RETRY_ON_ERROR, MAX_CONTEXT_SUMMARIES, MAX_CONCURRENT_SCENES
//
// Segmentation:
// - SCENE_THRESHOLD, BATCH_THRESHOLD, MIN_BATCH_SIZE, MAX_BATCH_SIZE
// - MAX_LINE_DURATION, MIN_LINE_DURATION, MIN_SPLIT_CHARS, MIN_GAP
// - WHITESPACE_TO_NEWLINE, FULL_WIDTH_COMMA, BREAK_DIALOG, NORMALISE_DIALOG, DIALOG_MARKER
//
// Validation: MAX_CHARACTERS, MAX_NEWLINES
//
// System: DATA_DIR, DB_PATH, AUTOSAVE, AUTOSAVE_SPEC, HTTP_ADDR,
// HTTP_ALLOWED_ORIGINS, LOG_LEVEL, LOG_FILE
type Config struct {
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Translate  TranslateConfig  `json:"translate" yaml:"translate"`
	Segment    SegmentConfig    `json:"segment" yaml:"segment"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Project    ProjectConfig    `json:"project" yaml:"project"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Log        LogConfig        `json:"log" yaml:"log"`
	System     SystemConfig     `json:"system" yaml:"system"`
}

// LLMConfig selects the provider and configures its client.
type LLMConfig struct {
	Provider    string        `json:"provider" yaml:"provider"`
	APIKey      string        `json:"-" yaml:"api_key"`
	APIURL      string        `json:"api_url" yaml:"api_url"`
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Timeout     int           `json:"timeout" yaml:"timeout"`
	SiteURL     string        `json:"site_url" yaml:"site_url"`
	AppName     string        `json:"app_name" yaml:"app_name"`
	MaxRetries  int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay  time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language" yaml:"target_language"`
	// SourceLanguage is detected from the file when undetermined.
	SourceLanguage      language.Tag `json:"source_language" yaml:"source_language"`
	Instructions        string       `json:"instructions" yaml:"instructions"`
	Synopsis            string       `json:"synopsis" yaml:"synopsis"`
	Characters          []string     `json:"characters" yaml:"characters"`
	Names               []string     `json:"names" yaml:"names"`
	SubstitutionsFile   string       `json:"substitutions_file" yaml:"substitutions_file"`
	Substitutions       []string     `json:"substitutions" yaml:"substitutions"`
	SubstitutionMode    string       `json:"substitution_mode" yaml:"substitution_mode"`
	MaxLines            int          `json:"max_lines" yaml:"max_lines"`
	StopOnError         bool         `json:"stop_on_error" yaml:"stop_on_error"`
	RetryOnError        bool         `json:"retry_on_error" yaml:"retry_on_error"`
	MaxContextSummaries int          `json:"max_context_summaries" yaml:"max_context_summaries"`
	MaxConcurrentScenes int          `json:"max_concurrent_scenes" yaml:"max_concurrent_scenes"`
	Preview             bool         `json:"preview" yaml:"preview"`
	Resume              bool         `json:"resume" yaml:"resume"`
	Reparse             bool         `json:"reparse" yaml:"reparse"`
}

// SegmentConfig controls preprocessing, line splitting and batching.
type SegmentConfig struct {
	SceneThreshold      time.Duration `json:"scene_threshold" yaml:"scene_threshold"`
	BatchThreshold      time.Duration `json:"batch_threshold" yaml:"batch_threshold"`
	MinBatchSize        int           `json:"min_batch_size" yaml:"min_batch_size"`
	MaxBatchSize        int           `json:"max_batch_size" yaml:"max_batch_size"`
	MaxLineDuration     time.Duration `json:"max_line_duration" yaml:"max_line_duration"`
	MinLineDuration     time.Duration `json:"min_line_duration" yaml:"min_line_duration"`
	MinSplitChars       int           `json:"min_split_chars" yaml:"min_split_chars"`
	MinGap              time.Duration `json:"min_gap" yaml:"min_gap"`
	WhitespaceToNewline bool          `json:"whitespace_to_newline" yaml:"whitespace_to_newline"`
	FullWidthComma      string        `json:"full_width_comma" yaml:"full_width_comma"`
	BreakDialog         bool          `json:"break_dialog" yaml:"break_dialog"`
	NormaliseDialog     bool          `json:"normalise_dialog" yaml:"normalise_dialog"`
	DialogMarker        string        `json:"dialog_marker" yaml:"dialog_marker"`
}

type ValidationConfig struct {
	MaxCharacters int `json:"max_characters" yaml:"max_characters"`
	MaxNewlines   int `json:"max_newlines" yaml:"max_newlines"`
}

// ProjectConfig controls where project state is kept and how often it is saved.
type ProjectConfig struct {
	DBPath   string `json:"db_path" yaml:"db_path"`
	Autosave bool   `json:"autosave" yaml:"autosave"`
	// AutosaveSpec is a cron descriptor such as "@every 30s".
	AutosaveSpec string `json:"autosave_spec" yaml:"autosave_spec"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	Workers        int      `json:"workers" yaml:"workers"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file" yaml:"file"`
}

type SystemConfig struct {
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	SettingsFile string `json:"settings_file" yaml:"settings_file"`
}

// DBPath returns the SQLite database path.
func (c *Config) DBPath() string {
	if c.Project.DBPath != "" {
		return c.Project.DBPath
	}
	return filepath.Join(c.System.DataDir, "scene-sub.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			Provider:    getEnvString("LLM_PROVIDER", "openrouter"),
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "scene-sub-translator"),
			MaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),
			RetryDelay:  getEnvDuration("LLM_RETRY_DELAY", 2*time.Second),
		},
		Translate: TranslateConfig{
			TargetLanguage:      getEnvLanguage("TARGET_LANGUAGE", language.Chinese),
			SourceLanguage:      getEnvLanguage("SOURCE_LANGUAGE", language.Und),
			Instructions:        getEnvString("INSTRUCTIONS", ""),
			Synopsis:            getEnvString("SYNOPSIS", ""),
			Characters:          getEnvList("CHARACTERS"),
			Names:               getEnvList("NAMES"),
			SubstitutionsFile:   getEnvString("SUBSTITUTIONS_FILE", ""),
			Substitutions:       getEnvList("SUBSTITUTIONS"),
			SubstitutionMode:    getEnvString("SUBSTITUTION_MODE", string(substitution.ModeAuto)),
			MaxLines:            getEnvInt("MAX_LINES", 0),
			StopOnError:         getEnvBool("STOP_ON_ERROR", false),
			RetryOnError:        getEnvBool("RETRY_ON_ERROR", true),
			MaxContextSummaries: getEnvInt("MAX_CONTEXT_SUMMARIES", 10),
			MaxConcurrentScenes: getEnvInt("MAX_CONCURRENT_SCENES", 1),
		},
		Segment: SegmentConfig{
			SceneThreshold:      getEnvDuration("SCENE_THRESHOLD", 30*time.Second),
			BatchThreshold:      getEnvDuration("BATCH_THRESHOLD", 7*time.Second),
			MinBatchSize:        getEnvInt("MIN_BATCH_SIZE", 10),
			MaxBatchSize:        getEnvInt("MAX_BATCH_SIZE", 30),
			MaxLineDuration:     getEnvDuration("MAX_LINE_DURATION", 0),
			MinLineDuration:     getEnvDuration("MIN_LINE_DURATION", 800*time.Millisecond),
			MinSplitChars:       getEnvInt("MIN_SPLIT_CHARS", 4),
			MinGap:              getEnvDuration("MIN_GAP", 50*time.Millisecond),
			WhitespaceToNewline: getEnvBool("WHITESPACE_TO_NEWLINE", true),
			FullWidthComma:      getEnvString("FULL_WIDTH_COMMA", ""),
			BreakDialog:         getEnvBool("BREAK_DIALOG", true),
			NormaliseDialog:     getEnvBool("NORMALISE_DIALOG", true),
			DialogMarker:        getEnvString("DIALOG_MARKER", "- "),
		},
		Validation: ValidationConfig{
			MaxCharacters: getEnvInt("MAX_CHARACTERS", 120),
			MaxNewlines:   getEnvInt("MAX_NEWLINES", 2),
		},
		Project: ProjectConfig{
			DBPath:       getEnvString("DB_PATH", ""),
			Autosave:     getEnvBool("AUTOSAVE", true),
			AutosaveSpec: getEnvString("AUTOSAVE_SPEC", "@every 30s"),
		},
		HTTP: HTTPConfig{
			Addr:           getEnvString("HTTP_ADDR", ":8080"),
			AllowedOrigins: getEnvListDefault("HTTP_ALLOWED_ORIGINS", []string{"*"}),
			Workers:        getEnvInt("HTTP_WORKERS", 1),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "INFO"),
			File:  getEnvString("LOG_FILE", ""),
		},
		System: SystemConfig{
			DataDir:      getEnvString("DATA_DIR", "./data"),
			SettingsFile: getEnvString("SETTINGS_FILE", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: provider=%s model=%s target=%s", config.LLM.Provider, config.LLM.Model, config.Translate.TargetLanguage)
	return config, nil
}

// WithFile overlays a YAML file. Keys missing from the file keep their
// current values. A missing path is ignored.
func WithFile(path string) Option {
	return func(c *Config) {
		if strings.TrimSpace(path) == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Config file %s not loaded: %v", path, err)
			return
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			log.Error("Invalid config file %s: %v", path, err)
		}
	}
}

// LoadFile reads a YAML config on top of the environment and fails on parse errors.
func LoadFile(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return NewFromEnv(append([]Option{WithFile(path)}, opts...)...)
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.Provider != "dummy" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Translate.TargetLanguage == language.Und {
		return fmt.Errorf("TARGET_LANGUAGE is required")
	}
	if _, err := substitution.ParseMode(c.Translate.SubstitutionMode); err != nil {
		return err
	}
	if c.Segment.MaxBatchSize < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE must be greater than 0")
	}
	if c.Segment.MinBatchSize > c.Segment.MaxBatchSize {
		return fmt.Errorf("MIN_BATCH_SIZE (%d) must not exceed MAX_BATCH_SIZE (%d)", c.Segment.MinBatchSize, c.Segment.MaxBatchSize)
	}
	if c.Segment.BatchThreshold > c.Segment.SceneThreshold {
		return fmt.Errorf("BATCH_THRESHOLD must not exceed SCENE_THRESHOLD")
	}
	if c.Segment.MaxLineDuration > 0 && c.Segment.MinLineDuration*2 > c.Segment.MaxLineDuration {
		return fmt.Errorf("MAX_LINE_DURATION must be at least twice MIN_LINE_DURATION")
	}
	if c.Translate.MaxConcurrentScenes < 1 {
		c.Translate.MaxConcurrentScenes = 1
	}
	if c.Project.Autosave {
		if _, err := icron.Parse(c.Project.AutosaveSpec); err != nil {
			return fmt.Errorf("invalid AUTOSAVE_SPEC: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1.5s") or plain seconds ("1.5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
		log.Warn("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getEnvList(key string) []string {
	return getEnvListDefault(key, nil)
}

// getEnvListDefault splits a comma separated value, dropping blanks.
func getEnvListDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			ret = append(ret, item)
		}
	}
	return ret
}
