package service

import (
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/llm"
	"github.com/MimeLyc/scene-sub-translator/internal/provider"
	"github.com/MimeLyc/scene-sub-translator/internal/substitution"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

// Settings builds orchestrator settings for a language pair.
func Settings(cfg *config.Config, source, target language.Tag) translator.Settings {
	var sourceName string
	if source != language.Und {
		sourceName = LanguageName(source)
	}
	return translator.Settings{
		SourceLanguage:      sourceName,
		TargetLanguage:      LanguageName(target),
		Instructions:        cfg.Translate.Instructions,
		Synopsis:            cfg.Translate.Synopsis,
		Characters:          cfg.Translate.Characters,
		Names:               cfg.Translate.Names,
		MaxContextSummaries: cfg.Translate.MaxContextSummaries,
		StopOnError:         cfg.Translate.StopOnError,
		RetryOnError:        cfg.Translate.RetryOnError,
		MaxConcurrentScenes: cfg.Translate.MaxConcurrentScenes,
	}
}

func RunOptions(cfg *config.Config) translator.RunOptions {
	return translator.RunOptions{
		Preview:  cfg.Translate.Preview,
		Resume:   cfg.Translate.Resume,
		Reparse:  cfg.Translate.Reparse,
		MaxLines: cfg.Translate.MaxLines,
	}
}

func ProviderConfig(cfg *config.Config) provider.Config {
	return provider.Config{
		Name: cfg.LLM.Provider,
		LLM: llm.Config{
			APIKey:      cfg.LLM.APIKey,
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			SiteURL:     cfg.LLM.SiteURL,
			AppName:     cfg.LLM.AppName,
		},
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	}
}

// LanguageName returns the English name of tag, e.g. "German".
func LanguageName(tag language.Tag) string {
	if tag == language.Und {
		return "Unknown"
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

func buildSubstitutions(fs afero.Fs, cfg config.TranslateConfig, dir string, source, target language.Tag) (*substitution.Substitutions, error) {
	mode, err := substitution.ParseMode(cfg.SubstitutionMode)
	if err != nil {
		return nil, err
	}

	merged := make(substitution.Map)
	path := cfg.SubstitutionsFile
	if path == "" && source != language.Und {
		path = substitution.FindInAncestors(fs, dir, source.String(), target.String())
	}
	if path != "" {
		m, err := substitution.Load(fs, path)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			merged[k] = v
		}
		log.Info("Loaded %d substitutions from %s", len(m), path)
	}

	if len(cfg.Substitutions) > 0 {
		inline, err := substitution.Parse(cfg.Substitutions)
		if err != nil {
			return nil, err
		}
		for k, v := range inline {
			merged[k] = v
		}
	}

	if len(merged) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	log.Debug("Substitutions: %s", strings.Join(keys, ", "))
	return substitution.New(merged, mode), nil
}
