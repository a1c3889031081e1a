package service

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/translator"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

// Result describes a finished file translation.
type Result struct {
	InputPath      string
	OutputPath     string
	ProjectID      string
	SourceLanguage language.Tag
	TargetLanguage language.Tag
	Report         *translator.Report
	Written        bool
	Duration       time.Duration
}

func (r *Result) log() {
	if r.Report == nil {
		return
	}
	log.Info("%s: %d/%d lines translated in %d scenes, %d batches (%d failed) in %v",
		r.InputPath, r.Report.TranslatedLines, r.Report.Lines, r.Report.Scenes, r.Report.Batches,
		len(r.Report.FailedBatches), r.Duration.Round(time.Millisecond))
	for _, failed := range r.Report.FailedBatches {
		log.Warn("Scene %d batch %d: %v", failed.Scene, failed.Batch, failed.Errors)
	}
}

// PrintReport writes a human readable summary of r.
func PrintReport(w io.Writer, r *Result) {
	fmt.Fprintln(w, "=== Translation Report ===")
	fmt.Fprintf(w, "Source Language: %s\n", LanguageName(r.SourceLanguage))
	fmt.Fprintf(w, "Target Language: %s\n", LanguageName(r.TargetLanguage))
	fmt.Fprintf(w, "Translation Time: %v\n", r.Duration.Round(time.Millisecond))
	if r.Report != nil {
		fmt.Fprintf(w, "Scenes: %d\n", r.Report.Scenes)
		fmt.Fprintf(w, "Batches: %d\n", r.Report.Batches)
		fmt.Fprintf(w, "Lines: %d/%d translated\n", r.Report.TranslatedLines, r.Report.Lines)
		if n := len(r.Report.UntranslatedLines); n > 0 {
			fmt.Fprintf(w, "Untranslated: %d lines\n", n)
		}
		for _, failed := range r.Report.FailedBatches {
			fmt.Fprintf(w, "Failed: scene %d batch %d\n", failed.Scene, failed.Batch)
		}
		if r.Report.Aborted {
			fmt.Fprintln(w, "Run was aborted")
		}
	}
	if r.Written {
		fmt.Fprintf(w, "Output: %s\n", r.OutputPath)
	}
}
