package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/persistence"
	"github.com/MimeLyc/scene-sub-translator/internal/service"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
)

type translateFlags struct {
	output   string
	target   string
	preview  bool
	resume   bool
	reparse  bool
	maxLines int
	noStore  bool
}

func newTranslateCmd() *cobra.Command {
	flags := &translateFlags{}
	cmd := &cobra.Command{
		Use:   "translate <subtitle.srt>...",
		Short: "Translate one or more subtitle files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output path (single input only)")
	cmd.Flags().StringVarP(&flags.target, "target", "t", "", "Target language, e.g. de or zh-Hans")
	cmd.Flags().BoolVar(&flags.preview, "preview", false, "Segment and build prompts without calling the provider")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Continue a saved project, skipping translated batches")
	cmd.Flags().BoolVar(&flags.reparse, "reparse", false, "Re-read stored responses instead of requesting new ones")
	cmd.Flags().IntVar(&flags.maxLines, "max-lines", 0, "Stop after sending this many lines")
	cmd.Flags().BoolVar(&flags.noStore, "no-store", false, "Do not save project state")

	return cmd
}

func (f *translateFlags) apply(c *config.Config) {
	if f.preview {
		c.Translate.Preview = true
	}
	if f.resume {
		c.Translate.Resume = true
	}
	if f.reparse {
		c.Translate.Reparse = true
	}
	if f.maxLines > 0 {
		c.Translate.MaxLines = f.maxLines
	}
}

func runTranslate(cmd *cobra.Command, args []string, flags *translateFlags) error {
	if flags.output != "" && len(args) > 1 {
		return fmt.Errorf("--output needs a single input file")
	}
	if flags.maxLines < 0 {
		return fmt.Errorf("--max-lines must not be negative")
	}

	opts := []config.Option{flags.apply}
	if flags.target != "" {
		tag, err := language.Parse(flags.target)
		if err != nil {
			return fmt.Errorf("invalid --target %q: %w", flags.target, err)
		}
		opts = append(opts, func(c *config.Config) { c.Translate.TargetLanguage = tag })
	}
	cfg, err := loadConfig(opts...)
	if err != nil {
		return err
	}

	var svcOpts []service.Option
	if !flags.noStore && !cfg.Translate.Preview {
		store, err := persistence.NewSQLiteStore(cfg.DBPath())
		if err != nil {
			return err
		}
		defer store.Close()
		svcOpts = append(svcOpts, service.WithStore(store))
	}

	t, err := service.NewFileTranslator(cfg, svcOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var errs []error
	for _, in := range args {
		res, err := t.TranslateFile(ctx, in, flags.output)
		if res != nil {
			service.PrintReport(cmd.OutOrStdout(), res)
		}
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", in, err))
		if translator.IsAborted(err) {
			break
		}
	}
	return errors.Join(errs...)
}
