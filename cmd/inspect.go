package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/persistence"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

func newInspectCmd() *cobra.Command {
	var saved bool
	cmd := &cobra.Command{
		Use:   "inspect <subtitle.srt>",
		Short: "Show how a file is split into scenes and batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// inspect never talks to a provider
			cfg, err := loadConfig(func(c *config.Config) {
				if c.LLM.APIKey == "" {
					c.LLM.Provider = "dummy"
				}
			})
			if err != nil {
				return err
			}

			var doc *scene.Document
			if saved {
				store, err := persistence.NewSQLiteStore(cfg.DBPath())
				if err != nil {
					return err
				}
				defer store.Close()
				p, err := project.Load(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				doc = p.Document()
			} else {
				sub, err := subtitle.NewReader(afero.NewOsFs()).Read(args[0])
				if err != nil {
					return err
				}
				doc = project.Segment(sub.Lines, cfg.Segment)
			}
			return printDocument(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().BoolVar(&saved, "saved", false, "Show the saved project instead of segmenting the file")
	return cmd
}

func printDocument(out io.Writer, doc *scene.Document) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENE\tBATCH\tSTART\tEND\tLINES\tTRANSLATED\tSTATE")
	for _, s := range doc.Scenes {
		for _, b := range s.Batches {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%d\t%s\n",
				s.Number, b.Number,
				subtitle.FormatTimestamp(b.Start()), subtitle.FormatTimestamp(b.End()),
				b.LineCount(), len(b.Translated), b.State)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d scenes, %d lines\n", doc.SceneCount(), doc.LineCount())
	return err
}
