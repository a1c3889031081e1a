package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// SRTWriter writes SRT files to an afero filesystem.
type SRTWriter struct {
	fs afero.Fs
}

func NewWriter(fs afero.Fs) *SRTWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &SRTWriter{fs: fs}
}

// Write renders each line's translation, falling back to the original text.
func (w *SRTWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	if err := w.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := w.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := ComposeSRT(f, subtitle.Lines); err != nil {
		_ = f.Close()
		_ = w.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = w.fs.Remove(tmp)
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := w.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace output file: %w", err)
	}
	return nil
}

// ComposeSRT writes lines in SRT format to out.
func ComposeSRT(out io.Writer, lines []Line) error {
	writer := bufio.NewWriter(out)
	for _, line := range lines {
		if _, err := fmt.Fprintf(writer, "%d\n%s --> %s\n%s\n\n",
			line.Number,
			FormatTimestamp(line.StartTime),
			FormatTimestamp(line.EndTime),
			line.OutputText()); err != nil {
			return fmt.Errorf("failed to write line %d: %w", line.Number, err)
		}
	}
	return writer.Flush()
}
