package provider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
)

// Dummy answers every request offline by echoing the source lines in the
// expected response format. Useful for dry runs and tests.
type Dummy struct {
	requests atomic.Int64
}

func NewDummy() *Dummy {
	return &Dummy{}
}

// Requests returns how many requests were answered.
func (d *Dummy) Requests() int64 {
	return d.requests.Load()
}

func (d *Dummy) SupportsParallelRequests() bool {
	return true
}

func (d *Dummy) RequestTranslation(_ context.Context, req translator.Request) (*scene.Round, error) {
	d.requests.Add(1)

	var b strings.Builder
	for _, line := range req.Lines {
		fmt.Fprintf(&b, "#%d\nOriginal>\n%s\nTranslation>\n%s\n\n", line.Number, line.Text, line.Text)
	}
	fmt.Fprintf(&b, "<summary>Scene %d batch %d: %d lines</summary>\n", req.Scene, req.Batch, len(req.Lines))

	return &scene.Round{
		Text:         b.String(),
		Prompt:       req.Prompt,
		FinishReason: "stop",
		Model:        "dummy",
	}, nil
}

// RequestRetranslation returns the prior response unchanged.
func (d *Dummy) RequestRetranslation(_ context.Context, prior *scene.Round, _ []error) (*scene.Round, error) {
	d.requests.Add(1)
	if prior == nil {
		return nil, nil
	}
	round := *prior
	return &round, nil
}
