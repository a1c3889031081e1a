package splitter

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLine(text string, d time.Duration) subtitle.Line {
	return subtitle.Line{Number: 5, StartTime: 10 * time.Second, EndTime: 10*time.Second + d, Text: text}
}

func TestSplitAtSentenceBoundary(t *testing.T) {
	t.Parallel()

	s := New(3500*time.Millisecond, time.Second, 4, DefaultMinGap, "")
	line := newLine("First sentence. Second sentence.", 7*time.Second)

	pieces := s.Split(line)

	require.Len(t, pieces, 2)
	assert.Equal(t, "First sentence.", pieces[0].Text)
	assert.Equal(t, "Second sentence.", pieces[1].Text)
	assert.Equal(t, 5, pieces[0].Number)
	assert.Equal(t, 6, pieces[1].Number)

	assert.Equal(t, line.StartTime, pieces[0].StartTime)
	assert.Equal(t, line.EndTime, pieces[1].EndTime)
	assert.Equal(t, DefaultMinGap, pieces[1].StartTime-pieces[0].EndTime)
	assert.GreaterOrEqual(t, pieces[0].Duration(), time.Second)
	assert.GreaterOrEqual(t, pieces[1].Duration(), time.Second)

	// 15 of 32 characters on the left
	assert.InDelta(t, 7.0*15/32, (pieces[0].Duration() + DefaultMinGap).Seconds(), 1e-6)
}

func TestSplitShortDurationUntouched(t *testing.T) {
	t.Parallel()

	s := New(5*time.Second, time.Second, 4, 0, "")
	line := newLine("First sentence. Second sentence.", 4*time.Second)
	assert.Equal(t, []subtitle.Line{line}, s.Split(line))
}

func TestSplitNeverBreaksMarkup(t *testing.T) {
	t.Parallel()

	s := New(2*time.Second, 500*time.Millisecond, 4, 0, "")
	for _, text := range []string{"<i>First sentence. Second sentence.</i>", `{\an8}First sentence. Second sentence.`} {
		line := newLine(text, 10*time.Second)
		assert.Len(t, s.Split(line), 1, text)
	}
}

func TestSplitTreatsComparisonsAsText(t *testing.T) {
	t.Parallel()

	s := New(2*time.Second, 500*time.Millisecond, 4, 0, "")
	for _, text := range []string{"If a < b. Then b > a.", "<3 you. See you > later."} {
		line := newLine(text, 10*time.Second)
		assert.Greater(t, len(s.Split(line)), 1, text)
	}
	assert.Len(t, s.Split(newLine(`<font color="red">Stop. Go.</font>`, 10*time.Second)), 1)
}

func TestSplitShortTextUntouched(t *testing.T) {
	t.Parallel()

	s := New(time.Second, 100*time.Millisecond, 4, 0, "")
	line := newLine("Hi. Yo", 10*time.Second)
	assert.Len(t, s.Split(line), 1)
}

func TestSplitPrefersStrongerSequence(t *testing.T) {
	t.Parallel()

	s := New(4*time.Second, 500*time.Millisecond, 4, 0, "")
	line := newLine("Hello there, friend.\nWe should really get going now, it is late.", 6*time.Second)

	pieces := s.Split(line)
	require.GreaterOrEqual(t, len(pieces), 2)
	assert.Equal(t, "Hello there, friend.", pieces[0].Text)
}

func TestSplitTieGoesToFirstOccurrence(t *testing.T) {
	t.Parallel()

	s := New(16*time.Second, time.Second, 4, 0, "")
	line := newLine("abc, defghi, klm", 20*time.Second)

	pieces := s.Split(line)
	require.Len(t, pieces, 2)
	assert.Equal(t, "abc,", pieces[0].Text)
	assert.Equal(t, "defghi, klm", pieces[1].Text)
}

func TestSplitRespectsMinDuration(t *testing.T) {
	t.Parallel()

	s := New(time.Second, 2*time.Second, 4, 0, "")
	line := newLine("First sentence. Second sentence.", 3*time.Second)
	assert.Len(t, s.Split(line), 1)
}

func TestSplitDisabled(t *testing.T) {
	t.Parallel()

	s := New(0, time.Second, 4, 0, "")
	lines := []subtitle.Line{newLine("First sentence. Second sentence.", time.Minute)}
	assert.Equal(t, lines, s.SplitAll(lines))
}

func TestProportionalDuration(t *testing.T) {
	t.Parallel()

	line := newLine("0123456789", 10*time.Second)
	assert.Equal(t, 3*time.Second, ProportionalDuration(line, 3, 0))
	assert.Equal(t, 4*time.Second, ProportionalDuration(line, 3, 4*time.Second))

	assert.Panics(t, func() { ProportionalDuration(line, 10, 0) })
	assert.Panics(t, func() { ProportionalDuration(line, -1, 0) })
}

func TestSplitPreservesSpanProperty(t *testing.T) {
	t.Parallel()

	words := []string{"well", "this", "is", "it.", "no!", "maybe,", "what?", "- okay", "sure", "我们", "走吧。", "好，"}
	rng := rand.New(rand.NewSource(7))
	minDuration := 500 * time.Millisecond
	s := New(3*time.Second, minDuration, 4, DefaultMinGap, "")

	for round := 0; round < 300; round++ {
		n := 2 + rng.Intn(25)
		parts := make([]string, n)
		for i := range parts {
			parts[i] = words[rng.Intn(len(words))]
		}
		line := newLine(strings.Join(parts, " "), time.Duration(500+rng.Intn(20000))*time.Millisecond)

		pieces := s.Split(line)
		require.NotEmpty(t, pieces)
		assert.Equal(t, line.StartTime, pieces[0].StartTime)
		assert.Equal(t, line.EndTime, pieces[len(pieces)-1].EndTime)

		if len(pieces) == 1 {
			continue
		}

		var covered time.Duration
		for i, p := range pieces {
			assert.Equal(t, line.Number+i, p.Number)
			assert.GreaterOrEqual(t, p.Duration(), minDuration, "piece %d of %q", i, line.Text)
			assert.NotEmpty(t, p.Text)
			covered += p.Duration()
			if i > 0 {
				assert.Equal(t, DefaultMinGap, p.StartTime-pieces[i-1].EndTime)
			}
		}
		assert.Equal(t, line.Duration()-time.Duration(len(pieces)-1)*DefaultMinGap, covered)
	}
}
