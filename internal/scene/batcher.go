package scene

import (
	"time"

	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

// Batcher partitions an ordered line list into scenes and batches.
type Batcher struct {
	SceneThreshold time.Duration
	BatchThreshold time.Duration
	MinBatchSize   int
	MaxBatchSize   int
}

func NewBatcher(sceneThreshold, batchThreshold time.Duration, minBatchSize, maxBatchSize int) *Batcher {
	return &Batcher{
		SceneThreshold: sceneThreshold,
		BatchThreshold: batchThreshold,
		MinBatchSize:   minBatchSize,
		MaxBatchSize:   maxBatchSize,
	}
}

// Batch makes a single forward pass over lines. A scene boundary always
// starts a new batch as well.
func (bt *Batcher) Batch(lines []subtitle.Line) []*Scene {
	var (
		scenes  []*Scene
		current *Scene
		batch   *Batch
		lastEnd time.Duration
		started bool
	)

	for _, line := range lines {
		gap := line.StartTime - lastEnd

		if !started || gap > bt.SceneThreshold {
			current = NewScene(len(scenes) + 1)
			scenes = append(scenes, current)
			batch = nil
		}

		if batch == nil ||
			(bt.MaxBatchSize > 0 && len(batch.Originals) >= bt.MaxBatchSize) ||
			(len(batch.Originals) >= bt.MinBatchSize && gap > bt.BatchThreshold) {
			batch = NewBatch(current.Number, len(current.Batches)+1)
			current.Batches = append(current.Batches, batch)
		}

		batch.Originals = append(batch.Originals, line)
		lastEnd = line.EndTime
		started = true
	}

	return scenes
}
