package translator

import (
	"sync"

	"github.com/MimeLyc/scene-sub-translator/internal/scene"
)

// Events holds observer callbacks. Dispatch is serialised, so handlers see
// preprocessed, then each batch, then its scene, even when scenes run in parallel.
// Handlers must return quickly and must not register further handlers.
type Events struct {
	mu              sync.Mutex
	preprocessed    []func([]*scene.Scene)
	batchTranslated []func(*scene.Batch)
	sceneTranslated []func(*scene.Scene)
}

func NewEvents() *Events {
	return &Events{}
}

func (e *Events) OnPreprocessed(fn func([]*scene.Scene)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preprocessed = append(e.preprocessed, fn)
}

func (e *Events) OnBatchTranslated(fn func(*scene.Batch)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchTranslated = append(e.batchTranslated, fn)
}

func (e *Events) OnSceneTranslated(fn func(*scene.Scene)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sceneTranslated = append(e.sceneTranslated, fn)
}

func (e *Events) emitPreprocessed(scenes []*scene.Scene) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, fn := range e.preprocessed {
		fn(scenes)
	}
}

func (e *Events) emitBatchTranslated(b *scene.Batch) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, fn := range e.batchTranslated {
		fn(b)
	}
}

func (e *Events) emitSceneTranslated(s *scene.Scene) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, fn := range e.sceneTranslated {
		fn(s)
	}
}
