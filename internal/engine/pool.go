package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/cesar/internal/pipeline"
)

// Engine transcribes with one loaded model.
type Engine interface {
	Transcribe(ctx context.Context, path string) (pipeline.Transcript, error)
}

// Factory loads the engine for a model config.
type Factory func(model string) (Engine, error)

// Pool caches one engine per model config. Engines are loaded on first use
// and kept for the life of the pool.
type Pool struct {
	mu      sync.Mutex
	factory Factory
	engines map[string]Engine
	log     zerolog.Logger
}

func NewPool(factory Factory, log zerolog.Logger) *Pool {
	return &Pool{
		factory: factory,
		engines: make(map[string]Engine),
		log:     log,
	}
}

// Transcribe implements pipeline.Transcriber.
func (p *Pool) Transcribe(ctx context.Context, path, model string) (pipeline.Transcript, error) {
	e, err := p.get(model)
	if err != nil {
		return pipeline.Transcript{}, err
	}
	return e.Transcribe(ctx, path)
}

func (p *Pool) get(model string) (Engine, error) {
	model = strings.ToLower(strings.TrimSpace(model))
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.engines[model]; ok {
		return e, nil
	}
	e, err := p.factory(model)
	if err != nil {
		return nil, err
	}
	p.engines[model] = e
	p.log.Info().Str("model", model).Msg("transcription engine loaded")
	return e, nil
}

// modelFiles maps model configs to whisper.cpp ggml file names.
var modelFiles = map[string]string{
	"tiny":   "ggml-tiny.bin",
	"base":   "ggml-base.bin",
	"small":  "ggml-small.bin",
	"medium": "ggml-medium.bin",
	"large":  "ggml-large-v3.bin",
}

// WhisperFactory resolves model files under modelDir and builds Whisper
// engines sharing cfg.
func WhisperFactory(modelDir string, cfg WhisperConfig) Factory {
	return func(model string) (Engine, error) {
		name, ok := modelFiles[model]
		if !ok {
			return nil, &pipeline.TranscriptionError{Message: fmt.Sprintf("unknown model %q", model)}
		}
		path := filepath.Join(modelDir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, &pipeline.TranscriptionError{
				Message: fmt.Sprintf("model %q is not installed", model),
				Err:     err,
			}
		}
		c := cfg
		c.ModelPath = path
		return NewWhisper(c), nil
	}
}
