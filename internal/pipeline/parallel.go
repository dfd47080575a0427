package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/MeKo-Tech/yolodet/internal/translate"
)

// ProgressCallback receives progress for multi-image runs.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
}

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // Optional progress reporting
}

// DefaultParallelConfig returns one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

type imageJob struct {
	index int
	image image.Image
}

type imageResult struct {
	index  int
	result *Result
	err    error
}

// ProcessImages runs Process on every image with a worker pool and returns results in
// input order. Inference is still serialised by the detector; rendering overlaps.
// The first per-image error is returned alongside the partial results.
func (p *Pipeline) ProcessImages(ctx context.Context, images []image.Image, confidence float64,
	lang translate.Language, config ParallelConfig,
) ([]*Result, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	workers := min(config.MaxWorkers, len(images))

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(images))
		defer config.ProgressCallback.OnComplete()
	}

	jobs := make(chan imageJob, len(images))
	results := make(chan imageResult, len(images))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := ctx.Err(); err != nil {
					results <- imageResult{index: job.index, err: err}
					continue
				}
				res, err := p.Process(ctx, job.image, confidence, lang)
				results <- imageResult{index: job.index, result: res, err: err}
			}
		}()
	}

	for i, img := range images {
		jobs <- imageJob{index: i, image: img}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(images))
	errs := make([]error, len(images))
	processed := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		processed++
		if config.ProgressCallback != nil {
			config.ProgressCallback.OnProgress(processed, len(images))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return ordered, fmt.Errorf("image %d: %w", i, err)
		}
	}
	return ordered, nil
}
