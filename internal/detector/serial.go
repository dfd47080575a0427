package detector

import (
	"context"
	"image"
	"sync"

	"github.com/MeKo-Tech/yolodet/internal/detect"
)

type serialJob struct {
	ctx        context.Context
	img        image.Image
	confidence float64
	result     chan serialResult
}

type serialResult struct {
	boxes []detect.RawBox
	err   error
}

// Serial funnels every Detect call through one worker goroutine so that a
// non-reentrant backend is never entered concurrently.
type Serial struct {
	inner Detector
	jobs  chan serialJob
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSerial starts the worker for d.
func NewSerial(d Detector) *Serial {
	s := &Serial{
		inner: d,
		jobs:  make(chan serialJob),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer s.wg.Done()
	for {
		select {
		case j := <-s.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- serialResult{err: err}
				continue
			}
			boxes, err := s.inner.Detect(j.ctx, j.img, j.confidence)
			j.result <- serialResult{boxes: boxes, err: err}
		case <-s.done:
			return
		}
	}
}

// Detect queues the request and waits for the worker or for ctx to end.
func (s *Serial) Detect(ctx context.Context, img image.Image, confidence float64) ([]detect.RawBox, error) {
	j := serialJob{ctx: ctx, img: img, confidence: confidence, result: make(chan serialResult, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case s.jobs <- j:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-j.result:
		return r.boxes, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ClassName delegates to the wrapped detector.
func (s *Serial) ClassName(classID int) (string, bool) { return s.inner.ClassName(classID) }

// Classes delegates to the wrapped detector.
func (s *Serial) Classes() []string { return s.inner.Classes() }

// Name delegates to the wrapped detector.
func (s *Serial) Name() string { return s.inner.Name() }

// CheckHealth delegates when the wrapped detector supports it.
func (s *Serial) CheckHealth(ctx context.Context) error {
	if hc, ok := s.inner.(HealthChecker); ok {
		return hc.CheckHealth(ctx)
	}
	return nil
}

// Close stops the worker after the running job and closes the wrapped detector.
// Calling Close more than once is safe.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return s.inner.Close()
}
