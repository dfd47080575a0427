package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/yolodet/internal/detect"
	"github.com/MeKo-Tech/yolodet/internal/fonts"
	"github.com/MeKo-Tech/yolodet/internal/render"
	"github.com/MeKo-Tech/yolodet/internal/testutil"
	"github.com/MeKo-Tech/yolodet/internal/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, det *testutil.FakeDetector) *Pipeline {
	t.Helper()
	table := translate.NewTable(map[string]translate.Entry{
		"person": {Target: "человек", ClassNumber: 0},
		"dog":    {Target: "собака", ClassNumber: 3},
	})
	labeler := detect.NewLabeler(det, translate.NewResolver(table, translate.DefaultLanguages()))
	p, err := NewBuilder().
		WithDetector(det).
		WithLabeler(labeler).
		WithRenderer(render.New(render.DefaultOptions(), fonts.Builtin(), labeler)).
		Build()
	require.NoError(t, err)
	return p
}

func TestBuilderRequiresDetector(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
}

func TestBuilderDefaults(t *testing.T) {
	det := testutil.NewFakeDetector()
	p, err := NewBuilder().WithDetector(det).Build()
	require.NoError(t, err)
	assert.Same(t, det, p.Detector())
	assert.NotNil(t, p.Labeler())
	assert.NotNil(t, p.Renderer())
	assert.Equal(t, fonts.BuiltinName, p.Renderer().FontName())
}

func TestProcess(t *testing.T) {
	det := testutil.NewFakeDetector(
		testutil.Box(10, 10, 50, 50, 0.3, 0),
		testutil.Box(60, 20, 120, 80, 0.9, 3),
		testutil.Box(100, 100, 150, 150, 0.5, 4),
		testutil.Box(90, 10, 40, 60, 0.8, 1),
		testutil.Box(0, 0, 5, 5, 0.1, 2),
	)
	p := newTestPipeline(t, det)
	img := testutil.CreateTestImage(200, 160, color.RGBA{R: 90, G: 90, B: 90, A: 255})

	res, err := p.Process(context.Background(), img, 0.25, translate.Language("ru"))
	require.NoError(t, err)

	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 160, res.Height)
	assert.Equal(t, translate.Language("ru"), res.Language)
	assert.InDelta(t, 0.25, det.LastConfidence(), 1e-9)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Detections, 3)

	assert.Equal(t, "собака", res.Detections[0].Label)
	assert.Equal(t, "dog", res.Detections[0].LabelSource)
	assert.Equal(t, "zebra", res.Detections[1].Label)
	assert.Equal(t, "человек", res.Detections[2].Label)
	require.NoError(t, ValidateResult(res))

	require.NotNil(t, res.Annotated)
	assert.Equal(t, img.Bounds().Size(), res.Annotated.Bounds().Size())
	assert.False(t, testutil.CompareImages(img, res.Annotated, 0))
	assert.GreaterOrEqual(t, res.Timing.TotalNs, res.Timing.InferenceNs)
}

func TestProcessDeterministic(t *testing.T) {
	det := testutil.NewFakeDetector(testutil.Box(20, 30, 90, 100, 0.77, 2))
	p := newTestPipeline(t, det)
	img := testutil.CreateGradientImage(160, 120)

	a, err := p.Process(context.Background(), img, 0.5, translate.Language("en"))
	require.NoError(t, err)
	b, err := p.Process(context.Background(), img, 0.5, translate.Language("en"))
	require.NoError(t, err)
	assert.Equal(t, a.Annotated.Pix, b.Annotated.Pix)
	assert.Equal(t, a.Detections, b.Detections)
}

func TestProcessErrors(t *testing.T) {
	det := testutil.NewFakeDetector()
	p := newTestPipeline(t, det)
	img := testutil.CreateTestImage(10, 10, color.White)

	_, err := p.Process(context.Background(), nil, 0.5, "en")
	require.ErrorIs(t, err, ErrNilImage)

	for _, c := range []float64{-0.1, 1.01, math.NaN()} {
		_, err = p.Process(context.Background(), img, c, "en")
		require.ErrorIs(t, err, ErrInvalidConfidence)
	}
	assert.Equal(t, 0, det.Calls())

	det.Err = errors.New("session exploded")
	_, err = p.Process(context.Background(), img, 0.5, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session exploded")

	det.Err = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx, img, 0.5, "en")
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessEmpty(t *testing.T) {
	p := newTestPipeline(t, testutil.NewFakeDetector())
	img := testutil.CreateGradientImage(32, 32)
	res, err := p.Process(context.Background(), img, 0.5, "en")
	require.NoError(t, err)
	assert.Empty(t, res.Detections)
	assert.True(t, testutil.CompareImages(img, res.Annotated, 0))
}

func TestProcessImagesOrdered(t *testing.T) {
	det := testutil.NewFakeDetector(testutil.Box(1, 1, 5, 5, 0.9, 0))
	p := newTestPipeline(t, det)
	images := []image.Image{
		testutil.CreateTestImage(10, 10, color.White),
		testutil.CreateTestImage(20, 12, color.White),
		testutil.CreateTestImage(30, 14, color.White),
	}
	progress := &recordingProgress{}
	results, err := p.ProcessImages(context.Background(), images, 0.5, "en",
		ParallelConfig{MaxWorkers: 2, ProgressCallback: progress})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, images[i].Bounds().Dx(), r.Width)
		assert.Len(t, r.Detections, 1)
	}
	assert.Equal(t, 3, progress.total)
	assert.Equal(t, 3, progress.last)
	assert.True(t, progress.done)

	_, err = p.ProcessImages(context.Background(), nil, 0.5, "en", DefaultParallelConfig())
	require.Error(t, err)
}

func TestProcessImagesReportsFirstError(t *testing.T) {
	p := newTestPipeline(t, testutil.NewFakeDetector())
	images := []image.Image{testutil.CreateTestImage(4, 4, color.White), nil}
	results, err := p.ProcessImages(context.Background(), images, 0.5, "en", ParallelConfig{MaxWorkers: 1})
	require.ErrorIs(t, err, ErrNilImage)
	assert.Contains(t, err.Error(), "image 1")
	assert.NotNil(t, results[0])
}

type recordingProgress struct {
	total, last int
	done        bool
}

func (r *recordingProgress) OnStart(total int)         { r.total = total }
func (r *recordingProgress) OnProgress(current, _ int) { r.last = current }
func (r *recordingProgress) OnComplete()               { r.done = true }
