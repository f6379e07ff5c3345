package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"go.uber.org/zap"

	"github.com/menta2k/image-pipeline/pkg/detect"
	"github.com/menta2k/image-pipeline/pkg/engine"
	"github.com/menta2k/image-pipeline/pkg/errs"
	"github.com/menta2k/image-pipeline/pkg/overlay"
	"github.com/menta2k/image-pipeline/pkg/smartcrop"
	"github.com/menta2k/image-pipeline/pkg/storage"
	"github.com/menta2k/image-pipeline/pkg/types"
)

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, &storage.KeyNotFoundError{Bucket: bucket, Key: key}
	}
	return data, nil
}

type fakeFaces struct {
	faces []types.Face
	err   error
	calls int
}

func (f *fakeFaces) DetectFaces(ctx context.Context, image []byte) ([]types.Face, error) {
	f.calls++
	return f.faces, f.err
}

type fakeLabels struct {
	labels []types.Label
	err    error
	gotMin float64
}

func (f *fakeLabels) DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]types.Label, error) {
	f.gotMin = minConfidence
	return f.labels, f.err
}

func newTestPipeline(store storage.ObjectStore, faces detect.FaceDetector, labels detect.LabelDetector) *Pipeline {
	eng := engine.New()
	var resolver *overlay.Resolver
	if store != nil {
		resolver = overlay.NewResolver(store, eng)
	}
	var fc *smartcrop.FaceCrop
	if faces != nil {
		fc = smartcrop.NewFaceCrop(faces)
	}
	var oc *smartcrop.ObjectCrop
	if labels != nil {
		oc = smartcrop.NewObjectCrop(labels)
	}
	return New(eng, resolver, fc, oc, zap.NewNop())
}

func testHandle(w, h int, c color.NRGBA) *engine.Handle {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return engine.FromImage(img, "png")
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func parseSpec(t *testing.T, data string) EditSpec {
	t.Helper()
	var spec EditSpec
	if err := spec.UnmarshalJSON([]byte(data)); err != nil {
		t.Fatalf("failed to parse edit spec %s: %v", data, err)
	}
	return spec
}

func assertPixel(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	if got != want {
		t.Errorf("pixel (%d,%d): expected %v, got %v", x, y, want, got)
	}
}

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
)

func TestApplyOrderMatters(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)

	first := testHandle(200, 100, white)
	if err := p.Apply(context.Background(), first, parseSpec(t, `{"rotate":90,"resize":{"width":50}}`)); err != nil {
		t.Fatalf("rotate then resize failed: %v", err)
	}
	if first.Width() != 50 || first.Height() != 100 {
		t.Errorf("rotate then resize: expected 50x100, got %dx%d", first.Width(), first.Height())
	}

	second := testHandle(200, 100, white)
	if err := p.Apply(context.Background(), second, parseSpec(t, `{"resize":{"width":50},"rotate":90}`)); err != nil {
		t.Fatalf("resize then rotate failed: %v", err)
	}
	if second.Width() != 25 || second.Height() != 50 {
		t.Errorf("resize then rotate: expected 25x50, got %dx%d", second.Width(), second.Height())
	}
}

func TestApplyEmptySpec(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)
	h := testHandle(120, 80, white)
	if err := p.Apply(context.Background(), h, parseSpec(t, `{}`)); err != nil {
		t.Fatalf("empty spec failed: %v", err)
	}
	if h.Width() != 120 || h.Height() != 80 {
		t.Errorf("empty spec changed dimensions to %dx%d", h.Width(), h.Height())
	}
}

func TestApplyUnknownOperation(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)
	h := testHandle(40, 40, white)
	err := p.Apply(context.Background(), h, parseSpec(t, `{"vignette":{"radius":3}}`))
	if err == nil {
		t.Fatal("expected error for unknown operation")
	}
	if !errs.Is(err, errs.CodeUnknownEditOperation) {
		t.Errorf("expected %s, got %v", errs.CodeUnknownEditOperation, err)
	}
	if got := errs.From(err).Status; got != 400 {
		t.Errorf("expected status 400, got %d", got)
	}
}

func TestApplyRotateNullPassThrough(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)
	h := testHandle(120, 80, white)
	if err := p.Apply(context.Background(), h, parseSpec(t, `{"rotate":null,"resize":{"width":60}}`)); err != nil {
		t.Fatalf("rotate null failed: %v", err)
	}
	if h.Width() != 60 || h.Height() != 40 {
		t.Errorf("expected 60x40, got %dx%d", h.Width(), h.Height())
	}
}

func TestApplyOverlayPlacement(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"assets/logo.png": pngBytes(t, testHandle(8, 4, red).Image()),
	}}
	p := newTestPipeline(store, nil, nil)

	h := testHandle(80, 40, white)
	spec := parseSpec(t, `{"overlayWith":{"bucket":"assets","key":"logo.png","options":{"left":"25p","top":0}}}`)
	if err := p.Apply(context.Background(), h, spec); err != nil {
		t.Fatalf("overlay failed: %v", err)
	}

	if h.Width() != 80 || h.Height() != 40 {
		t.Fatalf("overlay changed base dimensions to %dx%d", h.Width(), h.Height())
	}
	assertPixel(t, h.Image(), 21, 1, red)
	assertPixel(t, h.Image(), 10, 10, white)
}

func TestApplyOverlayMeasuresResizedBase(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"assets/logo.png": pngBytes(t, testHandle(20, 10, red).Image()),
	}}
	p := newTestPipeline(store, nil, nil)

	h := testHandle(100, 50, white)
	spec := parseSpec(t, `{"resize":{"width":200},"overlayWith":{"bucket":"assets","key":"logo.png","options":{"left":"50p","top":"0"}}}`)
	if err := p.Apply(context.Background(), h, spec); err != nil {
		t.Fatalf("overlay failed: %v", err)
	}

	if h.Width() != 200 || h.Height() != 100 {
		t.Fatalf("expected 200x100, got %dx%d", h.Width(), h.Height())
	}
	assertPixel(t, h.Image(), 105, 3, red)
	assertPixel(t, h.Image(), 50, 3, white)
}

func TestApplyOverlayMissingSource(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	p := newTestPipeline(store, nil, nil)
	h := testHandle(40, 40, white)
	err := p.Apply(context.Background(), h, parseSpec(t, `{"overlayWith":{"bucket":"assets","key":"nope.png"}}`))
	if !errs.Is(err, errs.CodeNoSuchKey) {
		t.Errorf("expected %s, got %v", errs.CodeNoSuchKey, err)
	}
	if got := errs.From(err).Status; got != 404 {
		t.Errorf("expected status 404, got %d", got)
	}
}

func faceCropImage() *engine.Handle {
	img := image.NewNRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			if x >= 20 && x < 60 && y >= 20 && y < 60 {
				img.SetNRGBA(x, y, red)
			} else {
				img.SetNRGBA(x, y, white)
			}
		}
	}
	return engine.FromImage(img, "png")
}

func TestApplyFaceCrop(t *testing.T) {
	faces := &fakeFaces{faces: []types.Face{
		{Confidence: 0.95, Box: types.BoundingBox{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.5}},
	}}
	p := newTestPipeline(nil, faces, nil)

	h := faceCropImage()
	if err := p.Apply(context.Background(), h, parseSpec(t, `{"smartCrop":{"faceIndex":0,"padding":0}}`)); err != nil {
		t.Fatalf("smart crop failed: %v", err)
	}

	if h.Width() != 40 || h.Height() != 40 {
		t.Fatalf("expected 40x40 crop, got %dx%d", h.Width(), h.Height())
	}
	assertPixel(t, h.Image(), 0, 0, red)
	assertPixel(t, h.Image(), 39, 39, red)
	if faces.calls != 1 {
		t.Errorf("expected 1 detector call, got %d", faces.calls)
	}
}

func TestApplyFaceCropDefaults(t *testing.T) {
	faces := &fakeFaces{faces: []types.Face{
		{Confidence: 0.95, Box: types.BoundingBox{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.5}},
	}}
	p := newTestPipeline(nil, faces, nil)

	h := faceCropImage()
	if err := p.Apply(context.Background(), h, parseSpec(t, `{"smartCrop":true}`)); err != nil {
		t.Fatalf("smart crop with defaults failed: %v", err)
	}
	if h.Width() != 40 || h.Height() != 40 {
		t.Errorf("expected 40x40 crop, got %dx%d", h.Width(), h.Height())
	}
}

func TestApplyFaceCropSkippedWhenFalse(t *testing.T) {
	faces := &fakeFaces{}
	p := newTestPipeline(nil, faces, nil)

	h := faceCropImage()
	if err := p.Apply(context.Background(), h, parseSpec(t, `{"smartCrop":false}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Width() != 80 || h.Height() != 80 {
		t.Errorf("disabled smart crop changed dimensions to %dx%d", h.Width(), h.Height())
	}
	if faces.calls != 0 {
		t.Errorf("detector should not be called, got %d calls", faces.calls)
	}
}

func TestApplyFaceCropIndexOutOfRange(t *testing.T) {
	faces := &fakeFaces{faces: []types.Face{
		{Confidence: 0.95, Box: types.BoundingBox{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.5}},
	}}
	p := newTestPipeline(nil, faces, nil)

	err := p.Apply(context.Background(), faceCropImage(), parseSpec(t, `{"smartCrop":{"faceIndex":3}}`))
	if !errs.Is(err, errs.CodeFaceIndexOutOfRange) {
		t.Errorf("expected %s, got %v", errs.CodeFaceIndexOutOfRange, err)
	}
	if got := errs.From(err).Status; got != 400 {
		t.Errorf("expected status 400, got %d", got)
	}
}

func TestApplyFaceCropPaddingOutOfBounds(t *testing.T) {
	faces := &fakeFaces{faces: []types.Face{
		{Confidence: 0.95, Box: types.BoundingBox{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.5}},
	}}
	p := newTestPipeline(nil, faces, nil)

	err := p.Apply(context.Background(), faceCropImage(), parseSpec(t, `{"smartCrop":{"faceIndex":0,"padding":-30}}`))
	if !errs.Is(err, errs.CodePaddingOutOfBounds) {
		t.Errorf("expected %s, got %v", errs.CodePaddingOutOfBounds, err)
	}
	if got := errs.From(err).Status; got != 400 {
		t.Errorf("expected status 400, got %d", got)
	}
}

func TestApplyObjectCrop(t *testing.T) {
	labels := &fakeLabels{labels: []types.Label{
		{
			Name:       "cat",
			Confidence: 0.9,
			Instances: []types.Instance{
				{Confidence: 0.8, Box: types.BoundingBox{Left: 0.2, Top: 0.1, Width: 0.1, Height: 0.1}},
				{Confidence: 0.7, Box: types.BoundingBox{Left: 0.1, Top: 0.3, Width: 0.2, Height: 0.2}},
			},
		},
	}}
	p := newTestPipeline(nil, nil, labels)

	h := testHandle(100, 100, white)
	if err := p.Apply(context.Background(), h, parseSpec(t, `{"smartCrop2":{"minConfidence":0.6}}`)); err != nil {
		t.Fatalf("object crop failed: %v", err)
	}

	if h.Width() != 20 || h.Height() != 40 {
		t.Errorf("expected 20x40 crop, got %dx%d", h.Width(), h.Height())
	}
	if labels.gotMin != 0.6 {
		t.Errorf("expected minConfidence 0.6 to be passed through, got %v", labels.gotMin)
	}
}

func TestApplyObjectCropNoDetections(t *testing.T) {
	labels := &fakeLabels{}
	p := newTestPipeline(nil, nil, labels)

	h := testHandle(100, 100, white)
	if err := p.Apply(context.Background(), h, parseSpec(t, `{"smartCrop2":true}`)); err != nil {
		t.Fatalf("object crop failed: %v", err)
	}
	if h.Width() != 100 || h.Height() != 100 {
		t.Errorf("no detections should keep the full image, got %dx%d", h.Width(), h.Height())
	}
	if labels.gotMin != 0.5 {
		t.Errorf("expected default minConfidence 0.5, got %v", labels.gotMin)
	}
}

func TestApplyDetectorFailure(t *testing.T) {
	faces := &fakeFaces{err: errors.New("model offline")}
	p := newTestPipeline(nil, faces, nil)

	err := p.Apply(context.Background(), faceCropImage(), parseSpec(t, `{"smartCrop":true}`))
	if !errs.Is(err, errs.CodeUpstream) {
		t.Errorf("expected %s, got %v", errs.CodeUpstream, err)
	}
	if got := errs.From(err).Status; got != 500 {
		t.Errorf("expected status 500, got %d", got)
	}
}

func TestApplyWithoutConfiguredResolvers(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)

	err := p.Apply(context.Background(), faceCropImage(), parseSpec(t, `{"smartCrop":true}`))
	if !errs.Is(err, errs.CodeInternal) {
		t.Errorf("expected %s, got %v", errs.CodeInternal, err)
	}

	err = p.Apply(context.Background(), testHandle(10, 10, white), parseSpec(t, `{"overlayWith":{"bucket":"a","key":"b"}}`))
	if !errs.Is(err, errs.CodeInternal) {
		t.Errorf("expected %s, got %v", errs.CodeInternal, err)
	}
}

func TestApplyCancelledContext(t *testing.T) {
	p := newTestPipeline(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Apply(ctx, testHandle(10, 10, white), parseSpec(t, `{"rotate":90}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSizeGuard(t *testing.T) {
	guard := SizeGuard{MaxBytes: 100}

	if err := guard.Check(make([]byte, 100)); err != nil {
		t.Errorf("payload at the ceiling must pass: %v", err)
	}

	err := guard.Check(make([]byte, 101))
	if err == nil {
		t.Fatal("expected error above the ceiling")
	}
	if !errs.Is(err, errs.CodeTooLargeImage) {
		t.Errorf("expected %s, got %v", errs.CodeTooLargeImage, err)
	}
	if got := errs.From(err).Status; got != 413 {
		t.Errorf("expected status 413, got %d", got)
	}
}

func TestSizeGuardDefaultCeiling(t *testing.T) {
	var guard SizeGuard

	if err := guard.Check(make([]byte, DefaultMaxOutputBytes)); err != nil {
		t.Errorf("payload at the default ceiling must pass: %v", err)
	}
	if err := guard.Check(make([]byte, DefaultMaxOutputBytes+1)); err == nil {
		t.Error("expected error above the default ceiling")
	}
}
