package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	imagepipeline "github.com/menta2k/image-pipeline"
	"github.com/menta2k/image-pipeline/internal/config"
	"github.com/menta2k/image-pipeline/internal/logging"
	"github.com/menta2k/image-pipeline/internal/utils"
	"github.com/menta2k/image-pipeline/pkg/detect"
	"github.com/menta2k/image-pipeline/pkg/detect/llamacpp"
	"github.com/menta2k/image-pipeline/pkg/detect/ollama"
	"github.com/menta2k/image-pipeline/pkg/engine"
	"github.com/menta2k/image-pipeline/pkg/pipeline"
	"github.com/menta2k/image-pipeline/pkg/storage"
)

// visionDetector is what the smart crop edits need from a backend: one
// client serves both the face and the label detection calls.
type visionDetector interface {
	detect.FaceDetector
	detect.LabelDetector
}

func main() {
	var in, out, edits, format, cfgPath string
	var storeRoot, backend, url, model string
	var maxBytes, quality int
	var info, debug bool

	flag.StringVar(&in, "in", "", "input image path (jpg/png/gif/bmp/tiff/webp)")
	flag.StringVar(&out, "out", "", "output image path (default: alongside input with _edited suffix)")
	flag.StringVar(&edits, "edits", "", "edit spec: inline JSON object or path to a JSON file")
	flag.StringVar(&format, "format", "", "output format: jpg|png|gif|bmp|tiff|webp (default: input format)")
	flag.StringVar(&cfgPath, "config", "", "config file path (default: built-in defaults)")

	flag.StringVar(&storeRoot, "store", "", "overlay store root directory")
	flag.StringVar(&backend, "backend", "", "detector backend: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "detector server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "vision model name")

	flag.IntVar(&maxBytes, "max-bytes", 0, "output payload ceiling in bytes (0 = config default)")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality 1-100 (0 = config default)")
	flag.BoolVar(&info, "info", false, "print image metadata and exit")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in input.jpg [-edits '{\"resize\":{\"width\":800}}'] [-out output.jpg] [-format jpg|png|webp] [-store ./assets] [-backend ollama|llamacpp]", filepath.Base(os.Args[0]))
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.LoadFromFile(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	applyOverrides(cfg, storeRoot, backend, url, model, maxBytes, quality)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	data, err := os.ReadFile(in)
	if err != nil {
		log.Fatal(err)
	}
	if !utils.IsImageFile(in) {
		log.Printf("warning: %s does not have an image extension, decoding anyway", in)
	}

	eng := engine.New()
	eng.JPEGQuality = cfg.Engine.JPEGQuality
	eng.WebPQuality = cfg.Engine.WebPQuality
	eng.WebPLossless = cfg.Engine.WebPLossless

	opts := []imagepipeline.Option{
		imagepipeline.WithLogger(logger),
		imagepipeline.WithEngine(eng),
		imagepipeline.WithSizeCeiling(cfg.Output.MaxBytes),
	}
	if cfg.Store.Root != "" {
		opts = append(opts, imagepipeline.WithStore(storage.NewFileSystem(cfg.Store.Root)))
	}

	spec, err := readEdits(edits)
	if err != nil {
		log.Fatal(err)
	}
	if specNeedsDetector(spec) {
		detector, err := newDetector(cfg.Detector)
		if err != nil {
			log.Fatalf("Failed to create detector: %v", err)
		}
		opts = append(opts,
			imagepipeline.WithFaceDetector(detector),
			imagepipeline.WithLabelDetector(detector))
	}

	handler, err := imagepipeline.New(opts...)
	if err != nil {
		log.Fatalf("Failed to create handler: %v", err)
	}

	if info {
		meta, err := handler.Inspect(data)
		if err != nil {
			log.Fatal(err)
		}
		js, _ := json.MarshalIndent(meta, "", "  ")
		fmt.Println(string(js))
		return
	}

	if format == "" {
		format = cfg.Output.DefaultFormat
	}
	result, err := handler.Process(context.Background(), imagepipeline.Request{
		OriginalImage: data,
		Edits:         spec,
		OutputFormat:  format,
	})
	if err != nil {
		log.Fatal(err)
	}

	if out == "" {
		out = utils.GenerateOutputFilename(in, filepath.Dir(in), "", "_edited", result.Format)
	}
	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%dx%d %s, %s)", out, result.Width, result.Height,
		result.Format, utils.FormatFileSize(int64(len(result.Data))))
}

// applyOverrides folds the command line flags into the configuration.
// Zero values mean the flag was not given.
func applyOverrides(cfg *config.Config, storeRoot, backend, url, model string, maxBytes, quality int) {
	if storeRoot != "" {
		cfg.Store.Root = storeRoot
	}
	if backend != "" {
		cfg.Detector.Backend = backend
	}
	if url != "" {
		cfg.Detector.URL = url
	}
	if model != "" {
		cfg.Detector.Model = model
	}
	if maxBytes > 0 {
		cfg.Output.MaxBytes = maxBytes
	}
	if quality > 0 {
		cfg.Engine.JPEGQuality = quality
		cfg.Engine.WebPQuality = float32(quality)
	}
}

// readEdits parses the -edits argument, accepting inline JSON or a file
// path. An empty argument means no edits.
func readEdits(arg string) (*pipeline.EditSpec, error) {
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if !strings.HasPrefix(strings.TrimSpace(arg), "{") {
		var err error
		data, err = os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read edits file: %w", err)
		}
	}
	var spec pipeline.EditSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse edits: %w", err)
	}
	return &spec, nil
}

// specNeedsDetector reports whether the edit spec contains a smart crop
// entry. Detector clients are only built when one will be used, so plain
// resize runs do not require a model server.
func specNeedsDetector(spec *pipeline.EditSpec) bool {
	if spec == nil {
		return false
	}
	return spec.Has("smartCrop") || spec.Has("smartCrop2")
}

func newDetector(cfg config.DetectorConfig) (visionDetector, error) {
	switch cfg.Backend {
	case "ollama":
		serverURL := cfg.URL
		if serverURL == "" {
			serverURL = "http://localhost:11434"
		}
		d, err := ollama.New(serverURL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return d, nil
	case "llamacpp":
		d, err := llamacpp.New(cfg.URL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", cfg.Backend)
	}
}
