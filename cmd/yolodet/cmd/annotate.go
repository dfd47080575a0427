package cmd

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yolodet/internal/config"
	"github.com/MeKo-Tech/yolodet/internal/pipeline"
	"github.com/MeKo-Tech/yolodet/internal/utils"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

// annotatedFile is one processed input in JSON output.
type annotatedFile struct {
	File      string           `json:"file"`
	Annotated string           `json:"annotated,omitempty"`
	Result    *pipeline.Result `json:"result"`
}

// annotateCmd represents the annotate command.
var annotateCmd = &cobra.Command{
	Use:   "annotate <image>...",
	Short: "Detect objects in local images and write annotated copies",
	Long: `Run the detection pipeline on one or more image files. For every input an
annotated JPEG named <name>_annotated.jpg is written and the detections are
printed to stdout.

Supported formats: JPEG, PNG, BMP, GIF, WebP

Examples:
  yolodet annotate photo.jpg
  yolodet annotate *.png --language ru --format csv
  yolodet annotate street.jpg --confidence 0.3 --output-dir out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnnotate,
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	flags := cmd.Flags()

	format, _ := flags.GetString("format")
	format = strings.ToLower(format)
	switch format {
	case outputFormatJSON, outputFormatCSV, outputFormatText:
	default:
		return fmt.Errorf("unsupported output format %q (use json, text or csv)", format)
	}

	confidence := cfg.Server.DefaultConfidence
	if flags.Changed("confidence") {
		confidence, _ = flags.GetFloat64("confidence")
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %v", confidence)
	}

	outputDir, _ := flags.GetString("output-dir")
	noImage, _ := flags.GetBool("no-image")
	workers, _ := flags.GetInt("workers")
	language, _ := flags.GetString("language")

	images, err := loadImages(args)
	if err != nil {
		return err
	}

	appCtx, err := openApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() { _ = appCtx.Close() }()

	p, err := appCtx.RequirePipeline()
	if err != nil {
		return err
	}
	lang, err := appCtx.Languages.Parse(language)
	if err != nil {
		return err
	}

	results, err := p.ProcessImages(cmd.Context(), images, confidence, lang,
		pipeline.ParallelConfig{MaxWorkers: workers})
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	files := make([]annotatedFile, len(args))
	for i, res := range results {
		files[i] = annotatedFile{File: args[i], Result: res}
		if noImage {
			continue
		}
		out, err := saveAnnotated(args[i], outputDir, res, cfg.Annotation.JPEGQuality)
		if err != nil {
			return err
		}
		files[i].Annotated = out
		slog.Debug("Annotated image written", "input", args[i], "output", out,
			"detections", len(res.Detections))
	}

	return writeAnnotateOutput(cmd.OutOrStdout(), format, files)
}

// loadImages decodes every input, failing on the first unreadable file.
func loadImages(paths []string) ([]image.Image, error) {
	images := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		if !utils.IsSupportedImage(path) {
			return nil, fmt.Errorf("unsupported image file: %s", path)
		}
		img, meta, err := utils.LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		slog.Debug("Image loaded", "path", path, "format", meta.Format,
			"width", meta.Width, "height", meta.Height)
		images = append(images, img)
	}
	return images, nil
}

// annotatedPath returns dir/<name>_annotated.jpg, defaulting dir to the input's directory.
func annotatedPath(input, dir string) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+"_annotated.jpg")
}

func saveAnnotated(input, dir string, res *pipeline.Result, quality int) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	out := annotatedPath(input, dir)
	if err := utils.SaveJPEG(out, res.Annotated, quality); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}

func writeAnnotateOutput(w io.Writer, format string, files []annotatedFile) error {
	switch format {
	case outputFormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(append([]string{"file"}, pipeline.CSVHeader...)); err != nil {
			return err
		}
		for _, f := range files {
			for _, row := range pipeline.CSVRecords(f.Result) {
				if err := cw.Write(append([]string{f.File}, row...)); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	case outputFormatText:
		for _, f := range files {
			text, err := pipeline.ToPlainText(f.Result)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "%s: %d detection(s)\n", f.File, len(f.Result.Detections))
			if text != "" {
				_, _ = fmt.Fprintln(w, text)
			}
		}
		return nil
	case outputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	}
	return errors.New("unknown output format")
}

func init() {
	rootCmd.AddCommand(annotateCmd)

	f := annotateCmd.Flags()
	f.Float64P("confidence", "c", 0.5, "minimum detection confidence (0..1)")
	f.StringP("language", "l", "", "label language (defaults to the source language)")
	f.StringP("format", "f", outputFormatJSON, "output format: json, text or csv")
	f.StringP("output-dir", "o", "", "directory for annotated images (default: next to the input)")
	f.Bool("no-image", false, "skip writing annotated images")
	f.Int("workers", 0, "parallel workers (0 = number of CPUs)")
	f.String("model", "", "ONNX model file or name inside the models directory")
	f.String("models-dir", "", "directory containing ONNX models")
	f.String("backend", config.BackendONNX, "detection backend: onnx or remote")
	f.String("remote-url", "", "detection endpoint for the remote backend")
	f.String("translations", "", "translation CSV file")
	f.String("font", "", "TrueType font file for labels")
	f.Bool("gpu", false, "enable CUDA acceleration")

	commandBindings[annotateCmd] = modelBindings()
}
