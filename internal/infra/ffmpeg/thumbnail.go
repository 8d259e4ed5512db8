// Package ffmpeg shells out to ffmpeg for frame capture. The binary is an
// external collaborator; this adapter only builds arguments and moves bytes.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

const maxCaptureOffsetSeconds = 10

type ThumbnailExtractor struct {
	fetcher port.Fetcher
	storage port.ObjectStorage
	logger  *zap.Logger
	tempDir string
	width   int
}

func NewThumbnailExtractor(fetcher port.Fetcher, storage port.ObjectStorage, logger *zap.Logger, tempDir string, width int) *ThumbnailExtractor {
	return &ThumbnailExtractor{
		fetcher: fetcher,
		storage: storage,
		logger:  logger,
		tempDir: tempDir,
		width:   width,
	}
}

// Extract downloads the source, captures one frame at
// min(duration/3, 10) seconds, shrinks it to the configured width and
// uploads the JPEG. Returns the storage path of the uploaded image.
func (e *ThumbnailExtractor) Extract(ctx context.Context, params port.ThumbnailParams) (string, error) {
	workDir := filepath.Join(e.tempDir, "thumb-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputName := "input.mp4"
	if params.IsSegmentInput {
		inputName = "input.ts"
	}
	inputPath := filepath.Join(workDir, inputName)
	if err := e.download(ctx, params.SourceURL, inputPath); err != nil {
		return "", err
	}

	offset := params.DurationSeconds / 3
	if offset > maxCaptureOffsetSeconds {
		offset = maxCaptureOffsetSeconds
	}

	rawFrame := filepath.Join(workDir, "frame.png")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%d", offset),
		"-i", inputPath,
		"-frames:v", "1",
		"-y",
		rawFrame,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg frame capture: %w, output: %s", err, string(output))
	}

	thumbPath := filepath.Join(workDir, "thumb.jpg")
	if err := e.shrink(rawFrame, thumbPath); err != nil {
		return "", err
	}

	file, err := os.Open(thumbPath)
	if err != nil {
		return "", fmt.Errorf("open thumbnail: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat thumbnail: %w", err)
	}

	if err := e.storage.UploadStream(ctx, params.StoragePath, file, stat.Size(), "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}

	e.logger.Info("thumbnail extracted",
		zap.String("source", params.SourceURL),
		zap.String("storage_path", params.StoragePath),
		zap.Int("offset_seconds", offset),
	)

	return params.StoragePath, nil
}

func (e *ThumbnailExtractor) download(ctx context.Context, sourceURL string, destPath string) error {
	body, _, err := e.fetcher.FetchStream(ctx, sourceURL)
	if err != nil {
		return fmt.Errorf("download source %s: %w", sourceURL, err)
	}
	defer body.Close()

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		return fmt.Errorf("write scratch file: %w", err)
	}
	return nil
}

func (e *ThumbnailExtractor) shrink(srcPath string, destPath string) error {
	src, err := imaging.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}

	// Height 0 keeps the aspect ratio.
	resized := imaging.Resize(src, e.width, 0, imaging.Lanczos)

	if err := imaging.Save(resized, destPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	return nil
}
