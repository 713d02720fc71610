package publish

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "image/gif"
	_ "image/png"
)

// ImageFetcher downloads creation imagery to local files, optionally
// re-encoding to JPEG for targets that want a uniform format.
type ImageFetcher struct {
	httpClient *http.Client
}

func NewImageFetcher(timeout time.Duration) *ImageFetcher {
	return &ImageFetcher{httpClient: &http.Client{Timeout: timeout}}
}

// Download fetches url into dest. With convertJPEG set, decodable images
// are re-encoded as JPEG; sources the decoder does not understand (webp)
// are written as fetched. Failures are errors for the caller to log and
// move past, never fatal to a run.
func (f *ImageFetcher) Download(ctx context.Context, url, dest string, convertJPEG bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image fetch returned status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read image body: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	if convertJPEG {
		if decoded, _, err := image.Decode(bytes.NewReader(body)); err == nil {
			out, err := os.Create(dest)
			if err != nil {
				return fmt.Errorf("failed to create image file: %w", err)
			}
			defer out.Close()
			if err := jpeg.Encode(out, decoded, &jpeg.Options{Quality: 90}); err != nil {
				return fmt.Errorf("failed to encode jpeg: %w", err)
			}
			return nil
		}
		// Undecodable format: keep the original bytes.
	}

	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}
