package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
)

// VideoPlatformClient lists a creator's videos and downloads audio for
// one, modeled on the teacher's YouTubeAPIClient (metadata listing)
// and HTTPDownloader (robust retried file download), generalised from
// a single video platform to the spec's "remote video platform" port.
type VideoPlatformClient struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxFileSize int64
	tempDir     string
}

// NewVideoPlatformClient creates a new client against the downloader
// microservice fronting the upstream platform.
func NewVideoPlatformClient(baseURL, tempDir string) *VideoPlatformClient {
	if tempDir == "" {
		tempDir = "/tmp"
	}
	return &VideoPlatformClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		maxRetries:  3,
		retryDelay:  2 * time.Second,
		maxFileSize: 2 * 1024 * 1024 * 1024,
		tempDir:     tempDir,
	}
}

type listVideosResponse struct {
	Videos []models.VideoMeta `json:"videos"`
	Error  string             `json:"error,omitempty"`
}

// ListVideos returns the creator's videos in upload order, newest last.
func (c *VideoPlatformClient) ListVideos(ctx context.Context, creator string) ([]models.VideoMeta, error) {
	endpoint := fmt.Sprintf("%s/v1/creators/%s/videos", c.baseURL, creator)

	var last error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<uint(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternalError, "build list-videos request", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			last = apperr.Wrap(apperr.KindNetworkError, "list videos request failed", err)
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			last = apperr.Wrap(apperr.KindNetworkError, "read list-videos response", readErr)
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var out listVideosResponse
			if err := json.Unmarshal(data, &out); err != nil {
				return nil, apperr.Wrap(apperr.KindInternalError, "parse list-videos response", err)
			}
			if out.Error != "" {
				return nil, apperr.New(apperr.KindInternalError, out.Error)
			}
			return out.Videos, nil
		case http.StatusNotFound:
			return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("creator %q not found", creator))
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, apperr.New(apperr.KindAuthRequired, "video platform requires authentication")
		case http.StatusTooManyRequests:
			last = apperr.New(apperr.KindRateLimited, "video platform rate limited the request")
			continue
		default:
			last = apperr.New(apperr.KindNetworkError, fmt.Sprintf("video platform returned %d", resp.StatusCode))
			continue
		}
	}
	return nil, last
}

// DownloadAudio downloads the audio track for a video URL, retrying
// transient failures with the same exponential backoff as list_videos.
// authCookies is an optional best-effort auth hook (empty = anonymous).
func (c *VideoPlatformClient) DownloadAudio(ctx context.Context, videoURL, destination, authCookies string) (string, error) {
	if destination == "" {
		destination = filepath.Join(c.tempDir, fmt.Sprintf("%d_audio", time.Now().UnixNano()))
	}

	var last error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(1<<uint(attempt-1))):
			}
		}

		endpoint := fmt.Sprintf("%s/v1/download-audio?url=%s", c.baseURL, videoURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", apperr.Wrap(apperr.KindInternalError, "build download request", err)
		}
		if authCookies != "" {
			req.Header.Set("Cookie", authCookies)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			last = apperr.Wrap(apperr.KindNetworkError, "download request failed", err)
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			path, writeErr := c.writeCapped(resp.Body, destination)
			resp.Body.Close()
			if writeErr != nil {
				last = apperr.Wrap(apperr.KindNetworkError, "write downloaded audio", writeErr)
				continue
			}
			return path, nil
		case http.StatusNotFound:
			resp.Body.Close()
			return "", apperr.New(apperr.KindNotFound, fmt.Sprintf("video %q not found", videoURL))
		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return "", apperr.New(apperr.KindAuthRequired, "video requires authenticated download")
		case http.StatusTooManyRequests:
			resp.Body.Close()
			last = apperr.New(apperr.KindRateLimited, "download rate limited")
			continue
		default:
			resp.Body.Close()
			last = apperr.New(apperr.KindNetworkError, fmt.Sprintf("download returned %d", resp.StatusCode))
			continue
		}
	}
	return "", last
}

func (c *VideoPlatformClient) writeCapped(body io.Reader, destination string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(destination)
	if err != nil {
		return "", err
	}
	defer f.Close()

	limited := io.LimitReader(body, c.maxFileSize+1)
	n, err := io.Copy(f, limited)
	if err != nil {
		return "", err
	}
	if n > c.maxFileSize {
		os.Remove(destination)
		return "", fmt.Errorf("audio exceeds max file size of %d bytes", c.maxFileSize)
	}
	return destination, nil
}

// Cleanup removes a downloaded audio file, best effort.
func (c *VideoPlatformClient) Cleanup(path string) {
	if path != "" {
		os.Remove(path)
	}
}
