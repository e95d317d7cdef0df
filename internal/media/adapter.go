// Package media resolves online media references: YouTube URL recognition,
// a local download cache, and delegation of the actual fetch to an injected
// Downloader collaborator.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
)

// DefaultMaxFilenameLen bounds sanitized filenames.
const DefaultMaxFilenameLen = 35

// Format qualities accepted by Download.
const (
	QualityBest  = "best"
	Quality1080p = "1080p"
	Quality720p  = "720p"
	Quality480p  = "480p"
	QualityAudio = "audio"
)

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:www\.)?youtube\.com/watch\?(?:[^&\s]*&)*v=([\w-]{11})`),
	regexp.MustCompile(`youtu\.be/([\w-]{11})`),
	regexp.MustCompile(`(?:www\.)?youtube\.com/embed/([\w-]{11})`),
	regexp.MustCompile(`(?:www\.)?youtube\.com/v/([\w-]{11})`),
}

var cachedExtensions = []string{".mp4", ".mkv", ".webm", ".wav", ".m4a"}

var (
	keepAlnumSpaceRe = regexp.MustCompile(`[^A-Za-z0-9_ ]+`)
	underscoreRunRe  = regexp.MustCompile(`_+`)
)

// IsURL reports whether s parses as a URL with both scheme and host.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// IsYouTubeURL reports whether s matches one of the recognized YouTube forms.
func IsYouTubeURL(s string) bool {
	_, ok := ExtractVideoID(s)
	return ok
}

// ExtractVideoID returns the 11-character video id from a YouTube URL.
func ExtractVideoID(s string) (string, bool) {
	for _, pattern := range youtubePatterns {
		if m := pattern.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// SanitizeFilename reduces s to [A-Za-z0-9_]: specials drop, spaces become
// single underscores, and the result is trimmed and truncated to maxLen
// (DefaultMaxFilenameLen when maxLen <= 0). The function is idempotent; an
// empty result becomes "video".
func SanitizeFilename(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLen
	}
	cleaned := keepAlnumSpaceRe.ReplaceAllString(s, "")
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	cleaned = underscoreRunRe.ReplaceAllString(cleaned, "_")
	cleaned = strings.Trim(cleaned, "_")
	if len(cleaned) > maxLen {
		cleaned = strings.Trim(cleaned[:maxLen], "_")
	}
	if cleaned == "" {
		return "video"
	}
	return cleaned
}

// DownloadOptions tunes a Download call.
type DownloadOptions struct {
	// OutputFilename forces the final base name (without extension).
	OutputFilename string
	// UseTitleAsFilename derives the name from the fetched title when no
	// OutputFilename is given.
	UseTitleAsFilename bool
	// FormatQuality is one of best, 1080p, 720p, 480p, audio.
	FormatQuality string
	// AudioOnly requests an audio-only fetch (.wav output).
	AudioOnly bool
}

// DefaultDownloadOptions matches the documented defaults.
func DefaultDownloadOptions() DownloadOptions {
	return DownloadOptions{UseTitleAsFilename: true, FormatQuality: QualityBest}
}

// Adapter caches and fetches online media into cacheDir.
type Adapter struct {
	cacheDir   string
	downloader collab.Downloader
	logger     *slog.Logger
}

// NewAdapter creates an Adapter. downloader may be nil when only cache
// lookups are needed.
func NewAdapter(cacheDir string, downloader collab.Downloader, logger *slog.Logger) (*Adapter, error) {
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating media cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cacheDir: cacheDir, downloader: downloader, logger: logger}, nil
}

// GetCachedVideo looks for a previously fetched file for videoID, trying
// exact, suffixed and substring name forms over the known extensions.
func (a *Adapter) GetCachedVideo(videoID string) (string, bool) {
	for _, ext := range cachedExtensions {
		exact := filepath.Join(a.cacheDir, videoID+ext)
		if _, err := os.Stat(exact); err == nil {
			return exact, true
		}
	}

	entries, err := os.ReadDir(a.cacheDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !isCachedExtension(ext) {
			continue
		}
		base := strings.TrimSuffix(name, ext)
		if strings.HasSuffix(base, "_"+videoID) || strings.Contains(base, videoID) {
			return filepath.Join(a.cacheDir, name), true
		}
	}
	return "", false
}

// Download resolves a media URL to a local file. Cache hits return
// immediately; misses are fetched through the Downloader and renamed to
// {title}_{videoId} or {videoId} with the extension implied by AudioOnly.
func (a *Adapter) Download(ctx context.Context, mediaURL string, opts DownloadOptions) (string, map[string]any, error) {
	if !IsURL(mediaURL) {
		return "", nil, &InvalidMediaReferenceError{Reference: mediaURL}
	}
	videoID, ok := ExtractVideoID(mediaURL)
	if !ok {
		return "", nil, &UnsupportedPlatformError{URL: mediaURL}
	}

	if cached, ok := a.GetCachedVideo(videoID); ok {
		a.logger.Info("media cache hit",
			slog.String("video_id", videoID),
			slog.String("path", cached),
		)
		return cached, map[string]any{"videoId": videoID, "cached": true}, nil
	}

	if a.downloader == nil {
		return "", nil, &DownloadFailedError{URL: mediaURL, Cause: fmt.Errorf("no downloader configured")}
	}

	ext := ".mp4"
	if opts.AudioOnly || opts.FormatQuality == QualityAudio {
		ext = ".wav"
	}
	template := filepath.Join(a.cacheDir, videoID+".download"+ext)

	result, err := a.downloader.Download(ctx, mediaURL, formatSelector(opts.FormatQuality, opts.AudioOnly), template, nil)
	if err != nil {
		return "", nil, &DownloadFailedError{URL: mediaURL, Cause: err}
	}

	finalName := videoID + ext
	switch {
	case opts.OutputFilename != "":
		finalName = SanitizeFilename(opts.OutputFilename, 0) + "_" + videoID + ext
	case opts.UseTitleAsFilename:
		if title, ok := result.Metadata["title"].(string); ok && title != "" {
			finalName = SanitizeFilename(title, 0) + "_" + videoID + ext
		}
	}

	finalPath := filepath.Join(a.cacheDir, finalName)
	if err := os.Rename(result.LocalPath, finalPath); err != nil {
		return "", nil, &DownloadFailedError{URL: mediaURL, Cause: err}
	}

	a.logger.Info("media downloaded",
		slog.String("video_id", videoID),
		slog.String("path", finalPath),
	)
	return finalPath, result.Metadata, nil
}

// formatSelector derives the backend quality expression.
func formatSelector(quality string, audioOnly bool) string {
	if audioOnly || quality == QualityAudio {
		return "bestaudio/best"
	}
	switch quality {
	case Quality1080p:
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	case Quality720p:
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	case Quality480p:
		return "bestvideo[height<=480]+bestaudio/best[height<=480]"
	default:
		return "bestvideo+bestaudio/best"
	}
}

func isCachedExtension(ext string) bool {
	for _, known := range cachedExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
