package media

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/collab/stub"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.True(t, IsURL("http://example.com/video.mp4"))
	assert.False(t, IsURL("input.mp4"))
	assert.False(t, IsURL("/absolute/path.mp4"))
	assert.False(t, IsURL("https://"))
}

func TestExtractVideoID(t *testing.T) {
	urls := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?list=PL123&v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
	}
	for _, u := range urls {
		id, ok := ExtractVideoID(u)
		require.True(t, ok, u)
		assert.Equal(t, "dQw4w9WgXcQ", id, u)
		assert.True(t, IsYouTubeURL(u))
	}

	_, ok := ExtractVideoID("https://vimeo.com/123456")
	assert.False(t, ok)
	assert.False(t, IsYouTubeURL("https://vimeo.com/123456"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Video_Title_2024", SanitizeFilename("Video: Title! (2024)", 35))
	assert.Equal(t, "video", SanitizeFilename("???!!!", 35))
	assert.Equal(t, "abc", SanitizeFilename("  abc  ", 35))

	long := SanitizeFilename("This Is A Very Long Video Title That Keeps Going", 35)
	assert.LessOrEqual(t, len(long), 35)

	// Underscores introduced by the space mapping survive re-application.
	assert.Equal(t, "Video_Title_2024", SanitizeFilename("Video_Title_2024", 35))

	// Idempotence over the sanitized alphabet.
	wordRe := regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	for _, input := range []string{"Video: Title! (2024)", "a  b   c", "___x___", "Señorita 2023"} {
		once := SanitizeFilename(input, 35)
		assert.True(t, wordRe.MatchString(once), once)
		assert.Equal(t, once, SanitizeFilename(once, 35))
	}
}

func TestGetCachedVideo(t *testing.T) {
	dir := t.TempDir()
	adapter, err := NewAdapter(dir, nil, nil)
	require.NoError(t, err)

	_, ok := adapter.GetCachedVideo("dQw4w9WgXcQ")
	assert.False(t, ok)

	// Exact id name.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dQw4w9WgXcQ.mp4"), []byte("x"), 0o644))
	path, ok := adapter.GetCachedVideo("dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "dQw4w9WgXcQ.mp4"), path)

	// Title-prefixed name.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Some_Title_abcdefghijk.webm"), []byte("x"), 0o644))
	path, ok = adapter.GetCachedVideo("abcdefghijk")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "Some_Title_abcdefghijk.webm"), path)

	// Unknown extensions are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zzzzzzzzzzz.txt"), []byte("x"), 0o644))
	_, ok = adapter.GetCachedVideo("zzzzzzzzzzz")
	assert.False(t, ok)
}

func TestDownload(t *testing.T) {
	adapter, err := NewAdapter(t.TempDir(), stub.Downloader{}, nil)
	require.NoError(t, err)

	path, metadata, err := adapter.Download(context.Background(),
		"https://youtu.be/dQw4w9WgXcQ", DefaultDownloadOptions())
	require.NoError(t, err)
	assert.Equal(t, "Stub_Video_dQw4w9WgXcQ.mp4", filepath.Base(path))
	assert.FileExists(t, path)
	assert.Equal(t, "Stub Video", metadata["title"])

	// Second call is served from cache.
	cachedPath, metadata, err := adapter.Download(context.Background(),
		"https://youtu.be/dQw4w9WgXcQ", DefaultDownloadOptions())
	require.NoError(t, err)
	assert.Equal(t, path, cachedPath)
	assert.Equal(t, true, metadata["cached"])
}

func TestDownload_AudioOnly(t *testing.T) {
	adapter, err := NewAdapter(t.TempDir(), stub.Downloader{}, nil)
	require.NoError(t, err)

	opts := DefaultDownloadOptions()
	opts.AudioOnly = true
	path, _, err := adapter.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ", opts)
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(path))
}

func TestDownload_ExplicitOutputFilename(t *testing.T) {
	adapter, err := NewAdapter(t.TempDir(), stub.Downloader{}, nil)
	require.NoError(t, err)

	opts := DefaultDownloadOptions()
	opts.OutputFilename = "My Movie: Part 2"
	path, _, err := adapter.Download(context.Background(), "https://youtu.be/dQw4w9WgXcQ", opts)
	require.NoError(t, err)
	assert.Equal(t, "My_Movie_Part_2_dQw4w9WgXcQ.mp4", filepath.Base(path))
}

func TestDownload_Errors(t *testing.T) {
	adapter, err := NewAdapter(t.TempDir(), stub.Downloader{}, nil)
	require.NoError(t, err)

	_, _, err = adapter.Download(context.Background(), "not-a-url", DefaultDownloadOptions())
	var invalidErr *InvalidMediaReferenceError
	assert.ErrorAs(t, err, &invalidErr)

	_, _, err = adapter.Download(context.Background(), "https://vimeo.com/123456", DefaultDownloadOptions())
	var platformErr *UnsupportedPlatformError
	assert.ErrorAs(t, err, &platformErr)
}

func TestFormatSelector(t *testing.T) {
	assert.Equal(t, "bestvideo+bestaudio/best", formatSelector(QualityBest, false))
	assert.Contains(t, formatSelector(Quality720p, false), "height<=720")
	assert.Equal(t, "bestaudio/best", formatSelector(QualityBest, true))
	assert.Equal(t, "bestaudio/best", formatSelector(QualityAudio, false))
}
