// Package stub provides deterministic in-process collaborator
// implementations. They stand in for model and tool bindings in tests and
// dry runs: outputs are derived only from the inputs, so repeated runs
// produce identical artifacts.
package stub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clearpath-media/cp-whisperx/internal/collab"
)

// Transcriber emits one segment per line of the audio file's sidecar script
// (audioPath + ".txt") or a single fixed segment when no sidecar exists.
type Transcriber struct{}

// Transcribe implements collab.Transcriber.
func (Transcriber) Transcribe(_ context.Context, audioPath, language string, _ collab.TranscribeOptions) (*collab.Transcript, error) {
	lines := []string{"placeholder transcript for " + filepath.Base(audioPath)}
	if data, err := os.ReadFile(audioPath + ".txt"); err == nil {
		lines = nonEmptyLines(string(data))
	}

	segments := make([]collab.Segment, len(lines))
	for i, line := range lines {
		start := float64(i) * 2
		segments[i] = collab.Segment{
			Start: start,
			End:   start + 2,
			Text:  line,
			Words: []collab.Word{{Start: start, End: start + 2, Word: line, Score: 1}},
		}
	}
	return &collab.Transcript{Segments: segments, Language: language}, nil
}

// Diarizer assigns alternating speakers in fixed five-second turns.
type Diarizer struct{}

// Diarize implements collab.Diarizer.
func (Diarizer) Diarize(_ context.Context, _ string, minSpeakers, _ int) ([]collab.SpeakerTurn, error) {
	speakers := minSpeakers
	if speakers < 2 {
		speakers = 2
	}
	turns := make([]collab.SpeakerTurn, speakers)
	for i := range turns {
		start := float64(i) * 5
		turns[i] = collab.SpeakerTurn{
			Start:   start,
			End:     start + 5,
			Speaker: fmt.Sprintf("SPEAKER_%02d", i%speakers),
		}
	}
	return turns, nil
}

// VadDetector reports one speech span covering the first ten seconds.
type VadDetector struct{}

// Detect implements collab.VadDetector.
func (VadDetector) Detect(_ context.Context, _ string, _ float64) ([]collab.SpeechSpan, error) {
	return []collab.SpeechSpan{{Start: 0, End: 10}}, nil
}

// Translator tags each input with the target language.
type Translator struct{}

// TranslateBatch implements collab.Translator.
func (Translator) TranslateBatch(_ context.Context, texts []string, _, tgtLang string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = "[" + tgtLang + "] " + text
	}
	return out, nil
}

// Downloader writes a small placeholder file at the output template.
type Downloader struct{}

// Download implements collab.Downloader.
func (Downloader) Download(_ context.Context, url, _, outputTemplate string, progress collab.ProgressFunc) (*collab.DownloadResult, error) {
	if err := os.MkdirAll(filepath.Dir(outputTemplate), 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputTemplate, []byte("stub download of "+url+"\n"), 0o644); err != nil {
		return nil, err
	}
	if progress != nil {
		progress(1)
	}
	return &collab.DownloadResult{
		LocalPath: outputTemplate,
		Metadata:  map[string]any{"url": url, "title": "Stub Video"},
	}, nil
}

// SourceSeparator copies the input to vocals and accompaniment siblings.
type SourceSeparator struct{}

// Separate implements collab.SourceSeparator.
func (SourceSeparator) Separate(_ context.Context, audioPath, _ string) (*collab.SeparatedAudio, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	sep := &collab.SeparatedAudio{
		VocalsPath:        base + "_vocals.wav",
		AccompanimentPath: base + "_accompaniment.wav",
	}
	if err := os.WriteFile(sep.VocalsPath, data, 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(sep.AccompanimentPath, data, 0o644); err != nil {
		return nil, err
	}
	return sep, nil
}

// AudioDemuxer writes a placeholder WAV next to the requested video.
type AudioDemuxer struct {
	// OutputDir overrides where the extracted track lands; empty means
	// alongside the source video.
	OutputDir string
}

// Demux implements collab.AudioDemuxer.
func (d AudioDemuxer) Demux(_ context.Context, videoPath string, sampleRate, channels int, startTime, endTime string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", err
	}
	dir := d.OutputDir
	if dir == "" {
		dir = filepath.Dir(videoPath)
	}
	name := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath)) + ".wav"
	outPath := filepath.Join(dir, name)
	content := fmt.Sprintf("stub wav sr=%d ch=%d clip=%s-%s\n", sampleRate, channels, startTime, endTime)
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}

// SubtitleMuxer concatenates the video bytes with subtitle names.
type SubtitleMuxer struct{}

// Mux implements collab.SubtitleMuxer.
func (SubtitleMuxer) Mux(_ context.Context, videoPath string, subtitlePaths []string, outputPath string) error {
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.Write(data)
	for _, sub := range subtitlePaths {
		fmt.Fprintf(&b, "track:%s\n", filepath.Base(sub))
	}
	return os.WriteFile(outputPath, []byte(b.String()), 0o644)
}

// Summarizer returns a fixed-shape summary derived from the request.
type Summarizer struct {
	ProviderName collab.Provider
}

// Validate implements collab.AiSummarizer.
func (Summarizer) Validate(context.Context) bool { return true }

// Summarize implements collab.AiSummarizer.
func (s Summarizer) Summarize(_ context.Context, req collab.SummaryRequest) (*collab.SummaryResponse, error) {
	provider := s.ProviderName
	if provider == "" {
		provider = collab.ProviderOpenAI
	}
	resp := &collab.SummaryResponse{
		Summary:    firstWords(req.TranscriptText, 12),
		KeyPoints:  []string{firstWords(req.TranscriptText, 5)},
		Provider:   provider,
		TokensUsed: len(strings.Fields(req.TranscriptText)),
	}
	if req.IncludeTimestamps {
		resp.Timestamps = []collab.TimestampedPoint{{Timestamp: "00:00:00", Description: "start"}}
	}
	if req.MediaURL != "" {
		resp.SourceAttribution = req.MediaURL
	}
	return resp, nil
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		lines = []string{"placeholder transcript"}
	}
	return lines
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	if len(words) == 0 {
		return "empty transcript"
	}
	return strings.Join(words, " ")
}
