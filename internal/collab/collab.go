// Package collab declares the collaborator interfaces stage code depends on.
// Stages never import concrete model or tool bindings; production wiring
// injects implementations and tests inject the stub package.
package collab

import "context"

// Word is a word-level alignment within a segment.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
	Score float64 `json:"score,omitempty"`
}

// Segment is one transcribed span.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

// Transcript is the result of a transcription call.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// TranscribeOptions tunes a transcription call.
type TranscribeOptions struct {
	Model     string
	BatchSize int
	BiasTerms []string
}

// Transcriber produces a transcript from an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string, opts TranscribeOptions) (*Transcript, error)
}

// SpeakerTurn is one diarized span.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarizer attributes speech spans to speakers. Zero min/max means
// auto-detect.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, minSpeakers, maxSpeakers int) ([]SpeakerTurn, error)
}

// SpeechSpan is one voice-activity interval.
type SpeechSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// VadDetector finds speech intervals. A zero threshold means the detector's
// default.
type VadDetector interface {
	Detect(ctx context.Context, audioPath string, threshold float64) ([]SpeechSpan, error)
}

// Translator translates batches of strings between languages.
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, srcLang, tgtLang string) ([]string, error)
}

// DownloadResult is the outcome of a media fetch.
type DownloadResult struct {
	LocalPath string
	Metadata  map[string]any
}

// ProgressFunc reports fetch progress in [0, 1].
type ProgressFunc func(fraction float64)

// Downloader fetches online media. formatSelector is a backend-specific
// quality expression; outputTemplate names the destination.
type Downloader interface {
	Download(ctx context.Context, url, formatSelector, outputTemplate string, progress ProgressFunc) (*DownloadResult, error)
}

// SeparatedAudio holds the paths produced by source separation.
type SeparatedAudio struct {
	VocalsPath        string
	AccompanimentPath string
}

// SourceSeparator splits audio into vocals and accompaniment.
// Quality is one of fast, balanced, quality.
type SourceSeparator interface {
	Separate(ctx context.Context, audioPath, quality string) (*SeparatedAudio, error)
}

// AudioDemuxer extracts a mono WAV track from a video container.
// startTime/endTime are HH:MM:SS timecodes; empty means full length.
type AudioDemuxer interface {
	Demux(ctx context.Context, videoPath string, sampleRate, channels int, startTime, endTime string) (string, error)
}

// SubtitleMuxer burns or embeds subtitle tracks into a video container.
type SubtitleMuxer interface {
	Mux(ctx context.Context, videoPath string, subtitlePaths []string, outputPath string) error
}
