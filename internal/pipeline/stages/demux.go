package stages

import (
	"context"
	"os"
	"path/filepath"

	"github.com/clearpath-media/cp-whisperx/internal/media"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/pipeline/core"
	"github.com/clearpath-media/cp-whisperx/internal/stageio"
)

// demuxStage resolves the input media (downloading online references) and
// extracts a 16 kHz mono audio track for the recognition stages.
type demuxStage struct{ base }

func (s demuxStage) Execute(ctx context.Context, st *core.State, h *stageio.Handle) (*core.StageResult, error) {
	logger := h.StageLogger()
	input := st.Descriptor.InputMedia

	localPath, err := s.resolveMedia(ctx, st, input)
	if err != nil {
		return nil, err
	}
	h.TrackInput(localPath, models.FileKindVideo, map[string]any{"source": input})

	mp := st.Descriptor.MediaProcessing
	h.SetConfig("mode", mp.Mode)
	if mp.Mode == models.MediaModeClip {
		h.SetConfig("startTime", mp.StartTime)
		h.SetConfig("endTime", mp.EndTime)
	}

	wavPath, err := st.Collab.Demuxer.Demux(ctx, localPath, 16000, 1, mp.StartTime, mp.EndTime)
	if err != nil {
		return nil, core.NewStageError(core.KindExternalService, s.id, "demuxing audio", err)
	}

	// The demuxer may write outside the stage directory; the canonical
	// artifact always lives at stageDir/audio.wav.
	audioPath := h.OutputPath(audioFilename)
	if wavPath != audioPath {
		if err := copyFile(wavPath, audioPath); err != nil {
			return nil, core.NewStageError(core.KindInternalConsistency, s.id, "collecting demuxed audio", err)
		}
		if filepath.Dir(wavPath) != h.StageDir() {
			if err := os.Remove(wavPath); err != nil {
				logger.Warn("removing demuxer scratch file", "path", wavPath, "error", err)
			}
		}
	}
	h.TrackOutput(audioPath, models.FileKindAudio, map[string]any{"sampleRate": 16000, "channels": 1})

	if _, err := writeOutput(h, mediaInfoFilename, mediaInfo{
		Source:    input,
		LocalPath: localPath,
		Mode:      mp.Mode,
		StartTime: mp.StartTime,
		EndTime:   mp.EndTime,
	}, models.FileKindMetadata); err != nil {
		return nil, err
	}

	logger.Info("audio extracted", "audio", audioPath)
	return core.Succeeded(), nil
}

// resolveMedia turns the descriptor's media reference into a local file,
// fetching online references through the media adapter.
func (s demuxStage) resolveMedia(ctx context.Context, st *core.State, input string) (string, error) {
	if media.IsURL(input) {
		opts := media.DefaultDownloadOptions()
		opts.FormatQuality = st.Config.GetString("download.quality", media.QualityBest)
		path, _, err := st.Media.Download(ctx, input, opts)
		if err != nil {
			return "", core.NewStageError(mediaErrorKind(err), s.id, "fetching online media", err)
		}
		return path, nil
	}

	path := input
	if !filepath.IsAbs(path) {
		path = filepath.Join(st.JobDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", core.NewStageError(core.KindMissingInput, s.id, "input media not found", err)
	}
	return path, nil
}

// mediaErrorKind maps adapter errors onto stage error kinds.
func mediaErrorKind(err error) core.ErrorKind {
	switch err.(type) {
	case *media.InvalidMediaReferenceError:
		return core.KindInvalidMediaReference
	case *media.UnsupportedPlatformError:
		return core.KindUnsupportedPlatform
	default:
		return core.KindDownloadFailed
	}
}
