package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/config"
)

func jsonCfg(level string) config.LoggingConfig {
	return config.LoggingConfig{Level: level, Format: "json"}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	logger.Info("hello", slog.String("key", "value"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("warn"), &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	logger.Info("credentials loaded",
		slog.String("api_key", "sk-verysecret"),
		slog.String("service", "tmdb"),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-verysecret")
	assert.Contains(t, out, "tmdb")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	WithError(logger, errors.New("boom")).Error("stage failed")
	assert.Contains(t, buf.String(), "boom")

	assert.Same(t, logger, WithError(logger, nil))
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	WithStage(WithJob(WithComponent(logger, "pipeline"), "job-1"), "asr").Info("m")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "pipeline", record["component"])
	assert.Equal(t, "job-1", record["job_id"])
	assert.Equal(t, "asr", record["stage"])
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(jsonCfg("info"), &buf)

	done := TimedOperation(context.Background(), logger, "load_glossary")
	done()

	out := buf.String()
	assert.Contains(t, out, "operation started")
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, "load_glossary")
	assert.Contains(t, out, "duration")
}

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	la := NewLoggerWithWriter(jsonCfg("info"), &a)
	lb := NewLoggerWithWriter(jsonCfg("info"), &b)

	Tee(la, lb).With(slog.String("job_id", "j1")).Info("both")

	assert.Contains(t, a.String(), "both")
	assert.Contains(t, b.String(), "both")
	assert.Contains(t, a.String(), "j1")
	assert.Contains(t, b.String(), "j1")
}
