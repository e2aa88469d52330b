package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryOutput captures entries for assertions.
type memoryOutput struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (m *memoryOutput) Write(e LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryOutput) Sync() error  { return nil }
func (m *memoryOutput) Close() error { return nil }

func (m *memoryOutput) captured() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func TestLoggerSeverityFiltering(t *testing.T) {
	out := &memoryOutput{}
	logger := NewLogger(Config{Severity: WARN, Outputs: []Output{out}})

	ctx := context.Background()
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	entries := out.captured()
	require.Len(t, entries, 2)
	assert.Equal(t, WARN, entries[0].Severity)
	assert.Equal(t, ERROR, entries[1].Severity)
}

func TestLoggerContextEnrichment(t *testing.T) {
	out := &memoryOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{out}})

	ctx := WithModelID(context.Background(), "model-x")
	ctx = WithTokenInfo(ctx, &TokenInfo{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	ctx = WithRunID(ctx, "run-42")

	logger.Info(ctx, "expanded node %d", 3)

	entries := out.captured()
	require.Len(t, entries, 1)
	assert.Equal(t, "expanded node 3", entries[0].Message)
	assert.Equal(t, "model-x", entries[0].ModelID)
	require.NotNil(t, entries[0].TokenInfo)
	assert.Equal(t, 15, entries[0].TokenInfo.TotalTokens)
	assert.Equal(t, "run-42", entries[0].Fields["run_id"])
}

func TestLoggerDefaultFields(t *testing.T) {
	out := &memoryOutput{}
	logger := NewLogger(Config{
		Severity:      INFO,
		Outputs:       []Output{out},
		DefaultFields: map[string]interface{}{"component": "search"},
	})

	logger.Info(context.Background(), "iteration done")

	entries := out.captured()
	require.Len(t, entries, 1)
	assert.Equal(t, "search", entries[0].Fields["component"])
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"DEBUG", DEBUG},
		{"INFO", INFO},
		{"WARN", WARN},
		{"ERROR", ERROR},
		{"FATAL", FATAL},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSeverity(tt.in))
		})
	}
}

func TestGetLoggerReturnsSingleton(t *testing.T) {
	first := GetLogger()
	second := GetLogger()
	assert.Same(t, first, second)
}

func TestSetLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	custom := NewLogger(Config{Severity: ERROR})
	SetLogger(custom)
	assert.Same(t, custom, GetLogger())
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	out, err := NewFileOutput(path)
	require.NoError(t, err)

	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{out}})
	logger.Info(context.Background(), "hello %s", "world")
	require.NoError(t, out.Sync())
	require.NoError(t, out.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "hello world", entry["message"])
	assert.Equal(t, "INFO", entry["severity"])
}

func TestConsoleOutputWrite(t *testing.T) {
	var buf strings.Builder
	out := &ConsoleOutput{writer: writerAdapter{&buf}, color: false}

	err := out.Write(LogEntry{
		Severity: INFO,
		Message:  "selected node",
		File:     "engine.go",
		Line:     42,
		ModelID:  "model-x",
		Fields:   map[string]interface{}{"priority": 0.7},
	})
	require.NoError(t, err)

	line := buf.String()
	assert.Contains(t, line, "selected node")
	assert.Contains(t, line, "engine.go:42")
	assert.Contains(t, line, "model=model-x")
	assert.Contains(t, line, "priority=0.7")
}

// writerAdapter lets a strings.Builder satisfy io.Writer for ConsoleOutput.
type writerAdapter struct{ b *strings.Builder }

func (w writerAdapter) Write(p []byte) (int, error) { return w.b.Write(p) }
