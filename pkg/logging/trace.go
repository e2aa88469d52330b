package logging

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type TraceEventType string

const (
	TraceEventSession    TraceEventType = "session"
	TraceEventSelection  TraceEventType = "selection"
	TraceEventExpansion  TraceEventType = "expansion"
	TraceEventGeneration TraceEventType = "generation"
	TraceEventFact       TraceEventType = "fact"
	TraceEventConflict   TraceEventType = "conflict"
	TraceEventPrune      TraceEventType = "prune"
	TraceEventError      TraceEventType = "error"
)

type TraceEvent struct {
	Type      TraceEventType         `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	TraceID   string                 `json:"trace_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// TraceOutput appends trace events to a JSONL file with optional rotation.
type TraceOutput struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	rotateSize int64
	curSize    int64
	maxFiles   int
}

type TraceOutputOption func(*TraceOutput)

func WithTraceRotation(maxSize int64, maxFiles int) TraceOutputOption {
	return func(t *TraceOutput) {
		t.rotateSize = maxSize
		t.maxFiles = maxFiles
	}
}

func NewTraceOutput(path string, opts ...TraceOutputOption) (*TraceOutput, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	info, err := file.Stat()
	var curSize int64 = 0
	if err == nil {
		curSize = info.Size()
	}

	output := &TraceOutput{
		file:    file,
		path:    path,
		curSize: curSize,
	}

	for _, opt := range opts {
		opt(output)
	}

	return output, nil
}

func (t *TraceOutput) Write(event TraceEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trace event: %w", err)
	}
	data = append(data, '\n')

	entrySize := int64(len(data))
	if t.rotateSize > 0 && (t.curSize+entrySize) >= t.rotateSize {
		if err := t.rotate(); err != nil {
			return fmt.Errorf("failed to rotate trace file: %w", err)
		}
		t.curSize = 0
	}

	n, err := t.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write trace event: %w", err)
	}

	t.curSize += int64(n)
	return nil
}

func (t *TraceOutput) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Sync()
}

func (t *TraceOutput) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

func (t *TraceOutput) rotate() error {
	if err := t.file.Close(); err != nil {
		return err
	}

	backupPath := fmt.Sprintf("%s.%s", t.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(t.path, backupPath); err != nil {
		return err
	}

	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	t.file = file
	t.curSize = 0

	if t.maxFiles > 0 {
		if err := t.cleanOldTraceFiles(); err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning old trace files: %v\n", err)
		}
	}

	return nil
}

func (t *TraceOutput) cleanOldTraceFiles() error {
	dir := filepath.Dir(t.path)
	base := filepath.Base(t.path)

	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var traceFiles []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		name := file.Name()
		if filepath.Base(t.path) != name && len(name) > len(base) && name[:len(base)] == base {
			traceFiles = append(traceFiles, filepath.Join(dir, name))
		}
	}

	if len(traceFiles) > t.maxFiles {
		for i := 0; i < len(traceFiles)-t.maxFiles; i++ {
			if err := os.Remove(traceFiles[i]); err != nil {
				return err
			}
		}
	}

	return nil
}

// TraceSession records one deliberation run's events to a TraceOutput.
type TraceSession struct {
	output    *TraceOutput
	traceID   string
	startTime time.Time
	mu        sync.Mutex
}

func NewTraceSession(path string, opts ...TraceOutputOption) (*TraceSession, error) {
	output, err := NewTraceOutput(path, opts...)
	if err != nil {
		return nil, err
	}

	session := &TraceSession{
		output:    output,
		traceID:   generateTraceID(),
		startTime: time.Now(),
	}

	if err := session.emit(TraceEventSession, map[string]interface{}{
		"start_time": session.startTime,
	}); err != nil {
		output.Close()
		return nil, err
	}

	return session, nil
}

func (s *TraceSession) TraceID() string {
	return s.traceID
}

func (s *TraceSession) emit(typ TraceEventType, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.output.Write(TraceEvent{
		Type:      typ,
		Timestamp: time.Now(),
		TraceID:   s.traceID,
		Data:      data,
	})
}

// EmitSelection records which node was chosen for expansion and its priority.
func (s *TraceSession) EmitSelection(nodeID int, priority float64) error {
	return s.emit(TraceEventSelection, map[string]interface{}{
		"node_id":  nodeID,
		"priority": priority,
	})
}

// EmitExpansion records the outcome of expanding a node.
func (s *TraceSession) EmitExpansion(nodeID int, variants int, chosenScore float64, durationMs int64) error {
	return s.emit(TraceEventExpansion, map[string]interface{}{
		"node_id":      nodeID,
		"variants":     variants,
		"chosen_score": chosenScore,
		"duration_ms":  durationMs,
	})
}

// EmitGeneration records a generation-service call.
func (s *TraceSession) EmitGeneration(capability, quality, model string, usage *TokenInfo, latencyMs int64) error {
	data := map[string]interface{}{
		"capability": capability,
		"quality":    quality,
		"model":      model,
		"latency_ms": latencyMs,
	}
	if usage != nil {
		data["usage"] = map[string]interface{}{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		}
	}
	return s.emit(TraceEventGeneration, data)
}

// EmitFact records a fact insertion or tier promotion.
func (s *TraceSession) EmitFact(factID, subject, tier string) error {
	return s.emit(TraceEventFact, map[string]interface{}{
		"fact_id": factID,
		"subject": subject,
		"tier":    tier,
	})
}

// EmitConflict records a detected or resolved conflict.
func (s *TraceSession) EmitConflict(conflictID, kind, outcome string) error {
	return s.emit(TraceEventConflict, map[string]interface{}{
		"conflict_id": conflictID,
		"kind":        kind,
		"outcome":     outcome,
	})
}

// EmitPrune records a node prune and its reason.
func (s *TraceSession) EmitPrune(nodeID int, reason string) error {
	return s.emit(TraceEventPrune, map[string]interface{}{
		"node_id": nodeID,
		"reason":  reason,
	})
}

// EmitError records a recoverable failure absorbed by a component.
func (s *TraceSession) EmitError(component, message string, recoverable bool) error {
	return s.emit(TraceEventError, map[string]interface{}{
		"component":   component,
		"message":     message,
		"recoverable": recoverable,
	})
}

func (s *TraceSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.output.Flush(); err != nil {
		return err
	}
	return s.output.Close()
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
