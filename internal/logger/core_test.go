package logger

import (
	"context"
	"sync"
	"testing"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu      sync.Mutex
	records []common_models.Log
}

func (s *recordingSink) InsertLog(_ context.Context, record common_models.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func TestDBCoreTeesWarningsWithContextFields(t *testing.T) {
	base, observed := observer.New(zapcore.DebugLevel)
	sink := &recordingSink{}
	writer := NewDBLogWriter(sink, "test-app", 10)

	log := zap.New(NewDBCore(base, writer, zapcore.WarnLevel)).With(zap.String("tenant_id", "t1"))
	log.Info("transition executed")
	log.Warn("automation failure", zap.String("case_id", "c1"))

	writer.Close()

	assert.Equal(t, 2, observed.Len(), "console core still receives every entry")
	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "automation failure", rec.Message)
	assert.Equal(t, "t1", rec.TenantID)
	assert.Equal(t, "c1", rec.CaseID)
	assert.Equal(t, "test-app", rec.AppID)
	assert.Equal(t, 30, rec.LogLevelId)
}

func TestDBLogWriterDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	writer := NewDBLogWriter(sink, "test-app", 1)

	for i := 0; i < 10; i++ {
		writer.AddLog(LogEntry{Level: zapcore.ErrorLevel, Message: "boom"})
	}
	close(block)
	writer.Close()

	assert.LessOrEqual(t, sink.count(), 2)
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (s *blockingSink) InsertLog(_ context.Context, _ common_models.Log) error {
	<-s.release
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestDBLogWriterIgnoresEntriesAfterClose(t *testing.T) {
	sink := &recordingSink{}
	writer := NewDBLogWriter(sink, "test-app", 4)
	writer.Close()

	assert.NotPanics(t, func() {
		writer.AddLog(LogEntry{Level: zapcore.ErrorLevel, Message: "late shutdown failure"})
	})
	writer.Close()
	assert.Empty(t, sink.records)

	base, observed := observer.New(zapcore.DebugLevel)
	log := zap.New(NewDBCore(base, writer, zapcore.WarnLevel))
	assert.NotPanics(t, func() { log.Error("hook failed after stop") })
	assert.Equal(t, 1, observed.Len(), "console output continues after the DB writer stops")
}
