package logger

import (
	"context"
	"fmt"
	"sync"
	"time"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level    zapcore.Level
	Message  string
	TenantID string
	CaseID   string
	Caller   string // Function name
}

// LogSink persists a single log record.
type LogSink interface {
	InsertLog(ctx context.Context, record common_models.Log) error
}

type mongoLogSink struct {
	collection *mongo.Collection
}

// NewMongoLogSink writes log records into the "logs" collection.
func NewMongoLogSink(mongodb *database.MongodbDB) LogSink {
	return &mongoLogSink{collection: mongodb.DB.Collection("logs")}
}

func (s *mongoLogSink) InsertLog(ctx context.Context, record common_models.Log) error {
	_, err := s.collection.InsertOne(ctx, record)
	return err
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	sink    LogSink
	logChan chan LogEntry
	appId   string

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDBLogWriter initializes the worker
func NewDBLogWriter(sink LogSink, appId string, buffer int) *DBLogWriter {
	if buffer <= 0 {
		buffer = 1000
	}
	writer := &DBLogWriter{
		sink:    sink,
		logChan: make(chan LogEntry, buffer),
		appId:   appId,
		done:    make(chan struct{}),
	}

	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook. Entries logged after Close are dropped.
func (w *DBLogWriter) AddLog(entry LogEntry) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.logChan <- entry:
	default:
		// Channel full: drop rather than block the request path
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

// Close stops accepting entries and waits for the worker to drain the buffer.
func (w *DBLogWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.logChan)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *DBLogWriter) processLogs() {
	defer close(w.done)
	for entry := range w.logChan {
		record := common_models.Log{
			Message:      entry.Message,
			Level:        entry.Level.String(),
			LogLevelId:   mapLevelToInt(entry.Level),
			TenantID:     entry.TenantID,
			CaseID:       entry.CaseID,
			Caller:       entry.Caller,
			AppID:        w.appId,
			CreatedOnUtc: time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Errors are ignored to keep the app running
		_ = w.sink.InsertLog(ctx, record)
		cancel()
	}
}

func mapLevelToInt(l zapcore.Level) int {
	switch l {
	case zapcore.DebugLevel:
		return 10
	case zapcore.InfoLevel:
		return 20
	case zapcore.WarnLevel:
		return 30
	case zapcore.ErrorLevel:
		return 40
	case zapcore.FatalLevel:
		return 50
	default:
		return 20
	}
}
