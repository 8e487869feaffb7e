package logger

import (
	"go.uber.org/zap/zapcore"
)

// DBCore tees every entry at or above minLevel into the DB writer.
type DBCore struct {
	zapcore.Core
	writer   *DBLogWriter
	minLevel zapcore.Level
	fields   []zapcore.Field
}

// NewDBCore wraps an existing core (like console logger) and adds DB logging
func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter, minLevel zapcore.Level) zapcore.Core {
	return &DBCore{
		Core:     baseCore,
		writer:   writer,
		minLevel: minLevel,
	}
}

// With keeps the DB tee on child loggers and remembers their fields.
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &DBCore{
		Core:     c.Core.With(fields),
		writer:   c.writer,
		minLevel: c.minLevel,
		fields:   merged,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= c.minLevel {
		var tenantID, caseID string
		for _, group := range [][]zapcore.Field{c.fields, fields} {
			for _, f := range group {
				switch f.Key {
				case "tenant_id":
					tenantID = f.String
				case "case_id":
					caseID = f.String
				}
			}
		}

		c.writer.AddLog(LogEntry{
			Level:    entry.Level,
			Message:  entry.Message,
			TenantID: tenantID,
			CaseID:   caseID,
			Caller:   entry.Caller.Function,
		})
	}

	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
