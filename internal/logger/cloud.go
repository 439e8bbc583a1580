package logger

import (
	"cloud.google.com/go/logging"
	"go.uber.org/zap/zapcore"
)

// LogID is the Cloud Logging log name entries are written under.
const LogID = "sheet-ingestion"

// EntryLogger is the part of *logging.Logger the cloud core needs.
type EntryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// cloudCore forwards zap entries to Cloud Logging as structured payloads.
type cloudCore struct {
	zapcore.LevelEnabler
	logger EntryLogger
	fields []zapcore.Field
}

// NewCloudCore returns a zapcore.Core that writes to logger. Pass
// client.Logger(LogID) for a real sink.
func NewCloudCore(logger EntryLogger, enabler zapcore.LevelEnabler) zapcore.Core {
	return &cloudCore{LevelEnabler: enabler, logger: logger}
}

func (c *cloudCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

func (c *cloudCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *cloudCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	payload := enc.Fields
	payload["message"] = entry.Message
	if entry.LoggerName != "" {
		payload["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		payload["caller"] = entry.Caller.TrimmedPath()
	}

	c.logger.Log(logging.Entry{
		Timestamp: entry.Time,
		Severity:  severity(entry.Level),
		Payload:   payload,
	})
	return nil
}

func (c *cloudCore) Sync() error {
	return c.logger.Flush()
}

func severity(level zapcore.Level) logging.Severity {
	switch level {
	case zapcore.DebugLevel:
		return logging.Debug
	case zapcore.InfoLevel:
		return logging.Info
	case zapcore.WarnLevel:
		return logging.Warning
	case zapcore.ErrorLevel:
		return logging.Error
	case zapcore.DPanicLevel:
		return logging.Critical
	case zapcore.PanicLevel:
		return logging.Alert
	case zapcore.FatalLevel:
		return logging.Emergency
	default:
		return logging.Default
	}
}
