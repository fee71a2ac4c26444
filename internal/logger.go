package internal

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"payone/services"
)

// Logger implements services.LogHandler with a console logger per module and
// an optional database sink for audit records. Database write failures never
// disturb the caller.
type Logger struct {
	module   string
	log      zerolog.Logger
	database services.Database
}

// logRecord is the shape of an audit record in the payment log collection.
type logRecord struct {
	Time    time.Time `bson:"time"`
	Module  string    `bson:"module"`
	Level   string    `bson:"level"`
	Message string    `bson:"message"`
	Error   string    `bson:"error,omitempty"`
}

func (r *logRecord) DataType() string {
	return "log"
}

func NewLogger(module string, isDebug bool, database services.Database) *Logger {
	level := zerolog.InfoLevel
	if isDebug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log := zerolog.New(out).Level(level).With().Timestamp().Str("module", module).Logger()
	return &Logger{
		module:   module,
		log:      log,
		database: database,
	}
}

func (l *Logger) Debug(message string) {
	l.log.Debug().Msg(message)
}

func (l *Logger) Info(message string) {
	l.log.Info().Msg(message)
	l.write("info", message, "")
}

func (l *Logger) Warn(message string) {
	l.log.Warn().Msg(message)
	l.write("warn", message, "")
}

func (l *Logger) Error(message string, err error) {
	l.log.Error().Err(err).Msg(message)
	text := ""
	if err != nil {
		text = err.Error()
	}
	l.write("error", message, text)
}

func (l *Logger) write(level, message, errText string) {
	if l.database == nil {
		return
	}
	record := &logRecord{
		Time:    time.Now(),
		Module:  l.module,
		Level:   level,
		Message: message,
		Error:   errText,
	}
	_ = l.database.WriteLogMessage(record)
}
