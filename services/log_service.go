package services

// LogHandler is the logging contract used across the service. Implementations
// may mirror records into the database for auditing.
type LogHandler interface {
	Debug(message string)
	Info(message string)
	Warn(message string)
	Error(message string, err error)
}
