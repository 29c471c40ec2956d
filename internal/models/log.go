package models

import "encoding/json"

// LogLevel is the severity of a persisted log record.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Log is a diagnostic record persisted alongside agents and actions, used
// for example to record LLM call outcomes during a run.
type Log struct {
	Level   LogLevel        `json:"level"`
	Name    string          `json:"name"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
