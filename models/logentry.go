package models

import "time"

// LogType categorizes an audit log entry
type LogType string

// audit log categories
const (
	LogTypeAdd    LogType = "add"
	LogTypeDelete LogType = "delete"
	LogTypeUpdate LogType = "update"
	LogTypeAuth   LogType = "auth"
	LogTypeInfo   LogType = "info"
)

// LogEntry holds the structure for the logs collection in mongo. Entries are
// never updated once written.
type LogEntry struct {
	ID        string    `json:"_id" bson:"_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Message   string    `json:"message" bson:"message"`
	Type      LogType   `json:"type" bson:"type"`
	User      string    `json:"user" bson:"user"`
}
