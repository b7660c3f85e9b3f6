package block

// Log entry statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// LogEntry is one line of the run history returned with every invocation.
type LogEntry struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Details     any    `json:"details,omitempty"`
}

// LogDetails is the details payload of request/response log entries.
type LogDetails struct {
	StatusCode int `json:"statusCode,omitempty"`
	Request    any `json:"request,omitempty"`
	Response   any `json:"response,omitempty"`
}

// IsError reports whether the entry has error status.
func (l LogEntry) IsError() bool {
	return l.Status == StatusError
}

// SuccessLog builds a success entry.
func SuccessLog(description string, details any) LogEntry {
	return LogEntry{Status: StatusSuccess, Description: description, Details: details}
}

// ErrorLog builds an error entry.
func ErrorLog(description string, details any) LogEntry {
	return LogEntry{Status: StatusError, Description: description, Details: details}
}
