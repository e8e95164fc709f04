// internal/workers/communication/send-user-event/models.go
package senduserevent

import "comm-dispatch/internal/common/validation"

type Input struct {
	UserID    int64                  `json:"userId"`
	EventCode string                 `json:"eventCode"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	DispatchID  string `json:"dispatchId"`
	UserID      int64  `json:"userId"`
	EventCode   string `json:"eventCode"`
	Status      string `json:"status"`
	EmailSent   bool   `json:"emailSent"`
	SMSSent     bool   `json:"smsSent"`
	MessageID   string `json:"messageId,omitempty"`
	ProcessedAt string `json:"processedAt"`
}

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

// eventCode is checked against the user event codes in Execute so an unknown
// code maps to UNKNOWN_EVENT_CODE rather than a schema failure.
var InputSchema = validation.MustCompile(TaskType, `{
  "type": "object",
  "required": ["userId", "eventCode"],
  "properties": {
    "userId": {"type": "integer", "minimum": 1},
    "eventCode": {"type": "string", "minLength": 1},
    "context": {"type": "object"}
  }
}`)
