// internal/workers/communication/send-alert-confirmation/models.go
package sendalertconfirmation

import "comm-dispatch/internal/common/validation"

type Input struct {
	AlertID int64                  `json:"alertId"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	DispatchID  string `json:"dispatchId"`
	AlertID     int64  `json:"alertId"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
	ProcessedAt string `json:"processedAt"`
}

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

// Skip reasons
const (
	ReasonRegisteredUser   = "registered_user"
	ReasonAlreadyConfirmed = "not_unconfirmed"
	ReasonNoEmail          = "no_email"
	ReasonNoContent        = "no_content"
)

var InputSchema = validation.MustCompile(TaskType, `{
  "type": "object",
  "required": ["alertId"],
  "properties": {
    "alertId": {"type": "integer", "minimum": 1},
    "context": {"type": "object"}
  }
}`)
