// internal/workers/communication/send-direct-email/models.go
package senddirectemail

import "comm-dispatch/internal/common/validation"

// Input either names an event type whose templates are rendered with Context,
// or carries a ready subject and body.
type Input struct {
	Recipient string                 `json:"recipient"`
	EventCode string                 `json:"eventCode,omitempty"`
	Subject   string                 `json:"subject,omitempty"`
	Body      string                 `json:"body,omitempty"`
	HTML      string                 `json:"html,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	DispatchID  string `json:"dispatchId"`
	Recipient   string `json:"recipient"`
	EventCode   string `json:"eventCode,omitempty"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
	ProcessedAt string `json:"processedAt"`
}

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"

	ReasonNoContent = "no_content"
)

var InputSchema = validation.MustCompile(TaskType, `{
  "type": "object",
  "required": ["recipient"],
  "properties": {
    "recipient": {"type": "string", "format": "email"},
    "eventCode": {"type": "string", "pattern": "^[A-Za-z_]+$"},
    "subject": {"type": "string"},
    "body": {"type": "string"},
    "html": {"type": "string"},
    "context": {"type": "object"}
  },
  "anyOf": [
    {"required": ["eventCode"]},
    {"required": ["subject"]}
  ]
}`)
