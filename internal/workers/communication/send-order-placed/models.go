// internal/workers/communication/send-order-placed/models.go
package sendorderplaced

import "comm-dispatch/internal/common/validation"

type Input struct {
	OrderNumber  string                 `json:"orderNumber"`
	EmailAddress string                 `json:"emailAddress,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	DispatchID  string `json:"dispatchId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"` // "sent" or "skipped"
	EmailSent   bool   `json:"emailSent"`
	SMSSent     bool   `json:"smsSent"`
	MessageID   string `json:"messageId,omitempty"`
	ProcessedAt string `json:"processedAt"` // ISO 8601
}

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

// Other process variables are allowed through.
var InputSchema = validation.MustCompile(TaskType, `{
  "type": "object",
  "required": ["orderNumber"],
  "properties": {
    "orderNumber": {"type": "string", "minLength": 1, "maxLength": 128},
    "emailAddress": {"type": "string", "format": "email"},
    "context": {"type": "object"}
  }
}`)
