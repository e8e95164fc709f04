// internal/workers/communication/send-product-alerts/models.go
package sendproductalerts

import (
	"comm-dispatch/internal/common/validation"
	"comm-dispatch/internal/communication"
)

type Input struct {
	ProductID int64 `json:"productId"`
}

// Output flattens the alert run counters into the job variables.
type Output struct {
	RunID     string `json:"runId"`
	ProductID int64  `json:"productId"`
	communication.AlertRunResult
	ProcessedAt string `json:"processedAt"`
}

var InputSchema = validation.MustCompile(TaskType, `{
  "type": "object",
  "required": ["productId"],
  "properties": {
    "productId": {"type": "integer", "minimum": 1}
  }
}`)
