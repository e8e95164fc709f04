// internal/workers/communication/send-direct-email/config.go
package senddirectemail

import (
	"time"

	"comm-dispatch/internal/common/config"
)

type Config struct {
	Enabled bool
	Timeout time.Duration
}

func NewConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Enabled: wcfg.Enabled, Timeout: timeout}
}
