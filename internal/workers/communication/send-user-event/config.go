// internal/workers/communication/send-user-event/config.go
package senduserevent

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
