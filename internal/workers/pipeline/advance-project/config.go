// internal/workers/pipeline/advance-project/config.go
package advanceproject

import "time"

type Config struct {
	Timeout time.Duration
	// DefaultToToday records today's date when the process omits one.
	DefaultToToday bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        10 * time.Second,
		DefaultToToday: true,
	}
}
