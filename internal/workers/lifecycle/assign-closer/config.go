// internal/workers/lifecycle/assign-closer/config.go
package assigncloser

import "time"

type Config struct {
	Timeout time.Duration
	// AllowReassign lets processes replace a closer already on the set.
	AllowReassign bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
