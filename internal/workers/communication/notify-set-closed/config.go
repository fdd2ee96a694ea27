// internal/workers/communication/notify-set-closed/config.go
package notifysetclosed

import "time"

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	SenderID     string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		FromEmail: "noreply@ambientpro.com",
		SenderID:  "AMBIENT",
		Timeout:   30 * time.Second,
	}
}
