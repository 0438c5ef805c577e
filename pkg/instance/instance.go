package instance

import (
	"os"
	"strings"
)

const envInstanceID = "BURUDANI_INSTANCE_ID"

// GetID identifies this process in logs. The explicit env var wins, then the
// hostname, then a fixed fallback.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(envInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-0"
}
