package snapi

import (
	"strings"
)

// Config is the connection configuration for a remote instance
type Config struct {
	Instance string // Instance host name or URL, e.g. dev1234.service-now.com
	User     string
	Password string
	// RequestsPerSecond caps the request rate. Zero means DefaultRequestsPerSecond.
	RequestsPerSecond int64
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Instance) == "" {
		return ErrNoInstance
	}
	if c.User == "" || c.Password == "" {
		return ErrNoCredentials
	}
	return nil
}

// BaseURL returns the instance URL with a scheme and without a trailing slash.
func (c *Config) BaseURL() string {
	instance := strings.TrimRight(strings.TrimSpace(c.Instance), "/")
	if !strings.HasPrefix(instance, "http://") && !strings.HasPrefix(instance, "https://") {
		instance = "https://" + instance
	}
	return instance
}
