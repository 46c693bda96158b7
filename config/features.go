package config

import "os"

type Features struct {
	MonitoringEnabled  bool
	RateLimitEnabled   bool
	EmailAlertsEnabled bool
	SlackAlertsEnabled bool
}

// LoadFeatures reads the feature toggles. Monitoring is on unless explicitly
// disabled; everything else is opt-in.
func LoadFeatures() Features {
	return Features{
		MonitoringEnabled:  os.Getenv("MONITORING_ENABLED") != "false",
		RateLimitEnabled:   os.Getenv("RATE_LIMIT_ENABLED") == "true",
		EmailAlertsEnabled: os.Getenv("EMAIL_ALERTS_ENABLED") == "true",
		SlackAlertsEnabled: os.Getenv("SLACK_ALERTS_ENABLED") == "true",
	}
}
