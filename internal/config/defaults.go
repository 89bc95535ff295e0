package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Delivery: DeliveryConfig{
			Endpoint:       "http://localhost:8080/api/analytics",
			AuthToken:      "",
			TimeoutSeconds: 10,
		},
		Engine: EngineConfig{
			SessionTimeoutMinutes: 30,
			HeartbeatSeconds:      30,
			BatchSize:             10,
			BatchIdleSeconds:      5,
			MaxBufferedEvents:     500,
		},
		Privacy: PrivacyConfig{
			ConsentMode:          "optional",
			RespectDoNotTrack:    true,
			ConsentValidityDays:  365,
			VisitorRetentionDays: 730,
			EnableGeolocation:    false,
		},
		Storage: StorageConfig{
			Path:       "~/.config/tracker",
			SQLiteFile: "tracker.db",
		},
		Logging: LoggingConfig{
			Debug: false,
		},
	}
}
