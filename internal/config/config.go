// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package config handles reference host configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the reference host's configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Agg     AggConfig     `json:"agg"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Webhook WebhookConfig `json:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Mode       string    `json:"mode"`        // "debug" or "release"
	SocketPath string    `json:"socket_path"` // Unix socket path (empty to disable)
	AdminKey   string    `json:"admin_key"`   // Admin key for group management ("statsagg_" prefix + at least 36 chars)
	TLS        TLSConfig `json:"tls"`         // TLS configuration (optional)
}

// TLSConfig holds TLS/HTTPS settings.
type TLSConfig struct {
	CertFile string `json:"cert_file"` // Path to TLS certificate file
	KeyFile  string `json:"key_file"`  // Path to TLS private key file
}

// AggConfig holds the aggregation-level behavior of the reference host.
type AggConfig struct {
	// Strict resolves the partial-object-tolerance Open Question: when
	// true, a non-object outer "stats"/"stats_agg" input is rejected with
	// InvalidValue instead of being treated as a no-op.
	Strict bool `json:"strict"`
}

// MQTTConfig holds the worker-transport MQTT broker settings.
type MQTTConfig struct {
	BrokerURL   string `json:"broker_url"`   // e.g. "tcp://localhost:1883"
	TopicPrefix string `json:"topic_prefix"` // e.g. "statsagg"
	ClientID    string `json:"client_id"`
	QoS         byte   `json:"qos"`
}

// WebhookConfig holds the optional combine/merge failure notification
// settings. Empty URL disables webhook alerting.
type WebhookConfig struct {
	URL string `json:"url"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       21080,
			Mode:       "release",
			SocketPath: "/var/run/statsaggd/statsaggd.sock",
		},
		Agg: AggConfig{
			Strict: false,
		},
		MQTT: MQTTConfig{
			BrokerURL:   "tcp://localhost:1883",
			TopicPrefix: "statsagg",
			ClientID:    "statsaggd",
			QoS:         1,
		},
	}
}

// Load loads configuration from a JSON file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadFromEnv overrides config values from environment variables.
func (c *Config) LoadFromEnv() {
	if host := os.Getenv("STATSAGGD_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("STATSAGGD_PORT"); port != "" {
		var p int
		if _, err := parseEnvInt(port, &p); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if mode := os.Getenv("STATSAGGD_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if socketPath := os.Getenv("STATSAGGD_SOCKET_PATH"); socketPath != "" {
		c.Server.SocketPath = socketPath
	}
	if adminKey := os.Getenv("STATSAGGD_ADMIN_KEY"); adminKey != "" {
		c.Server.AdminKey = adminKey
	}
	if tlsCert := os.Getenv("STATSAGGD_TLS_CERT"); tlsCert != "" {
		c.Server.TLS.CertFile = tlsCert
	}
	if tlsKey := os.Getenv("STATSAGGD_TLS_KEY"); tlsKey != "" {
		c.Server.TLS.KeyFile = tlsKey
	}
	if strict := os.Getenv("STATSAGGD_STRICT"); strict == "1" || strict == "true" {
		c.Agg.Strict = true
	}
	if broker := os.Getenv("STATSAGGD_MQTT_BROKER"); broker != "" {
		c.MQTT.BrokerURL = broker
	}
	if prefix := os.Getenv("STATSAGGD_MQTT_TOPIC_PREFIX"); prefix != "" {
		c.MQTT.TopicPrefix = prefix
	}
	if webhookURL := os.Getenv("STATSAGGD_WEBHOOK_URL"); webhookURL != "" {
		c.Webhook.URL = webhookURL
	}
}

// TLSEnabled returns true if TLS is configured with both cert and key files.
func (c *Config) TLSEnabled() bool {
	return c.Server.TLS.CertFile != "" && c.Server.TLS.KeyFile != ""
}

func parseEnvInt(s string, v *int) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	*v = n
	return n, nil
}
