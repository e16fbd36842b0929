package mssql

import (
	"fmt"
)

const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod determines which authentication to use: "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic config map and auto-detects the auth method.
// Connection options may be given at the top level or under "options".
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := intValue(config["port"]); ok && port > 0 {
		cfg.Port = port
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	opts := mergedOptions(config)

	switch encrypt := opts["encrypt"].(type) {
	case bool:
		cfg.Encrypt = encrypt
	case string:
		// "true", "false", "strict"
		cfg.Encrypt = encrypt == "true" || encrypt == "strict"
	}

	switch trust := opts["trust_server_certificate"].(type) {
	case bool:
		cfg.TrustServerCertificate = trust
	case string:
		cfg.TrustServerCertificate = trust == "true"
	}

	if timeout, ok := intValue(opts["connection_timeout"]); ok {
		cfg.ConnectionTimeout = timeout
	}

	if authMethod, ok := opts["auth_method"].(string); ok && authMethod != "" {
		cfg.AuthMethod = authMethod
	} else if _, hasClientID := opts["client_id"].(string); hasClientID {
		cfg.AuthMethod = AuthServicePrincipal
	} else if user, ok := config["user"].(string); ok && user != "" {
		cfg.AuthMethod = AuthSQL
	} else {
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		if user, ok := config["user"].(string); ok && user != "" {
			cfg.Username = user
		} else {
			return nil, fmt.Errorf("user is required for SQL authentication")
		}
		if password, ok := config["password"].(string); ok {
			cfg.Password = password
		}

	case AuthServicePrincipal:
		var ok bool
		if cfg.TenantID, ok = opts["tenant_id"].(string); !ok {
			return nil, fmt.Errorf("tenant_id is required for service principal authentication")
		}
		if cfg.ClientID, ok = opts["client_id"].(string); !ok {
			return nil, fmt.Errorf("client_id is required for service principal authentication")
		}
		// The client secret arrives through the password_env indirection like any other secret.
		if cfg.ClientSecret, ok = config["password"].(string); !ok || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("client secret (password) is required for service principal authentication")
		}

	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("tenant_id, client_id and client secret are required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}
	return nil
}

// mergedOptions overlays the nested "options" map on top-level keys.
func mergedOptions(config map[string]any) map[string]any {
	opts := make(map[string]any, len(config))
	for k, v := range config {
		opts[k] = v
	}
	switch nested := config["options"].(type) {
	case map[string]any:
		for k, v := range nested {
			opts[k] = v
		}
	case map[string]string:
		for k, v := range nested {
			opts[k] = v
		}
	}
	return opts
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64: // JSON numbers are float64
		return int(n), true
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}
