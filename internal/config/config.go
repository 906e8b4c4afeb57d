package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "NOTES"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "notes.db"
	defaultLogLevel       = "info"
	defaultFrontendURL    = "http://localhost:5173"
	defaultBackendURL     = "http://localhost:8080"
	defaultKeycloakRealm  = "notes"
	defaultCookieName     = "notes_session"
	defaultSessionMinutes = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	KeycloakBaseURL      string
	KeycloakRealm        string
	KeycloakClientID     string
	KeycloakClientSecret string
	FrontendURL          string
	BackendURL           string
	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("keycloak.realm", defaultKeycloakRealm)
	configViper.SetDefault("frontend.url", defaultFrontendURL)
	configViper.SetDefault("backend.url", defaultBackendURL)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		KeycloakBaseURL:      configViper.GetString("keycloak.base_url"),
		KeycloakRealm:        configViper.GetString("keycloak.realm"),
		KeycloakClientID:     configViper.GetString("keycloak.client_id"),
		KeycloakClientSecret: configViper.GetString("keycloak.client_secret"),
		FrontendURL:          configViper.GetString("frontend.url"),
		BackendURL:           configViper.GetString("backend.url"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTTL:           time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.KeycloakBaseURL) == "" {
		return fmt.Errorf("keycloak.base_url is required")
	}
	if strings.TrimSpace(c.KeycloakRealm) == "" {
		return fmt.Errorf("keycloak.realm is required")
	}
	if strings.TrimSpace(c.KeycloakClientID) == "" {
		return fmt.Errorf("keycloak.client_id is required")
	}
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	return nil
}
