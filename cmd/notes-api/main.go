package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AbadAidjah/nuitdeinfo/internal/auth"
	"github.com/AbadAidjah/nuitdeinfo/internal/config"
	"github.com/AbadAidjah/nuitdeinfo/internal/database"
	"github.com/AbadAidjah/nuitdeinfo/internal/logging"
	"github.com/AbadAidjah/nuitdeinfo/internal/notes"
	"github.com/AbadAidjah/nuitdeinfo/internal/server"
	"github.com/AbadAidjah/nuitdeinfo/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "notes-api",
		Short: "Personal notes backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("keycloak-base-url", defaults.GetString("keycloak.base_url"), "Keycloak base URL")
	cmd.PersistentFlags().String("keycloak-realm", defaults.GetString("keycloak.realm"), "Keycloak realm")
	cmd.PersistentFlags().String("keycloak-client-id", defaults.GetString("keycloak.client_id"), "Keycloak client ID")
	cmd.PersistentFlags().String("keycloak-client-secret", "", "Keycloak client secret (overrides env)")
	cmd.PersistentFlags().String("frontend-url", defaults.GetString("frontend.url"), "Frontend base URL")
	cmd.PersistentFlags().String("backend-url", defaults.GetString("backend.url"), "Backend base URL")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session TTL in minutes")
	cmd.PersistentFlags().String("session-signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "keycloak.base_url", "keycloak-base-url")
	bindFlag(cmd, "keycloak.realm", "keycloak-realm")
	bindFlag(cmd, "keycloak.client_id", "keycloak-client-id")
	bindFlag(cmd, "keycloak.client_secret", "keycloak-client-secret")
	bindFlag(cmd, "frontend.url", "frontend-url")
	bindFlag(cmd, "backend.url", "backend-url")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.signing_secret", "session-signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	provider, err := auth.NewProvider(auth.ProviderConfig{
		BaseURL:      appConfig.KeycloakBaseURL,
		Realm:        appConfig.KeycloakRealm,
		ClientID:     appConfig.KeycloakClientID,
		ClientSecret: appConfig.KeycloakClientSecret,
		BackendURL:   appConfig.BackendURL,
		FrontendURL:  appConfig.FrontendURL,
	})
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Issuer:  provider.IssuerURL(),
		JWKSURL: provider.JWKSURL(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		CookieName:    appConfig.SessionCookieName,
		TTL:           appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:    verifier,
		Sessions:    sessions,
		Provider:    provider,
		Users:       usersService,
		Notes:       notesService,
		FrontendURL: appConfig.FrontendURL,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
