package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/luikyv/go-authority/pkg/goidc"
	"github.com/luikyv/go-authority/pkg/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 15 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authority",
		Long: `Start the authority. The sweeper removes expired entities in the background
and the metadata document, the public JWK Set and the metrics are served over HTTP.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, slog.Default())
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("storage", storageMemory, "Storage backend: memory, redis or mongodb")
	_ = v.BindPFlag("address", cmd.Flags().Lookup("address"))
	_ = v.BindPFlag("storage.type", cmd.Flags().Lookup("storage"))
	return cmd
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	store, closeStore, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	opts, err := providerOptions(cfg, store, reg, logger)
	if err != nil {
		return err
	}

	op, err := provider.New(cfg.Issuer, opts...)
	if err != nil {
		return fmt.Errorf("could not create the provider: %w", err)
	}

	if err := op.StartSweeper(ctx); err != nil {
		return err
	}
	defer op.StopSweeper()

	mux := http.NewServeMux()
	mux.Handle("/", op.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authority listening", slog.String("address", cfg.Address), slog.String("issuer", cfg.Issuer))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func providerOptions(
	cfg Config,
	store provider.Storage,
	reg prometheus.Registerer,
	logger *slog.Logger,
) (
	[]provider.Option,
	error,
) {
	opts := []provider.Option{
		provider.WithLogger(logger),
		provider.WithMetrics(reg),
		provider.WithStoreTimeout(cfg.Storage.Timeout),
		provider.WithClientSecretKey([]byte(cfg.ClientSecretKey)),
		provider.WithPathPrefix(cfg.PathPrefix),
		provider.WithSweeper(cfg.Sweeper.IntervalSecs, cfg.Sweeper.BatchSize),
		provider.WithLifetimes(provider.Lifetimes{
			AuthorizationCodeSecs:      cfg.Tokens.AuthorizationCodeLifetimeSecs,
			AccessTokenSecs:            cfg.Tokens.AccessTokenLifetimeSecs,
			RefreshTokenSecs:           cfg.Tokens.RefreshTokenLifetimeSecs,
			IDTokenSecs:                cfg.Tokens.IDTokenLifetimeSecs,
			DeviceCodeSecs:             cfg.Device.LifetimeSecs,
			DevicePollIntervalSecs:     cfg.Device.PollIntervalSecs,
			CIBASecs:                   cfg.CIBA.LifetimeSecs,
			CIBAPollIntervalSecs:       cfg.CIBA.PollIntervalSecs,
			SessionIdleSecs:            cfg.Sessions.IdleLifetimeSecs,
			SessionMaxSecs:             cfg.Sessions.MaxLifetimeSecs,
			UnauthenticatedSessionSecs: cfg.Sessions.UnauthenticatedLifetimeSecs,
			UMATicketSecs:              cfg.UMA.TicketLifetimeSecs,
			UMARPTSecs:                 cfg.UMA.RPTLifetimeSecs,
			UMAPCTSecs:                 cfg.UMA.PCTLifetimeSecs,
			UMAResourceSecs:            cfg.UMA.ResourceLifetimeSecs,
		}),
	}

	if cfg.Storage.Type != storageMemory {
		opts = append(opts, provider.WithStorage(store))
	}

	if len(cfg.Scopes) != 0 {
		opts = append(opts, provider.WithScopes(cfg.Scopes...))
	}

	if cfg.KeyLifetimeSecs != 0 {
		opts = append(opts, provider.WithKeyRotation(cfg.KeyLifetimeSecs))
	}

	if cfg.SigningKeysFile != "" {
		jwks, err := loadPrivateJWKS(cfg.SigningKeysFile)
		if err != nil {
			return nil, err
		}
		for _, jwk := range jwks.Keys {
			opts = append(opts, provider.WithSigningKey(jwk))
		}
	}

	if cfg.Tokens.JWTAccessTokens {
		opts = append(opts, provider.WithJWTAccessTokens())
	}
	if cfg.Tokens.RefreshTokenRotation {
		opts = append(opts, provider.WithRefreshTokenRotation())
	}
	if cfg.Tokens.RevocationCascade {
		opts = append(opts, provider.WithRefreshTokenRevocationCascade())
	}
	if cfg.Tokens.Implicit {
		opts = append(opts, provider.WithImplicitGrant())
	}
	if cfg.Tokens.PKCERequired {
		opts = append(opts, provider.WithPKCE(true, goidc.CodeChallengeMethodSHA256))
	}
	if cfg.Device.Enabled {
		opts = append(opts, provider.WithDeviceAuthorizationGrant(cfg.Device.VerificationURI))
	}
	if cfg.CIBA.Enabled {
		opts = append(opts, provider.WithCIBAGrant())
	}
	if cfg.UMA.Enabled {
		opts = append(opts, provider.WithUMA(nil))
	}
	if cfg.UMA.JWTRPT {
		opts = append(opts, provider.WithJWTRPT())
	}

	return opts, nil
}
