package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatdesk/config"
	"chatdesk/controllers"
	"chatdesk/routes"
	"chatdesk/services"
	"chatdesk/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v = viper.New()

	rootCmd = &cobra.Command{
		Use:   "chatdesk",
		Short: "HTTP backend for a multi-conversation chat client on an OpenRouter-compatible gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()
			return nil
		},
		RunE:         serve,
		SilenceUsage: true,
	}
)

func init() {
	config.SetDefaults(v)

	flags := rootCmd.PersistentFlags()
	flags.Int("port", config.DefaultPort, "port to listen on")
	flags.String("mode", "debug", `gin mode, "debug", "release" or "test"`)
	if err := config.BindFlags(flags, v); err != nil {
		panic(err)
	}
	for _, key := range []string{"port", "mode"} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}
	if err := config.BindEnv(v); err != nil {
		panic(err)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.LogLevel, cfg.Mode == gin.DebugMode); err != nil {
		return err
	}
	gin.SetMode(cfg.Mode)
	if cfg.APIKey == "" {
		log.Warn().Msg("no API key configured, the gateway will reject completion requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.OpenWithRetry(ctx, cfg.Store, 3, 2*time.Second)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	}()

	chat := services.NewChatServiceFromConfig(ctx, cfg, store)
	router := routes.SetupRouter(controllers.NewChatController(chat))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).
		Str("transport", cfg.Transport).
		Str("model", cfg.Model).
		Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	log.Info().Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
