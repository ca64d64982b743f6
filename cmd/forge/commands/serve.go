package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sk8tingusmc/forge/internal/config"
	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/internal/facade"
	"github.com/sk8tingusmc/forge/internal/logging"
	"github.com/sk8tingusmc/forge/internal/store"
	"github.com/sk8tingusmc/forge/internal/supervisor"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forge HTTP/SSE facade",
	Long: `Start forge as a headless server that exposes the command surface
over HTTP and events over Server-Sent Events.

This is the binding other frontends (desktop shells, editor extensions)
talk to; forge itself never renders a UI.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (0 = use config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting forge")
	logging.Info().Str("directory", workDir).Msg("working directory")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = appConfig.HTTP.Port
	}

	st, err := store.Open(context.Background(), paths.StorePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	bus := event.NewBus()
	sup := supervisor.New(bus, st, logging.Logger)
	defer sup.Close()

	facadeCfg := facade.DefaultConfig()
	facadeCfg.Port = port
	facadeCfg.EnableCORS = appConfig.HTTP.EnableCORS
	f := facade.New(facadeCfg, sup, bus, logging.Logger)

	go func() {
		logging.Info().
			Int("port", port).
			Str("url", fmt.Sprintf("http://127.0.0.1:%d", port)).
			Msg("facade listening")
		if err := f.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("facade error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("facade shutdown error")
	}
	if err := st.Close(); err != nil {
		logging.Error().Err(err).Msg("store close error")
	}

	logging.Info().Msg("forge stopped")
	return nil
}
