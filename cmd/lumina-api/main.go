package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lumina/internal/ai"
	"github.com/MarcoPoloResearchLab/lumina/internal/config"
	"github.com/MarcoPoloResearchLab/lumina/internal/database"
	"github.com/MarcoPoloResearchLab/lumina/internal/logging"
	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/search"
	"github.com/MarcoPoloResearchLab/lumina/internal/server"
	"github.com/MarcoPoloResearchLab/lumina/internal/workspace"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lumina-api",
		Short: "Lumina Notes backend service",
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
	cmd.PersistentFlags().String("storage-key", defaults.GetString("storage.key"), "Key the note collection is stored under")
	cmd.PersistentFlags().Int("search-debounce-ms", defaults.GetInt("search.debounce_ms"), "Semantic search debounce in milliseconds")
	cmd.PersistentFlags().String("gemini-project", defaults.GetString("gemini.project"), "Google Cloud project for Gemini (empty disables AI features)")
	cmd.PersistentFlags().String("gemini-location", defaults.GetString("gemini.location"), "Google Cloud location for Gemini")
	cmd.PersistentFlags().String("gemini-model", defaults.GetString("gemini.model"), "Gemini model name")
	cmd.PersistentFlags().Int("ai-timeout-seconds", defaults.GetInt("ai.timeout_seconds"), "Timeout for a single AI request")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "storage.key", "storage-key")
	bindFlag(cmd, "search.debounce_ms", "search-debounce-ms")
	bindFlag(cmd, "gemini.project", "gemini-project")
	bindFlag(cmd, "gemini.location", "gemini-location")
	bindFlag(cmd, "gemini.model", "gemini-model")
	bindFlag(cmd, "ai.timeout_seconds", "ai-timeout-seconds")
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, appConfig.StorageKey, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	repository, err := notes.NewKeyValueRepository(db, appConfig.StorageKey, time.Now)
	if err != nil {
		return err
	}

	aiClient, err := ai.NewGemini(ctx, ai.GeminiConfig{
		ProjectID: appConfig.GeminiProject,
		Location:  appConfig.GeminiLocation,
		Model:     appConfig.GeminiModel,
	})
	if err != nil {
		return err
	}

	serviceConfig := notes.ServiceConfig{
		Repository:        repository,
		Clock:             time.Now,
		IDProvider:        notes.NewUUIDProvider(),
		Logger:            logger,
		EnrichmentTimeout: appConfig.AITimeout,
	}
	if aiClient != nil {
		serviceConfig.Enricher = aiClient
	} else {
		logger.Warn("gemini.project not set; tags, summaries and semantic search are disabled")
	}
	notesService, err := notes.NewService(serviceConfig)
	if err != nil {
		return err
	}
	defer notesService.Close()
	notesService.Load(ctx)

	realtime := server.NewRealtimeDispatcher()
	notesService.AddListener(realtime.NoteListener())

	workspaceConfig := workspace.Config{Notes: notesService, Logger: logger}
	if aiClient != nil {
		dispatcher, err := search.NewDispatcher(search.Config{
			Searcher: aiClient,
			Notes:    notesService.Notes,
			Debounce: appConfig.SearchDebounce,
			Timeout:  appConfig.AITimeout,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		dispatcher.AddListener(realtime.SearchListener())
		workspaceConfig.Search = dispatcher
	}
	appWorkspace, err := workspace.New(workspaceConfig)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Workspace: appWorkspace,
		Realtime:  realtime,
		Logger:    logger,
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
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.Bool("ai_enabled", aiClient != nil))
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
