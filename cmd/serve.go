/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"askhc/handler/http/api"
	"askhc/src/config"
	"askhc/src/infrastructure/job"
	"askhc/src/infrastructure/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the question answering server",
	Long: `The serve command starts an HTTP server with the chat and document APIs.
With jobs.enabled and the gochannel broker, background jobs run in the same process.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		a.Close()
	}()

	var jobService api.JobService
	if cfg.Jobs.Enabled {
		svc, err := startJobs(ctx, a)
		if err != nil {
			return err
		}
		jobService = svc
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(), api.CORS(cfg.Server.CORSOrigins))

	handler := api.NewHandler(a.chat, a.docs, jobService, a.health, cfg.Server.MaxUploadBytes)
	handler.RegisterRoutes(r)
	api.ServeFrontend(r, cfg.Server.FrontendDir)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info("Starting server", "app", cfg.App.Name, "port", cfg.Server.Port,
			"documents", cfg.Data.DocumentsDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Failed to start server")
			cancel()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}

// startJobs creates the job service. With the in-process broker it also runs
// the job router until ctx is done.
func startJobs(ctx context.Context, a *app) (*job.JobService, error) {
	logger := log.NewWatermillAdapter("jobs")
	inProcess := a.cfg.Jobs.Broker == config.BrokerGoChannel

	queue, err := newJobQueue(a.cfg, logger, inProcess)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, queue.Close)

	svc, err := newJobService(ctx, a, queue.publisher, logger)
	if err != nil {
		return nil, err
	}
	if !inProcess {
		log.Info("Jobs are published to the broker; run the worker command to process them")
		return svc, nil
	}

	router, err := job.NewRouter(logger)
	if err != nil {
		return nil, err
	}
	svc.AddProcessor(router, queue.subscriber)
	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Job router stopped")
		}
	}()
	<-router.Running()
	return svc, nil
}
