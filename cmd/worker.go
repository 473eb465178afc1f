package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"askhc/src/config"
	"askhc/src/infrastructure/job"
	"askhc/src/infrastructure/log"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background job worker",
	Long: `The worker consumes reindex and index_document jobs from the AMQP broker.
It needs jobs.broker=amqp and jobs.store=postgres so that the server sees the job state.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Jobs.Broker != config.BrokerAMQP {
		return errors.New("the worker needs jobs.broker=amqp; the gochannel broker runs jobs inside serve")
	}
	if cfg.Jobs.Store != config.JobStorePostgres {
		log.Info("jobs.store is memory; job state will not be visible to the server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := log.NewWatermillAdapter("worker")
	queue, err := newJobQueue(cfg, logger, true)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, queue.Close)

	jobService, err := newJobService(ctx, a, queue.publisher, logger)
	if err != nil {
		return err
	}

	router, err := job.NewRouter(logger)
	if err != nil {
		return err
	}
	jobService.AddProcessor(router, queue.subscriber)

	errc := make(chan error, 1)
	go func() {
		errc <- router.Run(ctx)
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-errc:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down...")
	cancel()
	<-router.Running()
	if err := router.Close(); err != nil {
		log.Error(err, "Failed to close router")
	}
	log.Info("Router stopped")
	return nil
}
