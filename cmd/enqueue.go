package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"askhc/src/config"
	"askhc/src/infrastructure/job"
	"askhc/src/infrastructure/log"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue an indexing job for the worker",
	Long: `Without flags a reindex job is enqueued. With --file the named stored
document is indexed again.`,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().StringP("file", "f", "", "stored document to index")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Jobs.Broker != config.BrokerAMQP || cfg.Jobs.Store != config.JobStorePostgres {
		return errors.New("enqueue needs jobs.broker=amqp and jobs.store=postgres so that the worker can find the job")
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := log.NewWatermillAdapter("enqueue")
	queue, err := newJobQueue(cfg, logger, false)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, queue.Close)

	jobService, err := newJobService(ctx, a, queue.publisher, logger)
	if err != nil {
		return err
	}

	taskType := job.TaskTypeReindex
	payload := json.RawMessage("{}")
	if filename != "" {
		taskType = job.TaskTypeIndexDocument
		payload, err = json.Marshal(job.IndexDocumentPayload{Filename: filename})
		if err != nil {
			return err
		}
	}

	created, err := jobService.EnqueueJob(ctx, taskType, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	fmt.Printf("Job %d enqueued (%s)\n", created.ID, created.TaskType)
	return nil
}
