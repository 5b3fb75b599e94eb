package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdfrag/src/infrastructure/job"
	"pdfrag/src/log"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background ingestion worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.db == nil {
		return errNoDatabase
	}

	logger := log.NewWatermillLogger(log.WithName("worker"))
	amqpURL := viper.GetString("amqp.url")

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(amqpURL), logger)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(amqpURL)
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	jobRepo := job.NewPostgresJobRepository(a.db)
	if err := jobRepo.Migrate(ctx); err != nil {
		return err
	}
	jobService := job.NewJobService(amqpPublisher, jobRepo, logger)
	jobService.Register(job.TaskTypeIngest, job.NewIngestHandler(a.docs))

	router, err := job.NewRouter(amqpSubscriber, jobService, logger, viper.GetInt("jobs.max_retries"))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(ctx)
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-errCh:
		if err != nil {
			log.Error(err, "Router stopped unexpectedly")
			return err
		}
	}

	log.Info("Shutting down...")
	cancel()
	if err := <-errCh; err != nil {
		log.Error(err, "Router stopped with error")
	}
	log.Info("Router stopped")
	return nil
}
