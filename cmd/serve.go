package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "pdfrag/handler/http"
	"pdfrag/src/infrastructure/job"
	"pdfrag/src/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the question answering HTTP server",
	Long: `The serve command starts an HTTP server exposing document upload, listing and
removal, streamed chat answers and chat history under /api/v1. Requests are scoped
to the tenant named in the X-Tenant-ID header.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := buildApp(ctx)
	if err != nil {
		log.Error(err, "Failed to initialize services")
		return err
	}
	defer a.Close()

	opts := []httpHdlr.Option{httpHdlr.WithMaxUploadSize(viper.GetInt64("server.max_upload_size"))}

	// Asynchronous uploads need the job table and a broker
	if amqpURL := viper.GetString("amqp.url"); amqpURL != "" && a.db != nil {
		wlogger := log.NewWatermillLogger(log.WithName("jobs"))
		publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(amqpURL), wlogger)
		if err != nil {
			log.Error(err, "Failed to create AMQP publisher")
			return err
		}
		defer publisher.Close()

		jobRepo := job.NewPostgresJobRepository(a.db)
		if err := jobRepo.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, httpHdlr.WithJobs(job.NewJobService(publisher, jobRepo, wlogger)))
	}

	handler := httpHdlr.NewHandler(a.docs, a.chat, a.system, opts...)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}
