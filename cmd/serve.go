package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "cloudkb/handler/http"
	"cloudkb/src/core/kb"
	"cloudkb/src/infrastructure/integrations/ollama"
	jobctrl "cloudkb/src/infrastructure/job"
	"cloudkb/src/log"
	"cloudkb/src/storage/minioctrl"
	"cloudkb/src/storage/pgvector"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the knowledge base API server",
	Long:  `The serve command starts the HTTP server that answers tenant queries and accepts document sync requests.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := log.Setup(viper.GetBool("log.production")); err != nil {
		return err
	}

	ctx := context.Background()

	// Vector store over per-tenant pgvector partitions
	store, err := pgvector.NewStore(ctx, postgresDSN(), viper.GetInt("kb.embedding_dimensions"))
	if err != nil {
		return err
	}
	defer store.Close()

	// Job records share the same database through gorm
	db, err := gorm.Open(postgres.Open(postgresDSN()), &gorm.Config{})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.AutoMigrate(&jobctrl.Job{}); err != nil {
		return err
	}

	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return err
	}

	ollamaClient := ollama.NewClient(
		viper.GetString("ollama.url"),
		&http.Client{},
		viper.GetString("ollama.embedding_model"),
		viper.GetString("ollama.completion_model"),
	)

	registry := tenantRegistry()
	for _, tenant := range registry.Known() {
		bucket, err := registry.Bucket(tenant)
		if err != nil {
			return err
		}
		if err := minioService.EnsureBucketExists(ctx, bucket); err != nil {
			return err
		}
	}

	querySvc := kb.NewQueryService(registry, ollamaClient, store, ollamaClient, queryConfig())

	// The server only enqueues ingestion jobs; the worker processes them
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	jobRepo := jobctrl.NewPostgresRepository(db)
	jobSvc, err := jobctrl.NewService(amqpPublisher, jobRepo, watermill.NewStdLogger(false, false), nil)
	if err != nil {
		return err
	}

	// Setup gin router
	r := gin.Default()
	handler := httpHdlr.NewHandler(querySvc, jobSvc, jobRepo, minioService, registry)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "failed to start server")
			os.Exit(1)
		}
	}()
	log.Info("server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited")
	return nil
}
