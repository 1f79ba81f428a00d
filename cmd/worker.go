package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"cloudkb/src/core/kb"
	"cloudkb/src/infrastructure/integrations/ollama"
	jobctrl "cloudkb/src/infrastructure/job"
	"cloudkb/src/log"
	"cloudkb/src/storage/minioctrl"
	"cloudkb/src/storage/pgvector"
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
	if err := log.Setup(viper.GetBool("log.production")); err != nil {
		return err
	}

	logger := watermill.NewStdLogger(false, false)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	store, err := pgvector.NewStore(ctx, postgresDSN(), viper.GetInt("kb.embedding_dimensions"))
	if err != nil {
		return err
	}
	defer store.Close()

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
		if err := store.EnsurePartition(ctx, tenant); err != nil {
			return err
		}
	}

	ingestor := kb.NewIngestor(registry, ollamaClient, store, newChunker(), viper.GetInt("kb.ingest_concurrency"))
	ingestTask := jobctrl.NewIngestTask(registry, minioService, ingestor)

	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	jobRepo := jobctrl.NewPostgresRepository(db)
	jobSvc, err := jobctrl.NewService(amqpPublisher, jobRepo, logger, ingestTask)
	if err != nil {
		return err
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"kb_ingestion_handler",
		jobctrl.IngestTopic,
		amqpSubscriber,
		jobSvc.ProcessJobMessage,
	)

	log.Info("ingestion worker started")
	return router.Run(ctx)
}
