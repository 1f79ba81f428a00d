package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bwmarrin/snowflake"

	"cloudkb/src/core/kb"
)

const (
	// IngestTopic is the AMQP topic ingestion jobs are published on
	IngestTopic = "kb-ingestion-jobs"

	TaskTypeIngest = "kb_ingest"
)

// IngestPayload identifies the document an ingestion job should process
type IngestPayload struct {
	TenantID    string `json:"tenant_id"`
	DocumentKey string `json:"document_key"`
}

// JobMessage is the wire form of a queued job
type JobMessage struct {
	JobID    int64           `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

// IngestTask fetches a document from the tenant's bucket and runs the
// ingestion pipeline over it.
type IngestTask struct {
	registry *kb.TenantRegistry
	blobs    kb.BlobStore
	ingestor *kb.Ingestor
}

func NewIngestTask(registry *kb.TenantRegistry, blobs kb.BlobStore, ingestor *kb.Ingestor) *IngestTask {
	return &IngestTask{
		registry: registry,
		blobs:    blobs,
		ingestor: ingestor,
	}
}

// Run executes one ingestion job to completion
func (t *IngestTask) Run(ctx context.Context, payload IngestPayload) (*kb.IngestSummary, error) {
	bucket, err := t.registry.Bucket(payload.TenantID)
	if err != nil {
		return nil, err
	}

	data, err := t.blobs.GetObject(ctx, bucket, payload.DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", payload.DocumentKey, err)
	}

	return t.ingestor.Ingest(ctx, payload.TenantID, payload.DocumentKey, string(data))
}

// Service enqueues ingestion jobs and processes them off the message queue
type Service struct {
	publisher  message.Publisher
	repo       Repository
	node       *snowflake.Node
	logger     watermill.LoggerAdapter
	ingestTask *IngestTask
}

func NewService(publisher message.Publisher, repo Repository, logger watermill.LoggerAdapter, ingestTask *IngestTask) (*Service, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &Service{
		publisher:  publisher,
		repo:       repo,
		node:       node,
		logger:     logger,
		ingestTask: ingestTask,
	}, nil
}

// EnqueueIngest creates an ingestion job record and publishes it to the queue
func (s *Service) EnqueueIngest(ctx context.Context, tenantID, documentKey string) (*Job, error) {
	payload, err := json.Marshal(IngestPayload{TenantID: tenantID, DocumentKey: documentKey})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}

	job := &Job{
		ID:       s.node.Generate().Int64(),
		TaskType: TaskTypeIngest,
		TenantID: tenantID,
		Payload:  payload,
		Status:   JobStatusPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobMsg := JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	}
	msgPayload, err := json.Marshal(jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(IngestTopic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	return job, nil
}

// ProcessJobMessage processes one job message from the queue
func (s *Service) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		return fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	ctx := context.Background()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %d", jobMsg.JobID)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		return fmt.Errorf("failed to update job status to running: %w", err)
	}

	err = s.processJob(ctx, job)
	if err != nil {
		errStr := err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
			s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
				"job_id": job.ID,
			})
		}
		return fmt.Errorf("failed to process job: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	return nil
}

func (s *Service) processJob(ctx context.Context, job *Job) error {
	switch job.TaskType {
	case TaskTypeIngest:
		var payload IngestPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal ingest payload: %w", err)
		}

		summary, err := s.ingestTask.Run(ctx, payload)
		if err != nil {
			return err
		}

		resultJSON, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal ingest summary: %w", err)
		}
		if err := s.repo.SetResult(ctx, job.ID, resultJSON); err != nil {
			return fmt.Errorf("failed to store ingest summary: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", job.TaskType)
	}
}
