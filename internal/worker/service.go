package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/core/domain"
)

const queueCapacity = 128

// Service exposes the provider wire contract over a local in-memory queue.
// POST /run enqueues a job for the dispatcher goroutines; /status and
// /cancel observe it by id.
type Service struct {
	store     *jobStore
	processor *Processor
	queue     chan string

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewService starts concurrency dispatcher goroutines immediately.
func NewService(processor *Processor, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}

	s := &Service{
		store:     newJobStore(),
		processor: processor,
		queue:     make(chan string, queueCapacity),
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	for i := 0; i < concurrency; i++ {
		s.wg.Add(1)
		go s.dispatch()
	}
	return s
}

// Stop drains the queue: no new jobs are accepted, queued and running jobs
// finish, then the dispatchers exit.
func (s *Service) Stop() {
	close(s.queue)
	s.wg.Wait()
	s.baseCancel()
}

func (s *Service) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.Health)
	r.POST("/run", s.Run)
	r.GET("/status/:job_id", s.JobStatus)
	r.POST("/cancel/:job_id", s.CancelJob)
}

func (s *Service) dispatch() {
	defer s.wg.Done()
	for id := range s.queue {
		s.runJob(id)
	}
}

func (s *Service) runJob(id string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	input, ok := s.store.markRunning(id, cancel)
	if !ok {
		// Cancelled while still queued.
		return
	}

	logger := log.WithField("job_id", id)
	logger.WithField("image_url", input.ImageURL).Info("Job started")

	out, err := s.processor.Process(ctx, input)
	if err != nil {
		logger.WithError(err).Error("Job failed")
		s.store.fail(id, err.Error())
		return
	}

	payload, err := json.Marshal(out)
	if err != nil {
		s.store.fail(id, "encode output: "+err.Error())
		return
	}
	s.store.complete(id, payload)
	logger.WithField("findings", out.NumFindings).Info("Job completed")
}

type runRequest struct {
	Input domain.JobInput `json:"input"`
}

func (s *Service) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Service) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Input.ImageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field: image_url"})
		return
	}

	job := s.store.create(req.Input)
	select {
	case s.queue <- job.ID:
	default:
		s.store.remove(job.ID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": domain.ErrQueueFull.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": job.Status})
}

func (s *Service) JobStatus(c *gin.Context) {
	job, err := s.store.get(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Service) CancelJob(c *gin.Context) {
	job, err := s.store.cancel(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": job.ID, "status": job.Status})
}
