package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type crawlJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	Target    string             `json:"target"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

const (
	jobRunning   = "running"
	jobCompleted = "completed"
	jobFailed    = "failed"
)

func (s *Server) handleCrawlSource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return s.startCrawl(c, fmt.Sprintf("source %d", id), func(ctx context.Context) (any, error) {
		return s.crawler.CrawlSource(ctx, id)
	})
}

func (s *Server) handleCrawlAll(c echo.Context) error {
	return s.startCrawl(c, "active sources", func(ctx context.Context) (any, error) {
		return s.crawler.CrawlActive(ctx)
	})
}

// startCrawl runs fn in the background and answers 202 with a job id. Only
// one crawl runs at a time. When it ends, sources and funding calls are
// reloaded so last_crawled_at and new rows show up.
func (s *Server) startCrawl(c echo.Context, target string, fn func(ctx context.Context) (any, error)) error {
	if s.crawler == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Crawling is not configured"})
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == jobRunning {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A crawl is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), s.jobTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &crawlJob{
		ID:        jobID,
		Status:    jobRunning,
		Target:    target,
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		result, err := fn(jobCtx)

		if rerr := s.sources.Refetch(jobCtx); rerr != nil {
			log.Printf("[crawl-job %s] sources refetch failed: %v", jobID, rerr)
		}
		s.calls.Refetch(jobCtx)

		s.jobMu.Lock()
		job.EndedAt = time.Now()
		job.Result = result
		if err != nil {
			job.Status = jobFailed
			job.Error = err.Error()
		} else {
			job.Status = jobCompleted
		}
		s.jobMu.Unlock()

		if err != nil {
			log.Printf("[crawl-job %s] %s failed: %v", jobID, target, err)
			return
		}
		log.Printf("[crawl-job %s] %s completed", jobID, target)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Crawl started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/crawl/jobs/%s", jobID),
	})
}

func (s *Server) handleCrawlJob(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"target":     job.Target,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
