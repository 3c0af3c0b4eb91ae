package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xhad/ragd/pkg/errs"
	"go.uber.org/zap"
)

type ingestRequest struct {
	URL string `json:"url"`
}

type queryRequest struct {
	Query string `json:"query"`
}

// handleIngestURL accepts a URL, persists a PENDING job, and schedules
// it for background processing. 202 because nothing is ingested yet.
func (s *Server) handleIngestURL(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobID, err := s.ingest.Submit(c.Request.Context(), req.URL)
	if err != nil {
		if conflict, ok := errs.AsConflict(err); ok {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "URL has already been submitted",
				"job_id": conflict.JobID,
				"status": conflict.Status,
			})
			return
		}
		if errs.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("submit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create and schedule job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// handleQuery returns a grounded answer with source attribution.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	answer, err := s.query.Answer(c.Request.Context(), req.Query)
	if err != nil {
		if errs.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an error occurred during the query process"})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// handleGetJob exposes job status for polling; FAILED jobs are only
// observable here.
func (s *Server) handleGetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := s.ingest.Job(c.Request.Context(), id)
	if err != nil {
		if errs.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		s.logger.Error("get job failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	c.JSON(http.StatusOK, job)
}
