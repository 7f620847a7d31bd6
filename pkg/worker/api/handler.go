// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package api exposes the worker's HTTP surface for submitting, inspecting,
// cancelling and retrying gas measurement jobs.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/worker/store"
)

// Handler serves the worker job endpoints.
type Handler struct {
	store *store.Store
}

// NewHandler creates a Handler over the given store.
func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// RegisterRoutes installs the /jobs endpoints on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	jobs := router.Group("/jobs")
	{
		jobs.GET("/health", h.health)
		jobs.POST("/analyze", h.analyze)
		jobs.GET("", h.list)
		jobs.GET("/:id", h.get)
		jobs.POST("/:id/cancel", h.cancel)
		jobs.POST("/:id/retry", h.retry)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type analyzeRequest struct {
	Code string `json:"code"`
}

// analyze accepts a contract and enqueues a measurement job.
func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Solidity source code."})
		return
	}

	job, err := h.store.Create(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// get returns the job without its source code.
func (h *Handler) get(c *gin.Context) {
	job, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// list returns jobs newest first, optionally filtered by ?status= and
// truncated to ?limit=.
func (h *Handler) list(c *gin.Context) {
	status := common.WorkerStatus(c.Query("status"))
	jobs := h.store.List(status)
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit >= 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// cancel requests cancellation. Cancelling a terminal job is a no-op and
// returns the job unchanged.
func (h *Handler) cancel(c *gin.Context) {
	job, err := h.store.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// retry creates a new job from a failed or cancelled one.
func (h *Handler) retry(c *gin.Context) {
	job, err := h.store.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, store.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": "Only failed or cancelled jobs can be retried."})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":   job.ID,
		"status":  job.Status,
		"retryOf": job.RetryOf,
	})
}
