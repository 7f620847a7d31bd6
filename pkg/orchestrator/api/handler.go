// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package api exposes the orchestrator's HTTP surface: submit an analysis,
// inspect and cancel jobs, stream progress over SSE, and derive or mint the
// on-chain optimization proof.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gweizero/engine/pkg/orchestrator/proof"
	"github.com/gweizero/engine/pkg/orchestrator/registry"
)

// Handler serves the /api/analyze endpoints.
type Handler struct {
	reg   *registry.Registry
	proof *proof.Builder
}

// NewHandler creates a Handler.
func NewHandler(reg *registry.Registry, builder *proof.Builder) *Handler {
	return &Handler{reg: reg, proof: builder}
}

// RegisterRoutes installs the analysis endpoints on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	jobs := router.Group("/api/analyze/jobs")
	{
		jobs.POST("", h.submit)
		jobs.GET("/:id", h.get)
		jobs.POST("/:id/cancel", h.cancel)
		jobs.GET("/:id/events", h.events)
		jobs.POST("/:id/proof-payload", h.proofPayload)
		jobs.POST("/:id/mint-proof", h.mintProof)
	}
}

type submitRequest struct {
	Code string `json:"code"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Solidity source code."})
		return
	}

	job, reused := h.reg.CreateOrReuse(req.Code)
	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
		"reused": reused,
	})
}

func (h *Handler) get(c *gin.Context) {
	job, err := h.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) cancel(c *gin.Context) {
	job, err := h.reg.Cancel(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// events streams the job's progress as SSE: the recorded backlog first,
// then live events, then a final done event when the job is terminal.
func (h *Handler) events(c *gin.Context) {
	id := c.Param("id")
	backlog, live, detach, err := h.reg.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	defer detach()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for _, event := range backlog {
		c.SSEvent("progress", event)
		if event.Phase.Terminal() {
			c.SSEvent("done", gin.H{"status": event.Phase})
			c.Writer.Flush()
			return
		}
	}
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-live:
			if !ok {
				// Stream closed between backlog replay and now; report
				// the terminal status we missed.
				if job, err := h.reg.Get(id); err == nil && job.Status.Terminal() {
					c.SSEvent("done", gin.H{"status": job.Status})
					c.Writer.Flush()
				}
				return
			}
			c.SSEvent("progress", event)
			if event.Phase.Terminal() {
				c.SSEvent("done", gin.H{"status": event.Phase})
				c.Writer.Flush()
				return
			}
			c.Writer.Flush()
		}
	}
}

type proofRequest struct {
	ContractAddress string `json:"contractAddress"`
	ContractName    string `json:"contractName"`
}

func (h *Handler) proofPayload(c *gin.Context) {
	job, err := h.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	var req proofRequest
	_ = c.ShouldBindJSON(&req)

	payload, err := h.proof.Build(job, req.ContractAddress, req.ContractName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *Handler) mintProof(c *gin.Context) {
	job, err := h.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	var req proofRequest
	_ = c.ShouldBindJSON(&req)

	payload, receipt, err := h.proof.Mint(c.Request.Context(), job, req.ContractAddress, req.ContractName)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, proof.ErrNotEligible) || errors.Is(err, proof.ErrChainNotConfigured) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"minted":  true,
		"payload": payload,
		"receipt": receipt,
	})
}
