// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

// Package workerclient talks to the gas measurement worker: submit a
// contract, poll the job until it settles, and map the outcome back into
// the orchestrator's domain.
package workerclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/logger/log"
)

// Client is a polling client for the worker's job API.
type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// New creates a Client from the orchestrator configuration.
func New(cfg config.OrchestratorConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.WorkerURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Client{
		http:         httpClient,
		pollInterval: cfg.WorkerPollInterval,
		timeout:      cfg.WorkerTimeout,
	}
}

type submitResponse struct {
	JobID  string              `json:"jobId"`
	Status common.WorkerStatus `json:"status"`
	Error  string              `json:"error"`
}

type jobResponse struct {
	ID     string              `json:"id"`
	Status common.WorkerStatus `json:"status"`
	Error  string              `json:"error"`
	Result *common.GasReport   `json:"result"`
}

// Analyze submits the source and polls until the worker job settles. On
// context cancellation the worker job is cancelled best-effort.
func (c *Client) Analyze(ctx context.Context, source string) (*common.GasReport, error) {
	var submitted submitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"code": source}).
		SetResult(&submitted).
		SetError(&submitted).
		Post("/jobs/analyze")
	if err != nil {
		return nil, fmt.Errorf("submit to worker: %w", err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return nil, fmt.Errorf("worker rejected submission (%d): %s", resp.StatusCode(), submitted.Error)
	}
	log.Infof("workerclient: submitted job %s", submitted.JobID)

	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.cancelJob(submitted.JobID)
			return nil, ctx.Err()
		case <-ticker.C:
		}

		job, err := c.getJob(ctx, submitted.JobID)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelJob(submitted.JobID)
				return nil, ctx.Err()
			}
			log.Warnf("workerclient: poll %s: %v", submitted.JobID, err)
		} else if job.Status.Terminal() {
			return settle(job)
		}

		if time.Now().After(deadline) {
			c.cancelJob(submitted.JobID)
			return nil, fmt.Errorf("Worker analysis timed out after %dms.", c.timeout.Milliseconds())
		}
	}
}

func settle(job *jobResponse) (*common.GasReport, error) {
	switch job.Status {
	case common.WorkerStatusCompleted:
		if job.Result == nil {
			return nil, fmt.Errorf("worker job %s completed without a result", job.ID)
		}
		return job.Result, nil
	case common.WorkerStatusCancelled:
		return nil, fmt.Errorf("worker job %s was cancelled", job.ID)
	default:
		if job.Error != "" {
			return nil, fmt.Errorf("%s", job.Error)
		}
		return nil, fmt.Errorf("worker job %s failed", job.ID)
	}
}

func (c *Client) getJob(ctx context.Context, id string) (*jobResponse, error) {
	var job jobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&job).
		Get("/jobs/" + id)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("job not found")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("worker poll failed (%d)", resp.StatusCode())
	}
	return &job, nil
}

// cancelJob is fire-and-forget; the orchestrator has already given up on
// this worker job.
func (c *Client) cancelJob(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.http.R().SetContext(ctx).Post("/jobs/" + id + "/cancel"); err != nil {
		log.Warnf("workerclient: cancel %s: %v", id, err)
	}
}

// Health checks the worker's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/jobs/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("worker unhealthy (%d)", resp.StatusCode())
	}
	return nil
}
