// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gweizero/engine/pkg/config"
	"github.com/gweizero/engine/pkg/logger/log"
	"github.com/gweizero/engine/pkg/metrics"
)

// jitterCeiling caps the random component added to each backoff delay.
const jitterCeiling = 150 * time.Millisecond

// retriableMarkers classify transient provider failures. Anything else
// skips straight to the next model.
var retriableMarkers = []string{
	"429", "500", "502", "503", "504",
	"timeout", "temporar", "rate", "fetch failed", "econnreset",
}

func retriable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range retriableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// providerClient walks the configured provider/model fallback plan for each
// completion: every model gets its retry budget before the next one is
// tried.
type providerClient struct {
	providers []config.ProviderConfig
	retries   int
	baseDelay time.Duration
	clients   map[string]*resty.Client
}

func newProviderClient(cfg config.AIConfig) *providerClient {
	clients := make(map[string]*resty.Client, len(cfg.Providers))
	for _, p := range cfg.Providers {
		clients[p.Name] = resty.New().
			SetBaseURL(p.BaseURL).
			SetAuthToken(p.APIKey).
			SetTimeout(120 * time.Second).
			SetHeader("Content-Type", "application/json")
	}
	return &providerClient{
		providers: cfg.Providers,
		retries:   cfg.ProviderRetries,
		baseDelay: cfg.RetryBaseDelay,
		clients:   clients,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// completion is one successful provider answer plus how it was obtained.
type completion struct {
	Text     string
	Provider string
	Model    string
	Retries  int
}

// complete runs the fallback plan: provider order, then model order, then
// up to retries+1 attempts per model for retriable errors.
func (c *providerClient) complete(ctx context.Context, system, user string, jsonMode bool) (*completion, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no AI providers configured")
	}

	var attempts []string
	totalRetries := 0
	for _, provider := range c.providers {
		for _, model := range provider.Models {
			for retry := 0; retry <= c.retries; retry++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				text, err := c.call(ctx, provider, model, system, user, jsonMode)
				if err == nil {
					metrics.AIProviderCallsTotal.WithLabelValues(provider.Name, model, "success").Inc()
					return &completion{
						Text:     text,
						Provider: provider.Name,
						Model:    model,
						Retries:  totalRetries,
					}, nil
				}
				metrics.AIProviderCallsTotal.WithLabelValues(provider.Name, model, "error").Inc()
				attempts = append(attempts, fmt.Sprintf("%s/%s: %v", provider.Name, model, err))
				log.Warnf("optimizer: %s/%s attempt %d: %v", provider.Name, model, retry+1, err)
				if !retriable(err) {
					break
				}
				totalRetries++
				if retry < c.retries {
					if err := sleep(ctx, backoff(c.baseDelay, retry)); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return nil, fmt.Errorf("All providers/models failed: %s", strings.Join(attempts, "; "))
}

func (c *providerClient) call(ctx context.Context, provider config.ProviderConfig, model, system, user string, jsonMode bool) (string, error) {
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out chatResponse
	resp, err := c.clients[provider.Name].R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		msg := out.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("provider returned an empty completion")
	}
	return out.Choices[0].Message.Content, nil
}

func backoff(base time.Duration, retry int) time.Duration {
	return base*(1<<retry) + time.Duration(rand.Int63n(int64(jitterCeiling)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
