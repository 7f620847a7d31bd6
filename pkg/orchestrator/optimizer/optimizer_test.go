// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gweizero/engine/pkg/common"
	"github.com/gweizero/engine/pkg/config"
)

const optimizedDemo = `contract Demo {
    uint256 public total;
    function seedValues(uint256[] calldata values) external {
        uint256 len = values.length;
        uint256 sum = total;
        for (uint256 i = 0; i < len; ++i) {
            sum += values[i];
        }
        total = sum;
    }
}`

// fakeProvider is an OpenAI-compatible endpoint scripted per stage. Stages
// are recognized by their system prompt.
type fakeProvider struct {
	mu         sync.Mutex
	draftCalls int
	draft      func(call int) string
	repair     string
	generate   string
	verify     string
	failAll    bool
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.failAll {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"message": "invalid request"}}`))
			return
		}

		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		system := req.Messages[0].Content

		var answer string
		switch {
		case strings.Contains(system, "gas optimization expert"):
			f.mu.Lock()
			f.draftCalls++
			answer = f.draft(f.draftCalls)
			f.mu.Unlock()
		case strings.Contains(system, "fix malformed JSON"):
			answer = f.repair
		case strings.Contains(system, "Apply the given edit plan"):
			answer = f.generate
		case strings.Contains(system, "review Solidity gas optimizations"):
			answer = f.verify
		default:
			answer = "unexpected stage"
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": answer}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func testAIConfig(baseURL string) config.AIConfig {
	return config.AIConfig{
		MaxOptimizerCycles: 2,
		ProviderRetries:    1,
		RetryBaseDelay:     time.Millisecond,
		Providers: []config.ProviderConfig{
			{Name: "test", BaseURL: baseURL, APIKey: "key", Models: []string{"model-a"}},
		},
	}
}

func baselineProfile() common.GasProfile {
	return common.GasProfile{
		DeploymentGas: 500000,
		Functions: map[string]common.FunctionGasEntry{
			"seedValues(uint256[])": common.MeasuredEntry(91000, common.MutabilityNonpayable),
		},
	}
}

func TestOptimizeHappyPath(t *testing.T) {
	provider := &fakeProvider{
		draft:    func(int) string { return validDraft },
		generate: "```solidity\n" + optimizedDemo + "\n```",
		verify:   `{"approved": true, "summary": "safe length caching", "riskFlags": []}`,
	}
	server := httptest.NewServer(provider.handler())
	defer server.Close()

	var messages []string
	opt := New(testAIConfig(server.URL))
	result, err := opt.Optimize(context.Background(), "contract Demo {}", baselineProfile(),
		func(m string) { messages = append(messages, m) })
	require.NoError(t, err)

	assert.Equal(t, optimizedDemo, result.OptimizedSource)
	assert.Equal(t, "Cache array length", result.Optimizations[0].Name)
	assert.Equal(t, "test", result.Meta.Provider)
	assert.Equal(t, "model-a", result.Meta.Model)
	assert.Zero(t, result.Meta.SchemaRepairAttempts)
	assert.Equal(t, "safe length caching", result.Meta.VerifierVerdict)

	assert.Contains(t, messages, "Calling AI model…")
	assert.Contains(t, messages, "Validating JSON…")
	assert.Contains(t, messages, "Verifying optimization…")
	assert.NotContains(t, messages, "Calling AI to repair…")
}

func TestOptimizeSchemaRepair(t *testing.T) {
	provider := &fakeProvider{
		draft:    func(int) string { return `{"optimizations": "oops"}` },
		repair:   validDraft,
		generate: optimizedDemo,
		verify:   `{"approved": true, "summary": "ok", "riskFlags": []}`,
	}
	server := httptest.NewServer(provider.handler())
	defer server.Close()

	var messages []string
	opt := New(testAIConfig(server.URL))
	result, err := opt.Optimize(context.Background(), "contract Demo {}", baselineProfile(),
		func(m string) { messages = append(messages, m) })
	require.NoError(t, err)

	assert.Equal(t, 1, result.Meta.SchemaRepairAttempts)
	assert.Equal(t, optimizedDemo, result.OptimizedSource)
	assert.Contains(t, messages, "Calling AI to repair…")
}

func TestOptimizeVerifierRejectionRetriesNextCycle(t *testing.T) {
	verdicts := []string{
		`{"approved": false, "summary": "breaks event emission", "riskFlags": ["behavior"]}`,
		`{"approved": true, "summary": "second plan is fine", "riskFlags": []}`,
	}
	var verifyCalls int
	provider := &fakeProvider{
		draft:    func(int) string { return validDraft },
		generate: optimizedDemo,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		_ = json.Unmarshal(body, &req)
		if strings.Contains(req.Messages[0].Content, "review Solidity gas optimizations") {
			answer := verdicts[verifyCalls]
			verifyCalls++
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{{"message": map[string]string{"content": answer}}},
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		provider.handler()(w, r)
	}))
	defer server.Close()

	opt := New(testAIConfig(server.URL))
	result, err := opt.Optimize(context.Background(), "contract Demo {}", baselineProfile(), func(string) {})
	require.NoError(t, err)

	assert.Equal(t, 2, verifyCalls)
	assert.Equal(t, "second plan is fine", result.Meta.VerifierVerdict)
	// The first cycle's rejection is kept as a warning.
	require.NotEmpty(t, result.Meta.Warnings)
	assert.Contains(t, result.Meta.Warnings[0], "breaks event emission")
}

func TestOptimizeFallsBackWhenProvidersFail(t *testing.T) {
	provider := &fakeProvider{failAll: true}
	server := httptest.NewServer(provider.handler())
	defer server.Close()

	opt := New(testAIConfig(server.URL))
	source := "contract Demo { uint256 public total; }"
	result, err := opt.Optimize(context.Background(), source, baselineProfile(), func(string) {})
	require.NoError(t, err)

	assert.Equal(t, source, result.OptimizedSource)
	assert.Empty(t, result.Optimizations)
	assert.True(t, strings.HasPrefix(result.TotalEstimatedSaving, "Unavailable (AI failed:"))
	assert.NotEmpty(t, result.Meta.Warnings)
}

func TestOptimizeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := New(testAIConfig("http://127.0.0.1:0"))
	_, err := opt.Optimize(ctx, "contract Demo {}", baselineProfile(), func(string) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetriableClassification(t *testing.T) {
	assert.True(t, retriable(errors.New("provider returned 429: slow down")))
	assert.True(t, retriable(errors.New("provider returned 503: overloaded")))
	assert.True(t, retriable(errors.New("context deadline exceeded (Client.Timeout)")))
	assert.True(t, retriable(errors.New("The service is temporarily unavailable")))
	assert.True(t, retriable(errors.New("read tcp: ECONNRESET")))
	assert.False(t, retriable(errors.New("provider returned 401: bad api key")))
	assert.False(t, retriable(errors.New("invalid request")))
}

func TestCompleteExhaustsPlanInOrder(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls = append(calls, req.Model)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, `{"error": {"message": "boom"}}`)
	}))
	defer server.Close()

	cfg := config.AIConfig{
		ProviderRetries: 1,
		RetryBaseDelay:  time.Millisecond,
		Providers: []config.ProviderConfig{
			{Name: "primary", BaseURL: server.URL, APIKey: "k", Models: []string{"m1", "m2"}},
			{Name: "secondary", BaseURL: server.URL, APIKey: "k", Models: []string{"m3"}},
		},
	}
	client := newProviderClient(cfg)
	_, err := client.complete(context.Background(), "system", "user", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "All providers/models failed")

	// 500 is retriable: every model gets retries+1 attempts, in plan order.
	assert.Equal(t, []string{"m1", "m1", "m2", "m2", "m3", "m3"}, calls)
}
