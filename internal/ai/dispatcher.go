package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"multichat/internal/catalog"
	"multichat/internal/logging"
	"multichat/internal/metrics"

	"go.uber.org/zap"
)

// Fan-out bounds for multi-model comparison requests.
const (
	MinCompareModels = 2
	MaxCompareModels = 5
)

// ErrInvalidRequest marks caller mistakes (bad fan-out size, empty
// conversation) that are rejected before any provider call.
type ErrInvalidRequest struct {
	Reason string
}

func (e *ErrInvalidRequest) Error() string {
	return "dispatcher: " + e.Reason
}

// Dispatcher routes conversations to provider adapters, one concurrent
// call per requested model, with per-call timeouts and failure
// isolation between sibling calls.
type Dispatcher struct {
	catalog  *catalog.Catalog
	adapters map[catalog.Provider]Adapter
	timeout  time.Duration
}

// NewDispatcher builds a dispatcher over the given adapters. Providers
// without a configured credential simply have no adapter entry.
func NewDispatcher(c *catalog.Catalog, adapters map[catalog.Provider]Adapter, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Dispatcher{
		catalog:  c,
		adapters: adapters,
		timeout:  timeout,
	}
}

// Invoke sends the conversation to one model. A Go error means the
// caller's request was bad (unknown model, empty conversation); provider
// failures land in the CallResult's Err field instead so fan-out callers
// can treat them uniformly.
func (d *Dispatcher) Invoke(ctx context.Context, modelID string, turns []Turn) (*CallResult, error) {
	if len(turns) == 0 {
		return nil, &ErrInvalidRequest{Reason: "conversation is empty"}
	}

	model, err := d.catalog.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	result := d.call(ctx, model, turns)
	return &result, nil
}

// InvokeMany fans the conversation out to every listed model
// concurrently. The returned slice is positionally aligned with
// modelIDs regardless of completion order, and a failure of one model
// never aborts its siblings. It returns only once every call has
// resolved.
func (d *Dispatcher) InvokeMany(ctx context.Context, modelIDs []string, turns []Turn) ([]CallResult, error) {
	if len(modelIDs) < MinCompareModels || len(modelIDs) > MaxCompareModels {
		return nil, &ErrInvalidRequest{
			Reason: fmt.Sprintf("comparison needs between %d and %d models, got %d",
				MinCompareModels, MaxCompareModels, len(modelIDs)),
		}
	}
	if len(turns) == 0 {
		return nil, &ErrInvalidRequest{Reason: "conversation is empty"}
	}

	// Resolve everything up front: an unknown id is the caller's
	// mistake and rejects the whole request before any provider call.
	models := make([]catalog.ModelDescriptor, len(modelIDs))
	for i, id := range modelIDs {
		m, err := d.catalog.Resolve(id)
		if err != nil {
			return nil, err
		}
		models[i] = m
	}

	results := make([]CallResult, len(models))
	var wg sync.WaitGroup
	for i, m := range models {
		wg.Add(1)
		go func(idx int, model catalog.ModelDescriptor) {
			defer wg.Done()
			results[idx] = d.call(ctx, model, turns)
		}(i, m)
	}
	wg.Wait()

	return results, nil
}

// call runs one adapter invocation under the per-call timeout and folds
// any failure into the CallResult.
func (d *Dispatcher) call(ctx context.Context, model catalog.ModelDescriptor, turns []Turn) CallResult {
	result := CallResult{
		ModelID:   model.ID,
		ModelName: model.DisplayName,
	}

	adapter, ok := d.adapters[model.Provider]
	if !ok {
		result.Err = fmt.Sprintf("provider %s is not configured", model.Provider)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	completion, err := adapter.Complete(callCtx, model, turns)
	result.Duration = time.Since(start)

	if err != nil {
		logging.L().Warn("model call failed",
			zap.String("model", model.ID),
			zap.String("provider", string(model.Provider)),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		result.Err = err.Error()
		metrics.Get().RecordModelCall(model.ID, false, result.Duration, 0, 0)
		return result
	}

	result.Text = completion.Text
	result.InputTokens = completion.InputTokens
	result.OutputTokens = completion.OutputTokens
	result.Unmetered = completion.Unmetered
	metrics.Get().RecordModelCall(model.ID, true, result.Duration, result.InputTokens, result.OutputTokens)
	if completion.Unmetered {
		logging.L().Warn("provider omitted token usage",
			zap.String("model", model.ID),
			zap.String("provider", string(model.Provider)))
	}
	return result
}
