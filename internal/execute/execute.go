// Package execute posts tool inputs to a tool's API endpoint and maps the
// JSON answer onto the tool's outputs.
package execute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"toolcatalog/internal/model"
)

const maxResponseBytes = 1 << 20

var ErrNoEndpoint = errors.New("tool has no api endpoint")

// State is the outcome of the latest run.
type State struct {
	Tool     int64
	Response map[string]any
	Err      error
}

// Executor runs one tool call at a time. A run requested while another is in
// flight is dropped.
type Executor struct {
	client *http.Client
	logger *log.Logger
	gate   *semaphore.Weighted
	wg     sync.WaitGroup

	mu    sync.RWMutex
	state State
}

func New(client *http.Client, logger *log.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{client: client, logger: logger, gate: semaphore.NewWeighted(1)}
}

// Run starts a call in the background. It reports false when the call was
// dropped because another is still running.
func (e *Executor) Run(ctx context.Context, tool model.Tool, inputs map[string]any) bool {
	if !e.gate.TryAcquire(1) {
		e.logger.Printf("execute: run of tool %d dropped, another run is in flight", tool.ID)
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.gate.Release(1)
		response, err := Call(ctx, e.client, tool, inputs)
		e.mu.Lock()
		if err != nil {
			// keep the previous response, like any failed mutation
			e.state = State{Tool: tool.ID, Response: e.state.Response, Err: err}
		} else {
			e.state = State{Tool: tool.ID, Response: response}
		}
		e.mu.Unlock()
	}()
	return true
}

// Wait blocks until the running call, if any, has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Call posts inputs as a JSON object to tool.APIEndpoint and decodes the
// JSON object it answers with.
func Call(ctx context.Context, client *http.Client, tool model.Tool, inputs map[string]any) (map[string]any, error) {
	if tool.APIEndpoint == "" {
		return nil, fmt.Errorf("tool %d: %w", tool.ID, ErrNoEndpoint)
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tool.APIEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tool %d: %w", tool.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read tool %d response: %w", tool.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tool %d answered %d: %s", tool.ID, resp.StatusCode, bytes.TrimSpace(body))
	}
	var response map[string]any
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode tool %d response: %w", tool.ID, err)
	}
	return response, nil
}

// Outputs fills Value of each output from the response field with the same
// name. Outputs without a matching field are returned unchanged.
func Outputs(response map[string]any, outputs []model.ToolOutput) []model.ToolOutput {
	out := make([]model.ToolOutput, len(outputs))
	for i, output := range outputs {
		out[i] = output
		value, ok := response[output.Name]
		if !ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		out[i].Value = raw
	}
	return out
}

// InputValues converts raw form values to the JSON types their fields
// declare. Number fields must parse as numbers.
func InputValues(inputs []model.ToolInput, raw map[string]string) (map[string]any, error) {
	values := make(map[string]any, len(inputs))
	for _, input := range inputs {
		value, ok := raw[input.Name]
		if !ok {
			continue
		}
		switch input.FieldType {
		case model.InputNumber:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return nil, fmt.Errorf("input %s: %q is not a number", input.Name, value)
			}
			values[input.Name] = json.Number(value)
		default:
			values[input.Name] = value
		}
	}
	return values, nil
}
