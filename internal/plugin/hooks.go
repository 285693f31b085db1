package plugin

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Hook binds a committed sign to a plugin action. An empty Sign matches
// every sign.
type Hook struct {
	Sign          string          `json:"sign"`
	Plugin        string          `json:"plugin"`
	Action        string          `json:"action"`
	MinConfidence float64         `json:"min_confidence"`
	Config        json.RawMessage `json:"config,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// Matches reports whether the hook applies to a committed sign.
func (h Hook) Matches(sign string, confidence float64) bool {
	return (h.Sign == "" || h.Sign == sign) && confidence >= h.MinConfidence
}

func (h Hook) describe() string {
	sign := h.Sign
	if sign == "" {
		sign = "*"
	}
	return sign + " -> " + h.Plugin + "/" + h.Action
}

// Result is the outcome of one hook run.
type Result struct {
	Hook     Hook
	Sign     string
	Response *Response
	Err      error
}

// Dispatcher runs the hooks matching each committed sign. Hooks run on their
// own goroutines so a slow plugin never stalls recognition.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	hooks    []Hook

	// OnResult, if set, is called after every hook run.
	OnResult func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over discovered plugins.
func NewDispatcher(manager *Manager, executor *Executor, hooks []Hook) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		hooks:    hooks,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Hooks returns the configured hooks.
func (d *Dispatcher) Hooks() []Hook {
	return d.hooks
}

// Fire starts every hook matching sign and returns how many were started.
func (d *Dispatcher) Fire(sign string, confidence float64) int {
	if d.ctx.Err() != nil {
		return 0
	}

	started := 0
	for _, h := range d.hooks {
		if !h.Matches(sign, confidence) {
			continue
		}

		plug, err := d.manager.Get(h.Plugin)
		if err != nil {
			log.Printf("Hook for %q: plugin %s: %v", sign, h.Plugin, err)
			continue
		}
		if !plug.SupportsAction(h.Action) {
			log.Printf("Hook for %q: plugin %s has no action %s", sign, h.Plugin, h.Action)
			continue
		}

		req := &Request{
			Action:     h.Action,
			Sign:       sign,
			Confidence: confidence,
			Config:     h.Config,
			Params:     h.Params,
		}

		d.wg.Add(1)
		started++
		go d.run(h, plug, req)
	}
	return started
}

func (d *Dispatcher) run(h Hook, plug *Plugin, req *Request) {
	defer d.wg.Done()

	resp, err := d.executor.Execute(d.ctx, plug, req)
	switch {
	case err != nil:
		log.Printf("Plugin %s/%s failed for %q: %v", h.Plugin, h.Action, req.Sign, err)
	case !resp.Success:
		log.Printf("Plugin %s/%s reported error for %q: %s", h.Plugin, h.Action, req.Sign, resp.Error)
	}

	if d.OnResult != nil {
		d.OnResult(Result{Hook: h, Sign: req.Sign, Response: resp, Err: err})
	}
}

// Wait blocks until all started hooks have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels running hooks and waits for them to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
