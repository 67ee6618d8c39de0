package dispatch

import "github.com/loadshard/parallelogram/internal/ops"

// Client is the user-facing entry point for running a distributed
// map/filter/reduce operation. It pairs an Engine (discovery + dispatch)
// with the Registry both it and every worker resolve FuncTokens against.
type Client struct {
	engine   *Engine
	registry *ops.Registry
}

// NewClient builds a Client around engine, resolving FuncTokens locally
// (for the no-worker fallback path) via registry.
func NewClient(engine *Engine, registry *ops.Registry) *Client {
	return &Client{engine: engine, registry: registry}
}

// Map applies the named, registered map handler to every element of data,
// distributing the work across discovered workers when any answer
// discovery, and running locally otherwise.
func (c *Client) Map(name string, args []any, data []any) ([]any, error) {
	token := ops.FuncToken{Op: ops.Map, Name: name, Args: args}
	fn, err := c.registry.Resolve(token)
	if err != nil {
		return nil, err
	}
	return c.engine.Run(ops.Map, token, fn, data)
}

// Filter keeps the subsequence of data for which the named, registered
// filter handler returns true.
func (c *Client) Filter(name string, args []any, data []any) ([]any, error) {
	token := ops.FuncToken{Op: ops.Filter, Name: name, Args: args}
	fn, err := c.registry.Resolve(token)
	if err != nil {
		return nil, err
	}
	return c.engine.Run(ops.Filter, token, fn, data)
}

// Reduce folds data down to a single value using the named, registered
// reduce handler. A round only folds within each chunk; Reduce then
// recursively re-runs rounds over the partial results until one value
// remains, so the final fold happens the same way regardless of how many
// workers answered discovery.
func (c *Client) Reduce(name string, args []any, data []any) (any, error) {
	if len(data) == 0 {
		return nil, ops.ErrEmptyInput
	}
	token := ops.FuncToken{Op: ops.Reduce, Name: name, Args: args}
	fn, err := c.registry.Resolve(token)
	if err != nil {
		return nil, err
	}

	level := data
	for len(level) > 1 {
		partials, err := c.engine.Run(ops.Reduce, token, fn, level)
		if err != nil {
			return nil, err
		}
		if len(partials) == len(level) {
			// Every chunk was a single element; nothing folded this
			// round, so fold the whole level locally to terminate.
			return ops.LocalReduce(fn.(ops.ReduceFunc), level)
		}
		level = partials
	}
	return level[0], nil
}
