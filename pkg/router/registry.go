package router

import "context"

// LocalHandler executes a workflow action in-process instead of handing it to
// the external engine. Handlers run synchronously and return the final output.
type LocalHandler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Registry maps workflowID/action pairs to local handlers. The router checks
// it before resolving a webhook URL.
type Registry struct {
	handlers map[string]LocalHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]LocalHandler),
	}
}

func registryKey(workflowID, action string) string {
	return workflowID + "/" + action
}

// Register binds a handler to a workflow action. An empty action matches any
// action for that workflow.
func (r *Registry) Register(workflowID, action string, handler LocalHandler) {
	r.handlers[registryKey(workflowID, action)] = handler
}

// Lookup returns the handler for a workflow action, trying the exact pair
// first and the workflow-wide binding second.
func (r *Registry) Lookup(workflowID, action string) (LocalHandler, bool) {
	if handler, ok := r.handlers[registryKey(workflowID, action)]; ok {
		return handler, true
	}

	handler, ok := r.handlers[registryKey(workflowID, "")]

	return handler, ok
}
