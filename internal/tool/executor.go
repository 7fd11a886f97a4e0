package tool

import (
	"fmt"
)

// SimpleHandler is the common builtin-tool shape: return textual content or
// an error. Wrap with Simple() to register it as a Handler; the wrapper
// performs the string -> Result coercion spec §4.3 describes.
type SimpleHandler func(call Call, tc Context) (string, error)

// Simple adapts a SimpleHandler into a Handler, applying spec §4.3's
// coercion rule (string result -> {ok:true,status:200,content}). Handler
// errors are returned unchanged; Executor.Execute turns them into a 500
// tool_execution_failed result, so a handler error never aborts the agent
// loop.
func Simple(h SimpleHandler) Handler {
	return func(call Call, tc Context) (Result, error) {
		out, err := h(call, tc)
		if err != nil {
			return Result{}, err
		}
		return coerceResult(out), nil
	}
}

// Executor resolves and invokes tool calls against a Registry (spec §4.3
// "Execution").
type Executor struct {
	Registry *Registry
}

func NewExecutor(reg *Registry) *Executor {
	return &Executor{Registry: reg}
}

// Execute resolves call.Name via alias resolution and invokes the handler.
// Unregistered tools return a 404 result, never an exception; handler
// panics/errors become a 500 with error kind tool_execution_failed. The
// agent loop never aborts because of this call (spec §4.3, §7).
func (e *Executor) Execute(call Call, tc Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				OK:      false,
				Status:  500,
				Content: fmt.Sprintf(`{"error":"tool_execution_failed","tool":%q,"message":%q}`, call.Name, fmt.Sprint(r)),
			}
		}
	}()

	t, ok := e.Registry.Resolve(call.Name)
	if !ok {
		return Result{
			OK:      false,
			Status:  404,
			Content: fmt.Sprintf(`{"error":"tool_not_found","tool":%q}`, call.Name),
		}
	}

	res, err := t.Handler(call, tc)
	if err != nil {
		return Result{
			OK:      false,
			Status:  500,
			Content: fmt.Sprintf(`{"error":"tool_execution_failed","tool":%q,"message":%q}`, call.Name, err.Error()),
			Error:   err,
		}
	}
	return res
}
