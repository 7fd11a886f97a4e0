package tool

import (
	"encoding/json"
	"testing"
)

func TestResolveExactThenLowerThenAlias(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "shell", Handler: Simple(func(Call, Context) (string, error) { return "ok", nil })})
	r.Alias("bash", "shell")

	if _, ok := r.Resolve("shell"); !ok {
		t.Error("expected exact match")
	}
	if _, ok := r.Resolve("SHELL"); !ok {
		t.Error("expected case-insensitive match")
	}
	if _, ok := r.Resolve("bash"); !ok {
		t.Error("expected alias match")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("expected no match for unregistered name")
	}
}

func TestNormalizeArgumentsStructuredObject(t *testing.T) {
	got := NormalizeArguments(json.RawMessage(`{"path":"a.txt"}`))
	if got["path"] != "a.txt" {
		t.Errorf("got %v", got)
	}
}

func TestNormalizeArgumentsStringifiedJSON(t *testing.T) {
	got := NormalizeArguments(json.RawMessage(`"{\"path\":\"a.txt\"}"`))
	if got["path"] != "a.txt" {
		t.Errorf("got %v", got)
	}
}

func TestNormalizeArgumentsInvalidJSON(t *testing.T) {
	got := NormalizeArguments(json.RawMessage(`not json`))
	if len(got) != 0 {
		t.Errorf("expected empty mapping for invalid JSON, got %v", got)
	}
}

func TestExecuteUnregisteredTool(t *testing.T) {
	e := NewExecutor(NewRegistry())
	res := e.Execute(Call{Name: "nope"}, Context{})
	if res.OK || res.Status != 404 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "boom", Handler: Simple(func(Call, Context) (string, error) {
		return "", errBoom
	})})
	e := NewExecutor(r)
	res := e.Execute(Call{Name: "boom"}, Context{})
	if res.OK || res.Status != 500 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestExecuteHandlerPanicRecovered(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "panics", Handler: func(Call, Context) (Result, error) {
		panic("boom")
	}})
	e := NewExecutor(r)
	res := e.Execute(Call{Name: "panics"}, Context{})
	if res.OK || res.Status != 500 {
		t.Errorf("expected panic to be recovered as a 500 result, got %+v", res)
	}
}

func TestExecuteStringCoercion(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{Name: "echo", Handler: Simple(func(c Call, _ Context) (string, error) {
		return "hello", nil
	})})
	e := NewExecutor(r)
	res := e.Execute(Call{Name: "echo"}, Context{})
	if !res.OK || res.Status != 200 || res.Content != "hello" {
		t.Errorf("unexpected result: %+v", res)
	}
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

var errBoom = simpleErr("boom")
