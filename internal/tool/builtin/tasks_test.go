package builtin

import (
	"strings"
	"testing"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

func TestTaskLifecycle(t *testing.T) {
	reg := tool.NewRegistry()
	store := NewTaskStore()
	RegisterTasks(reg, store)
	exec := tool.NewExecutor(reg)

	created := exec.Execute(tool.Call{Name: "workspace_task_create", Params: map[string]any{"title": "write docs"}}, tool.Context{})
	if !created.OK {
		t.Fatalf("create failed: %+v", created)
	}
	id := strings.TrimPrefix(created.Content, "created ")

	got := exec.Execute(tool.Call{Name: "workspace_task_get", Params: map[string]any{"id": id}}, tool.Context{})
	if !got.OK || !strings.Contains(got.Content, "write docs") {
		t.Fatalf("get failed: %+v", got)
	}

	status := exec.Execute(tool.Call{Name: "workspace_task_set_status", Params: map[string]any{"id": id, "status": "done"}}, tool.Context{})
	if !status.OK {
		t.Fatalf("set_status failed: %+v", status)
	}

	listed := exec.Execute(tool.Call{Name: "workspace_tasks_list", Params: map[string]any{}}, tool.Context{})
	if !strings.Contains(listed.Content, "done") {
		t.Errorf("expected list to reflect updated status, got %q", listed.Content)
	}

	deleted := exec.Execute(tool.Call{Name: "workspace_task_delete", Params: map[string]any{"id": id}}, tool.Context{})
	if !deleted.OK {
		t.Fatalf("delete failed: %+v", deleted)
	}

	afterDelete := exec.Execute(tool.Call{Name: "workspace_task_get", Params: map[string]any{"id": id}}, tool.Context{})
	if afterDelete.OK {
		t.Errorf("expected get after delete to fail, got %+v", afterDelete)
	}
}

func TestTaskGetMissingFails(t *testing.T) {
	reg := tool.NewRegistry()
	RegisterTasks(reg, NewTaskStore())
	exec := tool.NewExecutor(reg)

	res := exec.Execute(tool.Call{Name: "workspace_task_get", Params: map[string]any{"id": "nope"}}, tool.Context{})
	if res.OK {
		t.Errorf("expected missing task lookup to fail, got %+v", res)
	}
}
