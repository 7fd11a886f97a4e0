package builtin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// TaskRecord is an in-memory work item tracked across a session. Durable
// task storage is a §4.7 collaborator table outside this specification's
// core scope; the loop only needs create/read/update/delete semantics
// during a run.
type TaskRecord struct {
	ID     string
	Title  string
	Status string
	Notes  string
}

// TaskStore is a process-wide, mutex-guarded task board, mirroring the
// singleton-registry idiom used throughout internal/tool and internal/mcp.
type TaskStore struct {
	mu     sync.Mutex
	tasks  map[string]*TaskRecord
	nextID int
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*TaskRecord)}
}

func (s *TaskStore) create(title string) *TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &TaskRecord{ID: fmt.Sprintf("task-%d", s.nextID), Title: title, Status: "open"}
	s.tasks[t.ID] = t
	return t
}

func (s *TaskStore) get(id string) (*TaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *TaskStore) list() []*TaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TaskRecord, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *TaskStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}

// RegisterTasks wires the workspace_task_* family (spec §4.3 "tasks"
// category).
func RegisterTasks(reg *tool.Registry, store *TaskStore) {
	reg.Register(&tool.Tool{Name: "workspace_task_create", Category: "tasks", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		title, _ := c.Params["title"].(string)
		if title == "" {
			return "", fmt.Errorf("title is required")
		}
		t := store.create(title)
		return fmt.Sprintf("created %s", t.ID), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_task_get", Category: "tasks", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		id, _ := c.Params["id"].(string)
		t, ok := store.get(id)
		if !ok {
			return "", fmt.Errorf("task %s not found", id)
		}
		return fmt.Sprintf("%s [%s] %s (%s)", t.ID, t.Status, t.Title, t.Notes), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_task_update", Category: "tasks", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		id, _ := c.Params["id"].(string)
		t, ok := store.get(id)
		if !ok {
			return "", fmt.Errorf("task %s not found", id)
		}
		if title, ok := c.Params["title"].(string); ok && title != "" {
			t.Title = title
		}
		if notes, ok := c.Params["notes"].(string); ok {
			t.Notes = notes
		}
		return fmt.Sprintf("updated %s", t.ID), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_task_set_status", Category: "tasks", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		id, _ := c.Params["id"].(string)
		status, _ := c.Params["status"].(string)
		t, ok := store.get(id)
		if !ok {
			return "", fmt.Errorf("task %s not found", id)
		}
		t.Status = status
		return fmt.Sprintf("%s -> %s", t.ID, status), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_task_delete", Category: "tasks", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		id, _ := c.Params["id"].(string)
		if !store.delete(id) {
			return "", fmt.Errorf("task %s not found", id)
		}
		return fmt.Sprintf("deleted %s", id), nil
	})})

	reg.Register(&tool.Tool{Name: "workspace_tasks_list", Category: "tasks", Handler: tool.Simple(func(c tool.Call, _ tool.Context) (string, error) {
		tasks := store.list()
		if len(tasks) == 0 {
			return "no tasks", nil
		}
		out := ""
		for _, t := range tasks {
			out += fmt.Sprintf("%s [%s] %s\n", t.ID, t.Status, t.Title)
		}
		return out, nil
	})})
}
