package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/memstore"
	"github.com/user/taskdesk-go/tasks"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newService() *tasks.Service {
	return tasks.NewService(memstore.NewTaskStore())
}

func TestCreate(t *testing.T) {
	svc := newService()
	owner := uuid.New()

	tests := []struct {
		name      string
		req       tasks.CreateTaskRequest
		wantTitle string
		wantDesc  *string
		wantField string
	}{
		{name: "trims title", req: tasks.CreateTaskRequest{Title: "  Buy milk "}, wantTitle: "Buy milk"},
		{name: "trims description", req: tasks.CreateTaskRequest{Title: "a", Description: strPtr(" 2 liters ")}, wantTitle: "a", wantDesc: strPtr("2 liters")},
		{name: "blank description becomes absent", req: tasks.CreateTaskRequest{Title: "a", Description: strPtr("   ")}, wantTitle: "a"},
		{name: "empty title", req: tasks.CreateTaskRequest{Title: ""}, wantField: "title"},
		{name: "whitespace title", req: tasks.CreateTaskRequest{Title: " \t "}, wantField: "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := svc.Create(context.Background(), owner, tt.req)
			if tt.wantField != "" {
				if !apperror.IsValidationError(err) {
					t.Fatalf("error = %v, want validation error", err)
				}
				appErr, _ := apperror.FromError(err)
				if _, ok := appErr.Fields[tt.wantField]; !ok {
					t.Fatalf("fields = %v, want %q", appErr.Fields, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if task.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", task.Title, tt.wantTitle)
			}
			if (task.Description == nil) != (tt.wantDesc == nil) ||
				(task.Description != nil && *task.Description != *tt.wantDesc) {
				t.Errorf("Description = %v, want %v", task.Description, tt.wantDesc)
			}
			if task.UserID != owner {
				t.Errorf("UserID = %v, want %v", task.UserID, owner)
			}
			if task.IsCompleted {
				t.Error("new task is completed")
			}
		})
	}
}

func TestCreateIgnoresClientOwner(t *testing.T) {
	svc := newService()
	owner := uuid.New()

	var req tasks.CreateTaskRequest
	body := `{"title":"mine","userId":"` + uuid.NewString() + `","user_id":"` + uuid.NewString() + `"}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatal(err)
	}
	task, err := svc.Create(context.Background(), owner, req)
	if err != nil {
		t.Fatal(err)
	}
	if task.UserID != owner {
		t.Fatalf("UserID = %v, want session user %v", task.UserID, owner)
	}
}

func decodeUpdate(t *testing.T, body string) tasks.UpdateTaskRequest {
	t.Helper()
	var req tasks.UpdateTaskRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return req
}

func TestUpdatePartial(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	tests := []struct {
		name      string
		body      string
		wantTitle string
		wantDesc  *string
		wantDone  bool
	}{
		{name: "only completion", body: `{"isCompleted":true}`, wantTitle: "Buy milk", wantDesc: strPtr("2 liters"), wantDone: true},
		{name: "only title", body: `{"title":" Buy oat milk "}`, wantTitle: "Buy oat milk", wantDesc: strPtr("2 liters")},
		{name: "explicit null clears description", body: `{"description":null}`, wantTitle: "Buy milk"},
		{name: "blank description clears it", body: `{"description":"  "}`, wantTitle: "Buy milk"},
		{name: "new description", body: `{"description":"3 liters"}`, wantTitle: "Buy milk", wantDesc: strPtr("3 liters")},
		{name: "empty body", body: `{}`, wantTitle: "Buy milk", wantDesc: strPtr("2 liters")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			created, err := svc.Create(ctx, owner, tasks.CreateTaskRequest{Title: "Buy milk", Description: strPtr("2 liters")})
			if err != nil {
				t.Fatal(err)
			}

			got, err := svc.Update(ctx, owner, created.ID, decodeUpdate(t, tt.body))
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if (got.Description == nil) != (tt.wantDesc == nil) ||
				(got.Description != nil && *got.Description != *tt.wantDesc) {
				t.Errorf("Description = %v, want %v", got.Description, tt.wantDesc)
			}
			if got.IsCompleted != tt.wantDone {
				t.Errorf("IsCompleted = %v, want %v", got.IsCompleted, tt.wantDone)
			}
		})
	}
}

func TestUpdateCompletionToggles(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	owner := uuid.New()
	task, _ := svc.Create(ctx, owner, tasks.CreateTaskRequest{Title: "toggle"})

	for _, done := range []bool{true, false, true} {
		got, err := svc.Update(ctx, owner, task.ID, tasks.UpdateTaskRequest{IsCompleted: boolPtr(done)})
		if err != nil {
			t.Fatal(err)
		}
		if got.IsCompleted != done {
			t.Fatalf("IsCompleted = %v, want %v", got.IsCompleted, done)
		}
	}
}

func TestUpdateRejectsEmptyTitle(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	owner := uuid.New()
	task, _ := svc.Create(ctx, owner, tasks.CreateTaskRequest{Title: "keep"})

	_, err := svc.Update(ctx, owner, task.ID, tasks.UpdateTaskRequest{Title: strPtr("   ")})
	if !apperror.IsValidationError(err) {
		t.Fatalf("error = %v, want validation error", err)
	}
	got, _ := svc.Get(ctx, owner, task.ID)
	if got.Title != "keep" {
		t.Fatalf("Title = %q after rejected update", got.Title)
	}
}

func TestOwnershipGate(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	alice, mallory := uuid.New(), uuid.New()
	task, _ := svc.Create(ctx, alice, tasks.CreateTaskRequest{Title: "private"})

	if _, err := svc.Get(ctx, mallory, task.ID); !apperror.IsNotFound(err) {
		t.Errorf("Get by other user error = %v, want not found", err)
	}
	if _, err := svc.Update(ctx, mallory, task.ID, tasks.UpdateTaskRequest{IsCompleted: boolPtr(true)}); !apperror.IsNotFound(err) {
		t.Errorf("Update by other user error = %v, want not found", err)
	}
	// Validation runs after the gate, so a bad body does not reveal the task exists.
	if _, err := svc.Update(ctx, mallory, task.ID, tasks.UpdateTaskRequest{Title: strPtr("")}); !apperror.IsNotFound(err) {
		t.Errorf("invalid Update by other user error = %v, want not found", err)
	}
	if err := svc.Delete(ctx, mallory, task.ID); !apperror.IsNotFound(err) {
		t.Errorf("Delete by other user error = %v, want not found", err)
	}
	if _, err := svc.Get(ctx, alice, uuid.New()); !apperror.IsNotFound(err) {
		t.Errorf("Get missing task error = %v, want not found", err)
	}

	got, err := svc.Get(ctx, alice, task.ID)
	if err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if got.IsCompleted {
		t.Fatal("foreign update took effect")
	}
	if len(svc.List(ctx, mallory)) != 0 {
		t.Fatal("other user's list includes the task")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	owner := uuid.New()
	task, _ := svc.Create(ctx, owner, tasks.CreateTaskRequest{Title: "gone"})

	if err := svc.Delete(ctx, owner, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, owner, task.ID); !apperror.IsNotFound(err) {
		t.Fatalf("second Delete error = %v, want not found", err)
	}
	if n := len(svc.List(ctx, owner)); n != 0 {
		t.Fatalf("List returned %d tasks after delete", n)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	owner := uuid.New()
	for _, title := range []string{"one", "two", "three"} {
		if _, err := svc.Create(ctx, owner, tasks.CreateTaskRequest{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	list := svc.List(ctx, owner)
	want := []string{"three", "two", "one"}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i, task := range list {
		if task.Title != want[i] {
			t.Fatalf("list[%d] = %q, want %q", i, task.Title, want[i])
		}
	}
}

type brokenRepo struct {
	tasks.Repository
}

func (brokenRepo) ListByUser(context.Context, uuid.UUID) ([]tasks.Task, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepo) Get(context.Context, uuid.UUID, uuid.UUID) (*tasks.Task, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailure(t *testing.T) {
	ctx := context.Background()
	svc := tasks.NewService(brokenRepo{})
	owner := uuid.New()

	list := svc.List(ctx, owner)
	if list == nil || len(list) != 0 {
		t.Fatalf("List = %#v, want empty non-nil slice", list)
	}
	if _, err := svc.Get(ctx, owner, uuid.New()); !apperror.IsDatabaseError(err) {
		t.Fatalf("Get error = %v, want database error", err)
	}
}

func TestOptionalStringPresence(t *testing.T) {
	tests := []struct {
		body    string
		wantSet bool
		wantNil bool
	}{
		{body: `{}`, wantSet: false, wantNil: true},
		{body: `{"description":null}`, wantSet: true, wantNil: true},
		{body: `{"description":"x"}`, wantSet: true, wantNil: false},
	}
	for _, tt := range tests {
		req := decodeUpdate(t, tt.body)
		if req.Description.Set != tt.wantSet || (req.Description.Value == nil) != tt.wantNil {
			t.Errorf("%s: Set=%v Value=%v", tt.body, req.Description.Set, req.Description.Value)
		}
	}

	var req tasks.UpdateTaskRequest
	if err := json.Unmarshal([]byte(`{"description":42}`), &req); err == nil {
		t.Error("number description decoded without error")
	}
}
