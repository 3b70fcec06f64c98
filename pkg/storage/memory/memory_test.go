package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/storage"
	"github.com/narrated/pyexec/pkg/transport"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeRecord(id string, offset int) *api.ExecutionRecord {
	return &api.ExecutionRecord{
		ID:        id,
		Object:    "execution",
		Status:    api.ExecutionStatusRunning,
		Code:      "print('hi')",
		Timeout:   60,
		CreatedAt: baseTime.Add(time.Duration(offset) * time.Second),
	}
}

func complete(rec *api.ExecutionRecord, status api.ExecutionStatus) *api.ExecutionRecord {
	done := baseTime.Add(time.Hour)
	out := *rec
	out.Status = status
	out.CompletedAt = &done
	out.Response = &api.ExecuteResponse{ID: rec.ID, Success: status == api.ExecutionStatusCompleted, Stdout: "hi\n"}
	return &out
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveExecution(ctx, makeRecord("exec_1", 0)); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}

	got, err := s.GetExecution(ctx, "exec_1")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Status != api.ExecutionStatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, api.ExecutionStatusRunning)
	}
	if got.Code != "print('hi')" {
		t.Errorf("Code = %q", got.Code)
	}
	if got.Response != nil {
		t.Error("running record should have no response")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.SaveExecution(ctx, makeRecord("exec_copy", 0))

	got, _ := s.GetExecution(ctx, "exec_copy")
	got.Status = api.ExecutionStatusFailed

	again, _ := s.GetExecution(ctx, "exec_copy")
	if again.Status != api.ExecutionStatusRunning {
		t.Errorf("stored record mutated through returned copy: %q", again.Status)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)

	_, err := s.GetExecution(context.Background(), "exec_missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := makeRecord("exec_upd", 0)
	s.SaveExecution(ctx, rec)

	if err := s.UpdateExecution(ctx, complete(rec, api.ExecutionStatusCompleted)); err != nil {
		t.Fatalf("UpdateExecution failed: %v", err)
	}

	got, _ := s.GetExecution(ctx, "exec_upd")
	if got.Status != api.ExecutionStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if got.Response == nil || got.Response.Stdout != "hi\n" {
		t.Errorf("Response = %+v", got.Response)
	}
	if got.Code != "print('hi')" {
		t.Errorf("Code changed by update: %q", got.Code)
	}
}

func TestUpdateInvalidTransition(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := makeRecord("exec_term", 0)
	s.SaveExecution(ctx, rec)
	s.UpdateExecution(ctx, complete(rec, api.ExecutionStatusFailed))

	err := s.UpdateExecution(ctx, complete(rec, api.ExecutionStatusCompleted))
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for terminal transition, got %v", err)
	}
	if apiErr.Param != "status" {
		t.Errorf("Param = %q, want status", apiErr.Param)
	}
}

func TestUpdateNotFound(t *testing.T) {
	s := New(0)

	err := s.UpdateExecution(context.Background(), complete(makeRecord("exec_none", 0), api.ExecutionStatusCompleted))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveExecution(ctx, makeRecord("exec_del", 0))

	if err := s.DeleteExecution(ctx, "exec_del"); err != nil {
		t.Fatalf("DeleteExecution failed: %v", err)
	}
	if _, err := s.GetExecution(ctx, "exec_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteExecution(ctx, "exec_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete should be not found, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestDuplicateSave(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := makeRecord("exec_dup", 0)
	s.SaveExecution(ctx, rec)

	if err := s.SaveExecution(ctx, rec); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	for i, id := range []string{"exec_a", "exec_b", "exec_c", "exec_d"} {
		s.SaveExecution(ctx, makeRecord(id, i))
	}

	if _, err := s.GetExecution(ctx, "exec_a"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected exec_a to be evicted")
	}
	for _, id := range []string{"exec_b", "exec_c", "exec_d"} {
		if _, err := s.GetExecution(ctx, id); err != nil {
			t.Errorf("expected %s to exist after eviction, got %v", id, err)
		}
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(0)

	ctxA := storage.WithTenant(context.Background(), "tenant-a")
	ctxB := storage.WithTenant(context.Background(), "tenant-b")

	s.SaveExecution(ctxA, makeRecord("exec_a1", 0))

	if _, err := s.GetExecution(ctxA, "exec_a1"); err != nil {
		t.Fatalf("tenant A should retrieve own record: %v", err)
	}
	if _, err := s.GetExecution(ctxB, "exec_a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not see tenant A's record")
	}
	if err := s.DeleteExecution(ctxB, "exec_a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not delete tenant A's record")
	}
	if _, err := s.GetExecution(context.Background(), "exec_a1"); err != nil {
		t.Fatalf("no-tenant context should see all records: %v", err)
	}

	list, _ := s.ListExecutions(ctxB, transport.ListOptions{})
	if len(list.Data) != 0 {
		t.Errorf("tenant B list = %d records, want 0", len(list.Data))
	}
}

func TestListPagination(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.SaveExecution(ctx, makeRecord(fmt.Sprintf("exec_%d", i), i))
	}

	tests := []struct {
		name    string
		opts    transport.ListOptions
		wantIDs []string
		hasMore bool
	}{
		{"default desc", transport.ListOptions{}, []string{"exec_4", "exec_3", "exec_2", "exec_1", "exec_0"}, false},
		{"asc", transport.ListOptions{Order: "asc"}, []string{"exec_0", "exec_1", "exec_2", "exec_3", "exec_4"}, false},
		{"limit", transport.ListOptions{Limit: 2}, []string{"exec_4", "exec_3"}, true},
		{"after", transport.ListOptions{After: "exec_3", Limit: 2}, []string{"exec_2", "exec_1"}, true},
		{"before", transport.ListOptions{Before: "exec_2"}, []string{"exec_4", "exec_3"}, false},
		{"before nearest page", transport.ListOptions{Before: "exec_1", Limit: 2}, []string{"exec_3", "exec_2"}, true},
		{"before asc", transport.ListOptions{Order: "asc", Before: "exec_3", Limit: 2}, []string{"exec_1", "exec_2"}, true},
		{"before first", transport.ListOptions{Before: "exec_4"}, []string{}, false},
		{"unknown cursor", transport.ListOptions{After: "exec_zzz"}, []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListExecutions(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListExecutions failed: %v", err)
			}
			if list.Object != "list" {
				t.Errorf("Object = %q", list.Object)
			}
			var ids []string
			for _, r := range list.Data {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if list.HasMore != tt.hasMore {
				t.Errorf("HasMore = %v, want %v", list.HasMore, tt.hasMore)
			}
			if len(ids) > 0 && (list.FirstID != ids[0] || list.LastID != ids[len(ids)-1]) {
				t.Errorf("FirstID/LastID = %q/%q", list.FirstID, list.LastID)
			}
		})
	}
}

func TestListStatusFilter(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	running := makeRecord("exec_run", 0)
	done := makeRecord("exec_done", 1)
	s.SaveExecution(ctx, running)
	s.SaveExecution(ctx, done)
	s.UpdateExecution(ctx, complete(done, api.ExecutionStatusCompleted))

	list, _ := s.ListExecutions(ctx, transport.ListOptions{Status: api.ExecutionStatusRunning})
	if len(list.Data) != 1 || list.Data[0].ID != "exec_run" {
		t.Errorf("running filter returned %+v", list.Data)
	}
}
