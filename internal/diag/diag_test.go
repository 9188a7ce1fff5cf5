package diag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cofrinho/internal/core"
)

func TestPermissionErrorMessage(t *testing.T) {
	e := NewPermissionError(UserPath("u1"), OpCreate, "u1", map[string]any{"xp": 0}, errors.New("denied"))
	msg := e.Error()
	for _, want := range []string{"missing or insufficient permissions", `"path": "users/u1"`, `"operation": "create"`, `"xp": 0`} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(e, core.ErrAccessDenied) {
		t.Fatalf("permission error must match ErrAccessDenied")
	}
	if !IsAccessDenied(fmt.Errorf("wrapped: %w", e)) {
		t.Fatalf("wrapped permission error must match")
	}
}

func TestRecorderRing(t *testing.T) {
	r := NewRecorder(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		uid := "a"
		if i%2 == 1 {
			uid = "b"
		}
		r.Report(ctx, NewPermissionError(TransactionPath(fmt.Sprint(i)), OpWrite, uid, nil, nil))
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 retained, got %d", len(all))
	}
	if all[0].Path != "transactions/4" || all[2].Path != "transactions/2" {
		t.Fatalf("unexpected order %+v", all)
	}
	if got := r.ForUser("b"); len(got) != 1 || got[0].Path != "transactions/3" {
		t.Fatalf("unexpected user filter %+v", got)
	}
}

func TestRecorderPartial(t *testing.T) {
	r := NewRecorder(10)
	if len(r.All()) != 0 {
		t.Fatal("expected empty recorder")
	}
	r.Report(context.Background(), NewPermissionError("users/x", OpGet, "x", nil, nil))
	if len(r.ForUser("x")) != 1 {
		t.Fatal("expected one report")
	}
}

func TestMulti(t *testing.T) {
	var calls int
	count := ReporterFunc(func(context.Context, *PermissionError) { calls++ })
	Multi{count, nil, Nop, count}.Report(context.Background(), &PermissionError{})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
