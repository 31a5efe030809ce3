package ownership

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/fentz26/potok/internal/models"
)

func TestFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tasks := []models.Task{
		{ID: "a", UserID: "u1"},
		{ID: "b", UserID: "u2"},
		{ID: "c", UserID: "u1"},
	}
	got := Filter(logger, "u1", "store", tasks)

	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected filtered tasks %+v", got)
	}
	out := buf.String()
	if !strings.Contains(out, "anomaly=ownership_violation") || !strings.Contains(out, "task_id=b") {
		t.Errorf("Expected a security log for b, got %q", out)
	}
}

func TestFilter_Empty(t *testing.T) {
	if got := Filter(nil, "u1", "store", nil); got == nil || len(got) != 0 {
		t.Errorf("Expected an empty non-nil slice, got %v", got)
	}
}

func TestCheck(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	if err := Check(logger, "u1", "u1", "a", "cache"); err != nil {
		t.Errorf("Expected no error for the owner, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected no log for the owner, got %q", buf.String())
	}

	err := Check(logger, "u1", "u2", "b", "cache")
	if !errors.Is(err, ErrViolation) {
		t.Fatalf("Expected ErrViolation, got %v", err)
	}
	if !strings.Contains(buf.String(), "source=cache") {
		t.Errorf("Expected the source to be logged, got %q", buf.String())
	}
}
