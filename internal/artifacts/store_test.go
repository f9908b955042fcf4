package artifacts

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/diagramq/diagramq/pkg/domain"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	payload := []byte(`{"findings":[]}`)
	ref, err := store.Put(ctx, "task-1", domain.KindErrorAnalysis, payload)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "task-1/error_analysis" {
		t.Fatalf("unexpected ref: %s", ref)
	}

	got, err := store.Get(ctx, "task-1", domain.KindErrorAnalysis)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}

	// Idempotent read: repeated gets return identical bytes.
	again, err := store.Get(ctx, "task-1", domain.KindErrorAnalysis)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if !bytes.Equal(again, payload) {
		t.Fatalf("second read differs")
	}
}

func TestGetBeforePut(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	if _, err := store.Get(ctx, "task-1", domain.KindAnnotatedImage); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesAllKinds(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	for _, kind := range []domain.ResultKind{domain.KindInput, domain.KindStructure, domain.KindCorrectedDiagram} {
		if _, err := store.Put(ctx, "task-1", kind, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", kind, err)
		}
	}
	if err := store.Delete(ctx, "task-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, kind := range []domain.ResultKind{domain.KindInput, domain.KindStructure, domain.KindCorrectedDiagram} {
		if _, err := store.Get(ctx, "task-1", kind); !errors.Is(err, ErrNotFound) {
			t.Fatalf("artifact %s survived delete: %v", kind, err)
		}
	}
}
