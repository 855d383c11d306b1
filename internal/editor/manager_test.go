package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestManagerLoadSeedsSignersAndFields(t *testing.T) {
	signers := &fakeSignerSvc{
		listSignersFn: func(context.Context) ([]SignerRecord, error) {
			return []SignerRecord{
				{ID: "S1", Email: "alice@x.com", Name: "Alice", SignOrder: 0, Status: "draft"},
				{ID: "S2", Email: "bob@x.com", Name: "Bob", SignOrder: 1, Status: "draft"},
			}, nil
		},
	}
	fields := &fakeFieldSvc{
		listFieldsFn: func(context.Context) ([]FieldRecord, error) {
			return []FieldRecord{
				{ID: "F1", SignerID: "S1", PageNumber: 1, X: 10, Y: 20, Width: 100, Height: 40, FieldType: "signature"},
				{ID: "F2", SignerID: "S2", PageNumber: 2, X: 30, Y: 40, Width: 100, Height: 40, FieldType: "initials"},
			}, nil
		},
	}
	mgr := NewManager("doc_1", 3, signers, fields)

	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := mgr.SignerIDByEmail("alice@x.com"); got != "S1" {
		t.Fatalf("expected seeded signer lookup to return S1, got %q", got)
	}
	loaded := mgr.Fields()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 fields after load, got %d", len(loaded))
	}
	if loaded[1].RecipientEmail != "bob@x.com" {
		t.Fatalf("expected recipient email resolved from signer list, got %q", loaded[1].RecipientEmail)
	}
	status := mgr.SyncStatus()
	if status.SyncedCount != 2 || status.PendingCount != 0 {
		t.Fatalf("unexpected sync status %+v", status)
	}
}

func TestCreateFieldWithSignerCreatesSignerFirst(t *testing.T) {
	var mu sync.Mutex
	var order []string
	signers := &fakeSignerSvc{
		createSignerFn: func(_ context.Context, email, name string, signOrder int) (SignerRecord, error) {
			mu.Lock()
			order = append(order, "signer")
			mu.Unlock()
			return SignerRecord{ID: "S1", Email: email, Name: name, SignOrder: signOrder}, nil
		},
	}
	fields := &fakeFieldSvc{
		createFieldFn: func(_ context.Context, field PlacedField, signerID string) (FieldRecord, error) {
			mu.Lock()
			order = append(order, "field")
			mu.Unlock()
			if signerID != "S1" {
				t.Errorf("expected field to be created for S1, got %q", signerID)
			}
			return FieldRecord{ID: "F1", SignerID: signerID}, nil
		},
	}
	mgr := NewManager("doc_1", 3, signers, fields)

	recipient := Recipient{ID: "r1", Email: "alice@x.com", Name: "Alice"}
	field := PlacedField{PageNumber: 1, X: 10, Y: 10, Width: 100, Height: 40, FieldType: "signature"}
	if err := mgr.CreateFieldWithSigner(context.Background(), field, recipient); err != nil {
		t.Fatalf("CreateFieldWithSigner() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "signer" || order[1] != "field" {
		t.Fatalf("expected signer creation before field creation, got %v", order)
	}
	placed := mgr.Fields()
	if len(placed) != 1 || placed[0].SignerID != "S1" || placed[0].RecipientEmail != "alice@x.com" {
		t.Fatalf("unexpected placed field %v", placed)
	}
	if placed[0].ID == "" {
		t.Fatalf("expected a generated field id")
	}
}

func TestCreateFieldWithSignerPropagatesSignerFailure(t *testing.T) {
	signers := &fakeSignerSvc{
		createSignerFn: func(context.Context, string, string, int) (SignerRecord, error) {
			return SignerRecord{}, errors.New("signer rejected")
		},
	}
	fields := &fakeFieldSvc{}
	mgr := NewManager("doc_1", 3, signers, fields)

	err := mgr.CreateFieldWithSigner(context.Background(), PlacedField{PageNumber: 1}, Recipient{ID: "r1", Email: "alice@x.com"})
	if err == nil {
		t.Fatalf("expected signer failure to abort field creation")
	}
	if len(fields.callLog()) != 0 {
		t.Fatalf("expected no field requests after signer failure, got %v", fields.callLog())
	}
	if len(mgr.Fields()) != 0 {
		t.Fatalf("expected no local field after signer failure")
	}
}

func TestRemoveRecipientDeletesSignerAndLocalFields(t *testing.T) {
	signers := &fakeSignerSvc{
		listSignersFn: func(context.Context) ([]SignerRecord, error) {
			return []SignerRecord{{ID: "S1", Email: "alice@x.com", Name: "Alice"}}, nil
		},
	}
	fields := &fakeFieldSvc{
		listFieldsFn: func(context.Context) ([]FieldRecord, error) {
			return []FieldRecord{
				{ID: "F1", SignerID: "S1", PageNumber: 1},
				{ID: "F2", SignerID: "S1", PageNumber: 2},
			}, nil
		},
	}
	mgr := NewManager("doc_1", 2, signers, fields)
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := mgr.RemoveRecipient(context.Background(), Recipient{ID: "S1", Email: "alice@x.com"}); err != nil {
		t.Fatalf("RemoveRecipient() error = %v", err)
	}
	signers.mu.Lock()
	deleted := append([]string(nil), signers.deleteCalls...)
	signers.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != "S1" {
		t.Fatalf("expected one signer delete for S1, got %v", deleted)
	}
	if len(mgr.Fields()) != 0 {
		t.Fatalf("expected recipient's fields removed from local state")
	}
	for _, call := range fields.callLog() {
		if call.op == "delete" {
			t.Fatalf("field cleanup must ride on the signer cascade, got %v", fields.callLog())
		}
	}
}

func TestCopyFieldToAllPagesUsesDocumentPageCount(t *testing.T) {
	fields := &fakeFieldSvc{}
	mgr := NewManager("doc_1", 4, &fakeSignerSvc{}, fields)

	if err := mgr.CreateFieldWithSigner(context.Background(), PlacedField{ID: "local-1", PageNumber: 1}, Recipient{ID: "r1", Email: "alice@x.com"}); err != nil {
		t.Fatalf("CreateFieldWithSigner() error = %v", err)
	}
	clones, err := mgr.CopyFieldToAllPages(context.Background(), "local-1")
	if err != nil {
		t.Fatalf("CopyFieldToAllPages() error = %v", err)
	}
	if len(clones) != 3 {
		t.Fatalf("expected 3 clones for a 4 page document, got %d", len(clones))
	}
}
