package editor

import (
	"context"
	"errors"
	"testing"
)

func newTestOps(svc *fakeFieldSvc) *Operations {
	return NewOperations(NewFieldSync(svc))
}

func TestCreateSignatureRollsBackOnFailure(t *testing.T) {
	svc := &fakeFieldSvc{
		createFieldFn: func(context.Context, PlacedField, string) (FieldRecord, error) {
			return FieldRecord{}, errors.New("network down")
		},
	}
	ops := newTestOps(svc)

	field := PlacedField{ID: "local-1", X: 10, Y: 10, Width: 100, Height: 40, PageNumber: 1}
	if err := ops.CreateSignature(context.Background(), field, "S1"); err == nil {
		t.Fatalf("expected create failure")
	}
	if fields := ops.Fields(); len(fields) != 0 {
		t.Fatalf("expected optimistic insert to be rolled back, got %v", fields)
	}
}

func TestCreateSignatureKeepsFieldOnSuccess(t *testing.T) {
	ops := newTestOps(&fakeFieldSvc{})

	field := PlacedField{ID: "local-1", X: 10, Y: 10, Width: 100, Height: 40, PageNumber: 1}
	if err := ops.CreateSignature(context.Background(), field, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}
	fields := ops.Fields()
	if len(fields) != 1 || fields[0].ID != "local-1" || fields[0].SignerID != "S1" {
		t.Fatalf("unexpected local state %v", fields)
	}
}

func TestDeleteSignatureRestoresFieldOnFailure(t *testing.T) {
	svc := &fakeFieldSvc{
		deleteFieldFn: func(context.Context, string) error {
			return errors.New("network down")
		},
	}
	ops := newTestOps(svc)
	original := PlacedField{ID: "local-1", X: 10, Y: 20, Width: 100, Height: 40, PageNumber: 2, FontSize: 14}
	if err := ops.CreateSignature(context.Background(), original, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}

	if err := ops.DeleteSignature(context.Background(), "local-1"); err == nil {
		t.Fatalf("expected delete failure")
	}
	fields := ops.Fields()
	if len(fields) != 1 {
		t.Fatalf("expected field to be restored, got %v", fields)
	}
	restored := fields[0]
	if restored.X != 10 || restored.Y != 20 || restored.Width != 100 || restored.Height != 40 || restored.PageNumber != 2 {
		t.Fatalf("restored field differs from original: %+v", restored)
	}
}

func TestDeleteSignatureRemovesFieldOnSuccess(t *testing.T) {
	ops := newTestOps(&fakeFieldSvc{})
	if err := ops.CreateSignature(context.Background(), PlacedField{ID: "local-1"}, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}

	if err := ops.DeleteSignature(context.Background(), "local-1"); err != nil {
		t.Fatalf("DeleteSignature() error = %v", err)
	}
	if fields := ops.Fields(); len(fields) != 0 {
		t.Fatalf("expected empty local state, got %v", fields)
	}
}

func TestUpdateSignatureMergesLocallyEvenIfRemoteFails(t *testing.T) {
	svc := &fakeFieldSvc{
		updateFieldFn: func(context.Context, string, FieldPatch) error {
			return errors.New("network down")
		},
	}
	ops := newTestOps(svc)
	if err := ops.CreateSignature(context.Background(), PlacedField{ID: "local-1", X: 10}, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}

	ops.UpdateSignature(context.Background(), "local-1", FieldPatch{X: floatPtr(99)}, true)

	fields := ops.Fields()
	if fields[0].X != 99 {
		t.Fatalf("expected local geometry updated despite remote failure, got %+v", fields[0])
	}
}

func TestDuplicateSignatureOffsetsClone(t *testing.T) {
	ops := newTestOps(&fakeFieldSvc{})
	source := PlacedField{ID: "local-1", X: 50, Y: 50, Width: 100, Height: 40, PageNumber: 2, FontSize: 14, FontFamily: "Arial"}
	if err := ops.CreateSignature(context.Background(), source, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}

	clone, err := ops.DuplicateSignature(context.Background(), "local-1")
	if err != nil {
		t.Fatalf("DuplicateSignature() error = %v", err)
	}
	if clone.ID == "local-1" || clone.ID == "" {
		t.Fatalf("expected a fresh id, got %q", clone.ID)
	}
	if clone.X != 66 || clone.Y != 66 {
		t.Fatalf("expected +16 offset on both axes, got (%v, %v)", clone.X, clone.Y)
	}
	if clone.Width != 100 || clone.Height != 40 || clone.PageNumber != 2 {
		t.Fatalf("expected size and page preserved, got %+v", clone)
	}
	if fields := ops.Fields(); len(fields) != 2 {
		t.Fatalf("expected two fields after duplication, got %d", len(fields))
	}
}

func TestCopyToAllPagesCreatesOnePerOtherPage(t *testing.T) {
	ops := newTestOps(&fakeFieldSvc{})
	source := PlacedField{ID: "local-1", X: 30, Y: 40, Width: 120, Height: 44, PageNumber: 2, FontFamily: "Arial", Color: "#000000"}
	if err := ops.CreateSignature(context.Background(), source, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}

	clones, err := ops.CopySignatureToAllPages(context.Background(), "local-1", 5)
	if err != nil {
		t.Fatalf("CopySignatureToAllPages() error = %v", err)
	}
	if len(clones) != 4 {
		t.Fatalf("expected 4 clones for 5 pages, got %d", len(clones))
	}
	pages := make(map[int]bool)
	ids := make(map[string]bool)
	for _, clone := range clones {
		if clone.PageNumber == 2 {
			t.Fatalf("clone must not land on the source page: %+v", clone)
		}
		if pages[clone.PageNumber] {
			t.Fatalf("duplicate page %d", clone.PageNumber)
		}
		pages[clone.PageNumber] = true
		if ids[clone.ID] {
			t.Fatalf("duplicate id %q", clone.ID)
		}
		ids[clone.ID] = true
		if clone.X != 30 || clone.Y != 40 || clone.FontFamily != "Arial" {
			t.Fatalf("expected styling preserved, got %+v", clone)
		}
	}
	if fields := ops.Fields(); len(fields) != 5 {
		t.Fatalf("expected 5 fields total, got %d", len(fields))
	}
}

func TestCopyToAllPagesToleratesPartialFailure(t *testing.T) {
	svc := &fakeFieldSvc{}
	svc.createFieldFn = func(_ context.Context, field PlacedField, signerID string) (FieldRecord, error) {
		if field.PageNumber == 3 {
			return FieldRecord{}, errors.New("page 3 rejected")
		}
		return FieldRecord{ID: "F-" + field.ID, SignerID: signerID}, nil
	}
	ops := newTestOps(svc)
	if err := ops.CreateSignature(context.Background(), PlacedField{ID: "local-1", PageNumber: 1}, "S1"); err != nil {
		t.Fatalf("CreateSignature() error = %v", err)
	}

	if _, err := ops.CopySignatureToAllPages(context.Background(), "local-1", 3); err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}
	// Source plus the page-2 copy survive; the failed page-3 copy is gone.
	if fields := ops.Fields(); len(fields) != 2 {
		t.Fatalf("expected 2 fields after partial failure, got %v", fields)
	}
}

func TestRemoveSignaturesByEmailFiltersLocallyOnly(t *testing.T) {
	svc := &fakeFieldSvc{}
	ops := newTestOps(svc)
	fields := []PlacedField{
		{ID: "f1", RecipientEmail: "alice@x.com"},
		{ID: "f2", RecipientEmail: "bob@x.com"},
		{ID: "f3", RecipientEmail: "Alice@X.com"},
	}
	ops.SetFields(fields)

	removed := ops.RemoveSignaturesByEmail("alice@x.com")
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	remaining := ops.Fields()
	if len(remaining) != 1 || remaining[0].ID != "f2" {
		t.Fatalf("unexpected remaining fields %v", remaining)
	}
	for _, call := range svc.callLog() {
		if call.op == "delete" {
			t.Fatalf("expected no remote deletes, got %v", svc.callLog())
		}
	}
}
