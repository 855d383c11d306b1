package editor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fieldCall struct {
	op      string
	fieldID string
	patch   FieldPatch
}

type fakeFieldSvc struct {
	mu            sync.Mutex
	calls         []fieldCall
	createFieldFn func(ctx context.Context, field PlacedField, signerID string) (FieldRecord, error)
	updateFieldFn func(ctx context.Context, fieldID string, patch FieldPatch) error
	deleteFieldFn func(ctx context.Context, fieldID string) error
	listFieldsFn  func(ctx context.Context) ([]FieldRecord, error)
}

func (f *fakeFieldSvc) record(call fieldCall) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeFieldSvc) callLog() []fieldCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fieldCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFieldSvc) CreateField(ctx context.Context, field PlacedField, signerID string) (FieldRecord, error) {
	f.record(fieldCall{op: "create", fieldID: field.ID})
	if f.createFieldFn != nil {
		return f.createFieldFn(ctx, field, signerID)
	}
	return FieldRecord{ID: "F1", SignerID: signerID}, nil
}

func (f *fakeFieldSvc) UpdateField(ctx context.Context, fieldID string, patch FieldPatch) error {
	f.record(fieldCall{op: "update", fieldID: fieldID, patch: patch})
	if f.updateFieldFn != nil {
		return f.updateFieldFn(ctx, fieldID, patch)
	}
	return nil
}

func (f *fakeFieldSvc) DeleteField(ctx context.Context, fieldID string) error {
	f.record(fieldCall{op: "delete", fieldID: fieldID})
	if f.deleteFieldFn != nil {
		return f.deleteFieldFn(ctx, fieldID)
	}
	return nil
}

func (f *fakeFieldSvc) ListFields(ctx context.Context) ([]FieldRecord, error) {
	if f.listFieldsFn != nil {
		return f.listFieldsFn(ctx)
	}
	return nil, nil
}

func floatPtr(v float64) *float64 { return &v }

func TestUpdateBeforeCreateResolvesIsQueuedAndReplayed(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeFieldSvc{
		createFieldFn: func(_ context.Context, field PlacedField, signerID string) (FieldRecord, error) {
			close(started)
			<-release
			return FieldRecord{ID: "F1", SignerID: signerID}, nil
		},
	}
	engine := NewFieldSync(svc)

	field := PlacedField{ID: engine.GenerateFieldID(), X: 100, Y: 100, Width: 150, Height: 42, PageNumber: 1}
	done := make(chan error, 1)
	go func() {
		_, err := engine.CreateField(context.Background(), field, "S1")
		done <- err
	}()

	<-started
	if err := engine.UpdateField(context.Background(), field.ID, FieldPatch{X: floatPtr(120)}, true); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("CreateField() error = %v", err)
	}

	calls := svc.callLog()
	if len(calls) != 2 {
		t.Fatalf("expected create then replayed update, got %v", calls)
	}
	if calls[0].op != "create" {
		t.Fatalf("expected create first, got %v", calls)
	}
	if calls[1].op != "update" || calls[1].fieldID != "F1" {
		t.Fatalf("expected replayed update against server id F1, got %+v", calls[1])
	}
	if calls[1].patch.X == nil || *calls[1].patch.X != 120 {
		t.Fatalf("expected replayed update to carry x=120, got %+v", calls[1].patch)
	}
}

func TestDebounceCollapsesRapidUpdates(t *testing.T) {
	svc := &fakeFieldSvc{}
	engine := NewFieldSync(svc)
	engine.debounce = 20 * time.Millisecond
	engine.syncedFields["local-1"] = "F1"

	for x := 0.0; x < 5; x++ {
		value := 100 + x
		if err := engine.UpdateField(context.Background(), "local-1", FieldPatch{X: &value}, false); err != nil {
			t.Fatalf("UpdateField() error = %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)

	calls := svc.callLog()
	if len(calls) != 1 {
		t.Fatalf("expected one collapsed update, got %d: %v", len(calls), calls)
	}
	if calls[0].patch.X == nil || *calls[0].patch.X != 104 {
		t.Fatalf("expected final geometry x=104, got %+v", calls[0].patch)
	}
}

func TestImmediateUpdateBypassesDebounce(t *testing.T) {
	svc := &fakeFieldSvc{}
	engine := NewFieldSync(svc)
	engine.syncedFields["local-1"] = "F1"

	if err := engine.UpdateField(context.Background(), "local-1", FieldPatch{X: floatPtr(42)}, true); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	if calls := svc.callLog(); len(calls) != 1 || calls[0].op != "update" {
		t.Fatalf("expected a single immediate update, got %v", calls)
	}
}

func TestInFlightGuardSuppressesDuplicateUpdates(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeFieldSvc{
		updateFieldFn: func(context.Context, string, FieldPatch) error {
			close(started)
			<-release
			return nil
		},
	}
	engine := NewFieldSync(svc)
	engine.syncedFields["local-1"] = "F1"

	go func() {
		_ = engine.UpdateField(context.Background(), "local-1", FieldPatch{X: floatPtr(1)}, true)
	}()
	<-started

	// Second update for the same field while the first is in flight.
	if err := engine.UpdateField(context.Background(), "local-1", FieldPatch{X: floatPtr(2)}, true); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)

	if calls := svc.callLog(); len(calls) != 1 {
		t.Fatalf("expected the overlapping update to be suppressed, got %v", calls)
	}
}

func TestDeleteOfPendingFieldNeverReachesServer(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeFieldSvc{
		createFieldFn: func(_ context.Context, field PlacedField, signerID string) (FieldRecord, error) {
			close(started)
			<-release
			return FieldRecord{ID: "F1", SignerID: signerID}, nil
		},
	}
	engine := NewFieldSync(svc)

	field := PlacedField{ID: engine.GenerateFieldID(), PageNumber: 1}
	done := make(chan struct{})
	go func() {
		_, _ = engine.CreateField(context.Background(), field, "S1")
		close(done)
	}()

	<-started
	if err := engine.DeleteField(context.Background(), field.ID); err != nil {
		t.Fatalf("DeleteField() error = %v", err)
	}
	close(release)
	<-done

	for _, call := range svc.callLog() {
		if call.op == "delete" {
			t.Fatalf("expected no delete request for a pending-create field, got %v", svc.callLog())
		}
	}
	if status := engine.Status(); status.PendingCount != 0 || status.SyncedCount != 0 {
		t.Fatalf("expected clean bookkeeping after canceled create, got %+v", status)
	}
}

func TestDeleteSyncedFieldUsesServerID(t *testing.T) {
	svc := &fakeFieldSvc{}
	engine := NewFieldSync(svc)
	engine.syncedFields["local-1"] = "F1"

	if err := engine.DeleteField(context.Background(), "local-1"); err != nil {
		t.Fatalf("DeleteField() error = %v", err)
	}
	calls := svc.callLog()
	if len(calls) != 1 || calls[0].op != "delete" || calls[0].fieldID != "F1" {
		t.Fatalf("expected delete of F1, got %v", calls)
	}
	if status := engine.Status(); status.SyncedCount != 0 {
		t.Fatalf("expected mapping removal after delete, got %+v", status)
	}
}

func TestLoadFieldsSeedsIdentityMappings(t *testing.T) {
	svc := &fakeFieldSvc{
		listFieldsFn: func(context.Context) ([]FieldRecord, error) {
			return []FieldRecord{{ID: "F1"}, {ID: "F2"}}, nil
		},
	}
	engine := NewFieldSync(svc)

	records, err := engine.LoadFields(context.Background())
	if err != nil {
		t.Fatalf("LoadFields() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records, got %d", len(records))
	}
	if status := engine.Status(); status.SyncedCount != 2 {
		t.Fatalf("expected two synced mappings, got %+v", status)
	}

	// Updates on loaded fields route by their own id.
	if err := engine.UpdateField(context.Background(), "F1", FieldPatch{X: floatPtr(9)}, true); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	calls := svc.callLog()
	last := calls[len(calls)-1]
	if last.op != "update" || last.fieldID != "F1" {
		t.Fatalf("expected update for F1, got %+v", last)
	}
}

func TestGenerateFieldIDIsUnique(t *testing.T) {
	engine := NewFieldSync(&fakeFieldSvc{})
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := engine.GenerateFieldID()
		if seen[id] {
			t.Fatalf("duplicate local id %q", id)
		}
		seen[id] = true
	}
}

func TestCloseStopsScheduledUpdates(t *testing.T) {
	svc := &fakeFieldSvc{}
	engine := NewFieldSync(svc)
	engine.debounce = 20 * time.Millisecond

	if _, err := engine.CreateField(context.Background(), PlacedField{ID: "local-1"}, "S1"); err != nil {
		t.Fatalf("CreateField() error = %v", err)
	}
	if err := engine.UpdateField(context.Background(), "local-1", FieldPatch{X: floatPtr(120)}, false); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	engine.Close()

	time.Sleep(100 * time.Millisecond)
	for _, call := range svc.callLog() {
		if call.op == "update" {
			t.Fatalf("expected no update after Close, got %v", svc.callLog())
		}
	}
}
