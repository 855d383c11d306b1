package editor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"easysign/api/internal/util"
)

const defaultDebounce = 300 * time.Millisecond

type queuedOp struct {
	op    string
	patch FieldPatch
}

// FieldSync reconciles the fast-changing local field model against the
// remote store. It preserves create-before-mutate ordering per field:
// mutations issued while a field's create is unresolved are queued and
// replayed, in order, once the server id is known.
type FieldSync struct {
	mu             sync.Mutex
	svc            FieldService
	pendingCreates map[string]bool
	canceled       map[string]bool
	syncedFields   map[string]string
	queues         map[string][]queuedOp
	timers         map[string]*time.Timer
	inFlight       map[string]bool
	debounce       time.Duration
	closed         bool
}

func NewFieldSync(svc FieldService) *FieldSync {
	return &FieldSync{
		svc:            svc,
		pendingCreates: make(map[string]bool),
		canceled:       make(map[string]bool),
		syncedFields:   make(map[string]string),
		queues:         make(map[string][]queuedOp),
		timers:         make(map[string]*time.Timer),
		inFlight:       make(map[string]bool),
		debounce:       defaultDebounce,
	}
}

// GenerateFieldID produces a session-unique local identifier.
func (s *FieldSync) GenerateFieldID() string {
	return util.NewLocalID("fld")
}

// CreateField persists a new field and resolves the local id to the
// server id. Operations queued against the local id while the create was
// in flight are replayed in order afterwards.
func (s *FieldSync) CreateField(ctx context.Context, field PlacedField, signerID string) (string, error) {
	s.mu.Lock()
	s.pendingCreates[field.ID] = true
	s.mu.Unlock()

	record, err := s.svc.CreateField(ctx, field, signerID)

	s.mu.Lock()
	delete(s.pendingCreates, field.ID)
	if err != nil {
		delete(s.queues, field.ID)
		delete(s.canceled, field.ID)
		s.mu.Unlock()
		return "", err
	}
	if s.canceled[field.ID] {
		// Deleted locally before the create resolved. The mapping is
		// dropped so no later mutation can reach the orphaned record.
		delete(s.canceled, field.ID)
		delete(s.queues, field.ID)
		s.mu.Unlock()
		return record.ID, nil
	}
	s.syncedFields[field.ID] = record.ID
	queue := s.queues[field.ID]
	delete(s.queues, field.ID)
	s.mu.Unlock()

	for _, op := range queue {
		switch op.op {
		case "update":
			if err := s.sendUpdate(ctx, record.ID, op.patch); err != nil {
				return record.ID, fmt.Errorf("replay queued update: %w", err)
			}
		case "delete":
			if err := s.svc.DeleteField(ctx, record.ID); err != nil {
				return record.ID, fmt.Errorf("replay queued delete: %w", err)
			}
			s.mu.Lock()
			delete(s.syncedFields, field.ID)
			s.mu.Unlock()
			return record.ID, nil
		}
	}
	return record.ID, nil
}

// UpdateField schedules a debounced remote update. Updates for a field
// whose create has not resolved are queued instead of sent. With
// immediate set, the update bypasses the debounce timer.
func (s *FieldSync) UpdateField(ctx context.Context, fieldID string, patch FieldPatch, immediate bool) error {
	s.mu.Lock()
	if s.pendingCreates[fieldID] {
		s.queues[fieldID] = append(s.queues[fieldID], queuedOp{op: "update", patch: patch})
		s.mu.Unlock()
		return nil
	}
	serverID := s.resolveLocked(fieldID)
	if timer, ok := s.timers[fieldID]; ok {
		timer.Stop()
		delete(s.timers, fieldID)
	}
	if immediate {
		s.mu.Unlock()
		return s.sendUpdate(ctx, serverID, patch)
	}
	s.timers[fieldID] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		closed := s.closed
		delete(s.timers, fieldID)
		s.mu.Unlock()
		if closed {
			return
		}
		if err := s.sendUpdate(context.Background(), serverID, patch); err != nil {
			log.Printf("field update %s failed: %v", serverID, err)
		}
	})
	s.mu.Unlock()
	return nil
}

// Close stops every pending debounce timer. Timers that already fired
// find the closed flag set and do not send. The engine must not be used
// after Close.
func (s *FieldSync) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for fieldID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, fieldID)
	}
}

// sendUpdate performs the remote update unless an identical request is
// already in flight for this field.
func (s *FieldSync) sendUpdate(ctx context.Context, serverID string, patch FieldPatch) error {
	key := "update-" + serverID
	s.mu.Lock()
	if s.inFlight[key] {
		s.mu.Unlock()
		return nil
	}
	s.inFlight[key] = true
	s.mu.Unlock()

	err := s.svc.UpdateField(ctx, serverID, patch)

	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
	return err
}

// DeleteField removes the field remotely. A field whose create has not
// resolved is only dropped from local bookkeeping; no delete request is
// ever sent for it.
func (s *FieldSync) DeleteField(ctx context.Context, fieldID string) error {
	s.mu.Lock()
	if s.pendingCreates[fieldID] {
		delete(s.pendingCreates, fieldID)
		delete(s.queues, fieldID)
		s.canceled[fieldID] = true
		s.mu.Unlock()
		return nil
	}
	serverID := s.resolveLocked(fieldID)
	if timer, ok := s.timers[fieldID]; ok {
		timer.Stop()
		delete(s.timers, fieldID)
	}
	s.mu.Unlock()

	if err := s.svc.DeleteField(ctx, serverID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.syncedFields, fieldID)
	s.mu.Unlock()
	return nil
}

// LoadFields fetches persisted fields and seeds identity mappings so
// later updates on server-loaded fields route correctly.
func (s *FieldSync) LoadFields(ctx context.Context) ([]FieldRecord, error) {
	records, err := s.svc.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, record := range records {
		s.syncedFields[record.ID] = record.ID
	}
	s.mu.Unlock()
	return records, nil
}

// Status reports how many fields are synced and how many still have an
// unresolved create.
func (s *FieldSync) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyncStatus{
		SyncedCount:  len(s.syncedFields),
		PendingCount: len(s.pendingCreates),
	}
}

// resolveLocked maps a local id to its server id, falling back to the
// local id for fields that never had a separate local identity.
func (s *FieldSync) resolveLocked(fieldID string) string {
	if serverID, ok := s.syncedFields[fieldID]; ok {
		return serverID
	}
	return fieldID
}
