package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SignerRegistry guarantees at most one outstanding create request per
// recipient and lets callers wait for a creation already in flight.
type SignerRegistry struct {
	mu      sync.Mutex
	svc     SignerService
	entries map[string]*signerEntry

	// waitTimeout bounds how long EnsureSigner waits on a creation
	// started by another caller.
	waitTimeout time.Duration
}

type signerEntry struct {
	recipientID string
	email       string
	name        string
	signerID    string
	creating    bool
	err         error
	done        chan struct{}
}

func NewSignerRegistry(svc SignerService) *SignerRegistry {
	return &SignerRegistry{
		svc:         svc,
		entries:     make(map[string]*signerEntry),
		waitTimeout: 5 * time.Second,
	}
}

// Seed records an already persisted signer so lookups resolve without a
// create request. Used when loading an existing document.
func (r *SignerRegistry) Seed(record SignerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[record.ID] = &signerEntry{
		recipientID: record.ID,
		email:       strings.ToLower(record.Email),
		name:        record.Name,
		signerID:    record.ID,
	}
}

// EnsureSigner returns the server id for the recipient, creating the
// signer if needed. Concurrent calls for the same recipient share one
// create request. A previous failure is not retried automatically; the
// next EnsureSigner call starts a fresh attempt.
func (r *SignerRegistry) EnsureSigner(ctx context.Context, recipient Recipient) (string, error) {
	r.mu.Lock()
	entry, ok := r.entries[recipient.ID]
	if !ok {
		entry = &signerEntry{
			recipientID: recipient.ID,
			email:       strings.ToLower(strings.TrimSpace(recipient.Email)),
			name:        recipient.Name,
		}
		r.entries[recipient.ID] = entry
	}

	if entry.signerID != "" {
		id := entry.signerID
		r.mu.Unlock()
		return id, nil
	}

	if entry.creating {
		done := entry.done
		r.mu.Unlock()
		select {
		case <-done:
		case <-time.After(r.waitTimeout):
			return "", fmt.Errorf("timed out waiting for signer creation for %s", recipient.Email)
		case <-ctx.Done():
			return "", ctx.Err()
		}
		r.mu.Lock()
		id, err := entry.signerID, entry.err
		r.mu.Unlock()
		if id != "" {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("signer creation for %s did not resolve", recipient.Email)
	}

	// Start a fresh attempt. A retained error from a prior attempt is
	// cleared here, which is how callers retry.
	entry.creating = true
	entry.err = nil
	entry.done = make(chan struct{})
	done := entry.done
	r.mu.Unlock()

	record, err := r.svc.CreateSigner(ctx, recipient.Email, recipient.Name, recipient.SigningOrder)

	r.mu.Lock()
	entry.creating = false
	if err != nil {
		entry.err = err
	} else {
		entry.signerID = record.ID
	}
	close(done)
	r.mu.Unlock()

	if err != nil {
		return "", err
	}
	return record.ID, nil
}

// GetSignerIDByEmail returns the server id of the first entry with a
// matching email and a known id, or "" when none exists yet.
func (r *SignerRegistry) GetSignerIDByEmail(email string) string {
	needle := strings.ToLower(strings.TrimSpace(email))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.email == needle && entry.signerID != "" {
			return entry.signerID
		}
	}
	return ""
}

// LastError returns the retained creation failure for a recipient, if any.
func (r *SignerRegistry) LastError(recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[recipientID]; ok {
		return entry.err
	}
	return nil
}

// SyncRecipients ensures every recipient in the list, concurrently.
// Individual failures do not abort the batch.
func (r *SignerRegistry) SyncRecipients(ctx context.Context, recipients []Recipient) (created, failed int) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, recipient := range recipients {
		wg.Add(1)
		go func(rec Recipient) {
			defer wg.Done()
			_, err := r.EnsureSigner(ctx, rec)
			mu.Lock()
			if err != nil {
				failed++
			} else {
				created++
			}
			mu.Unlock()
		}(recipient)
	}
	wg.Wait()
	return created, failed
}

// DeleteSigner removes the remote signer and drops the local entry.
// A recipient that was never persisted is removed locally only.
func (r *SignerRegistry) DeleteSigner(ctx context.Context, recipientID string) error {
	r.mu.Lock()
	entry, ok := r.entries[recipientID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	signerID := entry.signerID
	r.mu.Unlock()

	if signerID != "" {
		if err := r.svc.DeleteSigner(ctx, signerID); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.entries, recipientID)
	r.mu.Unlock()
	return nil
}
