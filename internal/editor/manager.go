package editor

import (
	"context"
	"fmt"
)

// Manager is one document-editing session: it composes the signer
// registry, the field sync engine, and the optimistic operations layer
// into the surface the UI consumes. Sessions are constructed per
// document; nothing here is process-wide.
type Manager struct {
	documentID string
	numPages   int
	registry   *SignerRegistry
	sync       *FieldSync
	ops        *Operations
}

func NewManager(documentID string, numPages int, signers SignerService, fields FieldService) *Manager {
	if numPages < 1 {
		numPages = 1
	}
	fieldSync := NewFieldSync(fields)
	return &Manager{
		documentID: documentID,
		numPages:   numPages,
		registry:   NewSignerRegistry(signers),
		sync:       fieldSync,
		ops:        NewOperations(fieldSync),
	}
}

// Load pulls persisted signers and fields into the session. Loaded
// fields start in the synced state.
func (m *Manager) Load(ctx context.Context) error {
	signers, err := m.registry.svc.ListSigners(ctx)
	if err != nil {
		return fmt.Errorf("load signers: %w", err)
	}
	emailBySigner := make(map[string]string, len(signers))
	for _, signer := range signers {
		m.registry.Seed(signer)
		emailBySigner[signer.ID] = signer.Email
	}

	records, err := m.sync.LoadFields(ctx)
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}
	fields := make([]PlacedField, 0, len(records))
	for _, record := range records {
		email := record.SignerEmail
		if email == "" {
			email = emailBySigner[record.SignerID]
		}
		fields = append(fields, PlacedField{
			ID:             record.ID,
			SignerID:       record.SignerID,
			RecipientEmail: email,
			PageNumber:     record.PageNumber,
			X:              record.X,
			Y:              record.Y,
			Width:          record.Width,
			Height:         record.Height,
			FieldType:      record.FieldType,
			Required:       record.Required,
			FontSize:       record.FontSize,
			FontFamily:     record.FontFamily,
			Color:          record.Color,
			Alignment:      record.Alignment,
			Placeholder:    record.Placeholder,
			Value:          record.Value,
			SignedAt:       record.SignedAt,
		})
	}
	m.ops.SetFields(fields)
	return nil
}

// CreateFieldWithSigner is the composite placement operation: it
// resolves (creating if needed) the signer for the field's recipient
// before the field itself is created, which is where the
// signer-before-field ordering is enforced.
func (m *Manager) CreateFieldWithSigner(ctx context.Context, field PlacedField, recipient Recipient) error {
	signerID, err := m.registry.EnsureSigner(ctx, recipient)
	if err != nil {
		return fmt.Errorf("resolve signer for %s: %w", recipient.Email, err)
	}
	if field.ID == "" {
		field.ID = m.sync.GenerateFieldID()
	}
	field.RecipientEmail = recipient.Email
	return m.ops.CreateSignature(ctx, field, signerID)
}

// RemoveRecipient deletes the recipient's signer (cascading field
// removal remotely) and drops their fields from local state.
func (m *Manager) RemoveRecipient(ctx context.Context, recipient Recipient) error {
	if err := m.registry.DeleteSigner(ctx, recipient.ID); err != nil {
		return err
	}
	m.ops.RemoveSignaturesByEmail(recipient.Email)
	return nil
}

func (m *Manager) Fields() []PlacedField { return m.ops.Fields() }

func (m *Manager) UpdateField(ctx context.Context, fieldID string, patch FieldPatch, immediate bool) {
	m.ops.UpdateSignature(ctx, fieldID, patch, immediate)
}

func (m *Manager) SetFontSize(ctx context.Context, fieldID string, size float64) {
	m.ops.UpdateSignatureFontSize(ctx, fieldID, size)
}

func (m *Manager) DeleteField(ctx context.Context, fieldID string) error {
	return m.ops.DeleteSignature(ctx, fieldID)
}

func (m *Manager) DuplicateField(ctx context.Context, fieldID string) (PlacedField, error) {
	return m.ops.DuplicateSignature(ctx, fieldID)
}

func (m *Manager) CopyFieldToAllPages(ctx context.Context, fieldID string) ([]PlacedField, error) {
	return m.ops.CopySignatureToAllPages(ctx, fieldID, m.numPages)
}

func (m *Manager) EnsureSigner(ctx context.Context, recipient Recipient) (string, error) {
	return m.registry.EnsureSigner(ctx, recipient)
}

func (m *Manager) SignerIDByEmail(email string) string {
	return m.registry.GetSignerIDByEmail(email)
}

func (m *Manager) SyncRecipients(ctx context.Context, recipients []Recipient) (created, failed int) {
	return m.registry.SyncRecipients(ctx, recipients)
}

// SyncStatus is the only externally visible signal of whether every
// field has reached the server.
func (m *Manager) SyncStatus() SyncStatus { return m.sync.Status() }

// Close ends the editing session, stopping any scheduled updates.
func (m *Manager) Close() { m.sync.Close() }
