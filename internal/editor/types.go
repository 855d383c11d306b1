// Package editor implements the client-side field placement session for a
// single document: optimistic local state, signer bookkeeping, and
// debounced reconciliation against the persistence API.
package editor

import (
	"context"
	"time"
)

// Recipient is a signer row as entered in the editor, before (or after)
// the matching signer record exists remotely.
type Recipient struct {
	ID            string
	Email         string
	Name          string
	IsCurrentUser bool
	SigningOrder  int
}

// PlacedField is the local mirror of a signature field. Geometry is
// expressed against a page rendered at a fixed reference width, so
// coordinates survive display scale changes.
type PlacedField struct {
	ID             string
	SignerID       string
	RecipientEmail string
	PageNumber     int
	X              float64
	Y              float64
	Width          float64
	Height         float64
	FieldType      string
	Required       bool
	FontSize       float64
	FontFamily     string
	Color          string
	Alignment      string
	Placeholder    string
	Value          string
	SignedAt       *time.Time
}

// FieldPatch is a partial field mutation. Nil members are not sent.
type FieldPatch struct {
	X           *float64
	Y           *float64
	Width       *float64
	Height      *float64
	PageNumber  *int
	FontSize    *float64
	FontFamily  *string
	Color       *string
	Alignment   *string
	Placeholder *string
	Required    *bool
}

// SignerRecord is a persisted signer as returned by the API.
type SignerRecord struct {
	ID           string
	Email        string
	Name         string
	SignOrder    int
	Status       string
	SigningToken string
}

// FieldRecord is a persisted field as returned by the API.
type FieldRecord struct {
	ID          string
	SignerID    string
	SignerEmail string
	PageNumber  int
	X           float64
	Y           float64
	Width       float64
	Height      float64
	FieldType   string
	Required    bool
	FontSize    float64
	FontFamily  string
	Color       string
	Alignment   string
	Placeholder string
	Value       string
	SignedAt    *time.Time
}

// SignerService is the remote signer API the session depends on.
type SignerService interface {
	CreateSigner(ctx context.Context, email, name string, signOrder int) (SignerRecord, error)
	DeleteSigner(ctx context.Context, signerID string) error
	ListSigners(ctx context.Context) ([]SignerRecord, error)
}

// FieldService is the remote field API the session depends on.
type FieldService interface {
	CreateField(ctx context.Context, field PlacedField, signerID string) (FieldRecord, error)
	UpdateField(ctx context.Context, fieldID string, patch FieldPatch) error
	DeleteField(ctx context.Context, fieldID string) error
	ListFields(ctx context.Context) ([]FieldRecord, error)
}

// SyncStatus is the saved/unsaved indicator surfaced to the UI.
type SyncStatus struct {
	SyncedCount  int
	PendingCount int
}
