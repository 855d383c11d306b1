package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Document lifecycle: draft -> pending -> completed.
type Document struct {
	ID        string
	FileName  string
	FileKey   string
	PageCount int
	Status    string
	Subject   string
	Message   string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Signer lifecycle is monotonic: draft -> pending -> seen -> signed.
// Seen is optional and set on first view of the signing page.
type Signer struct {
	ID           string
	DocumentID   string
	Email        string
	Name         string
	SignOrder    int
	Status       string
	SigningToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SignerSummary is the slice of signer data embedded in field listings.
type SignerSummary struct {
	ID     string
	Email  string
	Name   string
	Status string
}

// SignatureField geometry is expressed against a page rendered at a fixed
// reference width, independent of display scale.
type SignatureField struct {
	ID          string
	DocumentID  string
	SignerID    string
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
	Placeholder *string
	Value       *string
	SignedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type FieldWithSigner struct {
	SignatureField
	Signer SignerSummary
}

// FieldUpdate carries a partial field mutation; nil members are left untouched.
type FieldUpdate struct {
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

type AuditEntry struct {
	ID         int64
	DocumentID string
	Action     string
	ActorEmail string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

const (
	DocumentDraft     = "draft"
	DocumentPending   = "pending"
	DocumentCompleted = "completed"

	SignerDraft   = "draft"
	SignerPending = "pending"
	SignerSeen    = "seen"
	SignerSigned  = "signed"
)
