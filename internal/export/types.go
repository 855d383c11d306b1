// Package export renders completion certificates for signed documents.
package export

import (
	"errors"
	"time"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// SignerInfo holds signer data printed on the certificate
type SignerInfo struct {
	Name     string
	Email    string
	Status   string
	SignedAt *time.Time
}

// AuditInfo holds one audit trail row printed on the certificate
type AuditInfo struct {
	Action     string
	ActorEmail string
	IPAddress  string
	CreatedAt  time.Time
}

// CertificateData is everything the certificate template needs
type CertificateData struct {
	DocumentID   string
	DocumentName string
	OwnerName    string
	CompletedAt  time.Time
	Signers      []SignerInfo
	Audit        []AuditInfo
	GeneratedAt  time.Time
}

var (
	// ErrNotCompleted indicates the document has unsigned signers.
	ErrNotCompleted = errors.New("export document not completed")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
