package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "simple title", title: "Offer Letter", want: "Offer-Letter"},
		{name: "special characters stripped", title: "Q3/Q4 Report (final)!", want: "Q3Q4-Report-final"},
		{name: "empty title", title: "", want: "document"},
		{name: "only special characters", title: "///***", want: "document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeFilename(tt.title); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilenameLimitsLength(t *testing.T) {
	long := strings.Repeat("a", 80)
	if got := sanitizeFilename(long); len(got) != 50 {
		t.Errorf("sanitizeFilename length = %d, want 50", len(got))
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Errorf("percentEncodeForDataURL = %q, want %q", got, "a%20b%2Bc")
	}
}

type fakeCertStore struct {
	data CertificateData
	err  error
}

func (f *fakeCertStore) GetCertificateData(ctx context.Context, documentID string) (CertificateData, error) {
	return f.data, f.err
}

func completedCertData() CertificateData {
	signedAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	return CertificateData{
		DocumentID:   "doc-1",
		DocumentName: "Offer Letter.pdf",
		OwnerName:    "Avery Smith",
		CompletedAt:  signedAt,
		Signers: []SignerInfo{
			{Name: "Jordan Lee", Email: "jordan@example.com", Status: "signed", SignedAt: &signedAt},
		},
		Audit: []AuditInfo{
			{Action: "document_sent", ActorEmail: "avery@example.com", IPAddress: "10.0.0.1", CreatedAt: signedAt},
			{Action: "document_signed", ActorEmail: "jordan@example.com", IPAddress: "10.0.0.2", CreatedAt: signedAt},
		},
	}
}

func TestRenderCertificateHTML(t *testing.T) {
	html, err := renderCertificateHTML(completedCertData())
	if err != nil {
		t.Fatalf("renderCertificateHTML failed: %v", err)
	}

	for _, want := range []string{"Offer Letter.pdf", "Jordan Lee", "jordan@example.com", "document_signed", "10.0.0.2", "Avery Smith"} {
		if !strings.Contains(html, want) {
			t.Errorf("certificate html missing %q", want)
		}
	}
	if !strings.Contains(html, "Mar 14, 2026") {
		t.Error("certificate html should format signed timestamps")
	}
}

func TestCertificateRequiresAllSigned(t *testing.T) {
	data := completedCertData()
	data.Signers = append(data.Signers, SignerInfo{Name: "Sam", Email: "sam@example.com", Status: "pending"})

	svc := NewService(&fakeCertStore{data: data})
	svc.render = func(html, title string) (*Result, error) {
		t.Fatal("render should not be called for incomplete documents")
		return nil, nil
	}

	_, err := svc.Certificate(context.Background(), "doc-1")
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}

func TestCertificateRendersCompletedDocument(t *testing.T) {
	svc := NewService(&fakeCertStore{data: completedCertData()})
	var captured string
	svc.render = func(html, title string) (*Result, error) {
		captured = html
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}

	result, err := svc.Certificate(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Certificate failed: %v", err)
	}
	if result.MimeType != "application/pdf" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	if !strings.HasSuffix(result.Filename, ".pdf") {
		t.Errorf("unexpected filename %q", result.Filename)
	}
	if !strings.Contains(captured, "Certificate of Completion") {
		t.Error("rendered html should contain the certificate heading")
	}
}
