package email

import (
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderInvitationTemplate(t *testing.T) {
	data := InvitationData{
		AppName:      "EasySign",
		SignerName:   "Jordan Lee",
		SenderName:   "Avery Smith",
		DocumentName: "Offer Letter.pdf",
		Message:      "Please sign before Friday.",
		SigningURL:   "https://example.com/sign/tok-abc123",
	}

	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Jordan Lee") {
		t.Error("template should contain signer name")
	}
	if !strings.Contains(html, "Avery Smith") {
		t.Error("template should contain sender name")
	}
	if !strings.Contains(html, "Offer Letter.pdf") {
		t.Error("template should contain document name")
	}
	if !strings.Contains(html, "Please sign before Friday.") {
		t.Error("template should contain the personal message")
	}
	if !strings.Contains(html, "https://example.com/sign/tok-abc123") {
		t.Error("template should contain signing URL")
	}
}

func TestRenderInvitationTemplateWithoutOptionalFields(t *testing.T) {
	data := InvitationData{
		AppName:      "EasySign",
		DocumentName: "NDA.pdf",
		SigningURL:   "https://example.com/sign/tok-xyz",
	}

	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Someone") {
		t.Error("template should fall back when sender name is empty")
	}
}

func TestRenderCompletionTemplate(t *testing.T) {
	data := CompletionData{
		AppName:      "EasySign",
		OwnerName:    "Avery Smith",
		DocumentName: "Offer Letter.pdf",
	}

	html, err := renderTemplate(completionEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Avery Smith") {
		t.Error("template should contain owner name")
	}
	if !strings.Contains(html, "Offer Letter.pdf") {
		t.Error("template should contain document name")
	}
}

func TestSendSigningInvitationUsesSubjectOverride(t *testing.T) {
	var captured []byte
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com"})
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured = msg
		return nil
	}

	err := svc.SendSigningInvitation("jordan@example.com", InvitationData{
		Subject:      "Contract ready for signature",
		DocumentName: "Contract.pdf",
		SigningURL:   "https://example.com/sign/tok-1",
	})
	if err != nil {
		t.Fatalf("SendSigningInvitation failed: %v", err)
	}

	if !strings.Contains(string(captured), "Subject: Contract ready for signature") {
		t.Error("message should carry the overridden subject")
	}
	if !strings.Contains(string(captured), "To: jordan@example.com") {
		t.Error("message should address the signer")
	}
}
