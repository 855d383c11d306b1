package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// DataStore defines the data access the certificate needs
type DataStore interface {
	GetCertificateData(ctx context.Context, documentID string) (CertificateData, error)
}

// Service renders completion certificates
type Service struct {
	store DataStore

	// render is swappable for tests; defaults to headless Chrome.
	render func(html, title string) (*Result, error)
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store, render: renderPDF}
}

// Certificate renders the completion certificate PDF for a signed document.
// Every signer must have signed before a certificate exists.
func (s *Service) Certificate(ctx context.Context, documentID string) (*Result, error) {
	data, err := s.store.GetCertificateData(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load certificate data: %w", err)
	}

	for _, signer := range data.Signers {
		if signer.Status != "signed" {
			return nil, ErrNotCompleted
		}
	}

	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now().UTC()
	}

	html, err := renderCertificateHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}

	result, err := s.render(html, data.DocumentName+"-certificate")
	if err != nil {
		return nil, err
	}
	return result, nil
}

func renderCertificateHTML(data CertificateData) (string, error) {
	t := template.Must(template.New("certificate").Funcs(template.FuncMap{
		"fmtTime": func(v any) string {
			switch ts := v.(type) {
			case time.Time:
				return ts.UTC().Format("Jan 2, 2006 15:04 MST")
			case *time.Time:
				if ts != nil {
					return ts.UTC().Format("Jan 2, 2006 15:04 MST")
				}
			}
			return ""
		},
	}).Parse(certificateTemplate))

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const certificateTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Certificate of Completion</title>
    <style>
        body { font-family: Georgia, 'Times New Roman', serif; color: #222; margin: 0 auto; max-width: 720px; padding: 32px; }
        h1 { text-align: center; font-size: 26px; letter-spacing: 1px; border-bottom: 3px double #2e7d32; padding-bottom: 16px; }
        .meta { margin: 24px 0; font-size: 14px; }
        .meta dt { font-weight: bold; display: inline-block; width: 160px; }
        .meta dd { display: inline; margin: 0; }
        table { width: 100%; border-collapse: collapse; margin: 16px 0; font-size: 13px; }
        th, td { border: 1px solid #ccc; padding: 8px 10px; text-align: left; }
        th { background: #f0f4f0; }
        .footer { margin-top: 40px; font-size: 11px; color: #666; text-align: center; border-top: 1px solid #eee; padding-top: 12px; }
    </style>
</head>
<body>
    <h1>Certificate of Completion</h1>

    <dl class="meta">
        <div><dt>Document</dt><dd>{{.DocumentName}}</dd></div>
        <div><dt>Reference</dt><dd>{{.DocumentID}}</dd></div>
        <div><dt>Sent by</dt><dd>{{.OwnerName}}</dd></div>
        <div><dt>Completed</dt><dd>{{fmtTime .CompletedAt}}</dd></div>
    </dl>

    <h2>Signers</h2>
    <table>
        <tr><th>Name</th><th>Email</th><th>Status</th><th>Signed At</th></tr>
        {{range .Signers}}
        <tr>
            <td>{{.Name}}</td>
            <td>{{.Email}}</td>
            <td>{{.Status}}</td>
            <td>{{if .SignedAt}}{{fmtTime .SignedAt}}{{end}}</td>
        </tr>
        {{end}}
    </table>

    <h2>Audit Trail</h2>
    <table>
        <tr><th>Time</th><th>Action</th><th>Actor</th><th>IP Address</th></tr>
        {{range .Audit}}
        <tr>
            <td>{{fmtTime .CreatedAt}}</td>
            <td>{{.Action}}</td>
            <td>{{.ActorEmail}}</td>
            <td>{{.IPAddress}}</td>
        </tr>
        {{end}}
    </table>

    <div class="footer">
        Generated {{fmtTime .GeneratedAt}} &middot; This certificate records the electronic signature events for the document above.
    </div>
</body>
</html>`
