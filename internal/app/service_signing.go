package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"easysign/api/internal/email"
	"easysign/api/internal/export"
	"easysign/api/internal/store"
)

// ── Signers ──

type SignerInput struct {
	Email     string
	Name      string
	SignOrder int
}

func (s *Service) AddSigner(ctx context.Context, session Session, documentID string, input SignerInput) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(doc); err != nil {
		return nil, err
	}

	addr := strings.ToLower(strings.TrimSpace(input.Email))
	if !emailPattern.MatchString(addr) {
		return nil, validationError("A valid email address is required", nil)
	}
	if input.SignOrder < 0 {
		return nil, validationError("signOrder cannot be negative", nil)
	}
	exists, err := s.store.SignerEmailExists(ctx, doc.ID, addr, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domainError(http.StatusConflict, "DUPLICATE_SIGNER", "A signer with this email already exists on the document", map[string]any{"email": addr})
	}

	signer, err := s.store.InsertSigner(ctx, doc.ID, addr, strings.TrimSpace(input.Name), input.SignOrder, uuid.NewString())
	if err != nil {
		return nil, err
	}

	s.audit(ctx, doc.ID, "signer_added", session.Email, "", "")
	s.reindexDocument(ctx, doc.ID)
	return map[string]any{"signer": signerPayload(signer)}, nil
}

func (s *Service) ListDocumentSigners(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	signers, err := s.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(signers))
	for _, sg := range signers {
		items = append(items, signerPayload(sg))
	}
	return map[string]any{"signers": items}, nil
}

func (s *Service) UpdateSigner(ctx context.Context, session Session, documentID, signerID string, emailAddr, name *string, signOrder *int) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(doc); err != nil {
		return nil, err
	}
	signer, err := s.requireDocumentSigner(ctx, doc.ID, signerID)
	if err != nil {
		return nil, err
	}

	if emailAddr != nil {
		addr := strings.ToLower(strings.TrimSpace(*emailAddr))
		if !emailPattern.MatchString(addr) {
			return nil, validationError("A valid email address is required", nil)
		}
		exists, err := s.store.SignerEmailExists(ctx, doc.ID, addr, signer.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domainError(http.StatusConflict, "DUPLICATE_SIGNER", "A signer with this email already exists on the document", map[string]any{"email": addr})
		}
		emailAddr = &addr
	}
	if signOrder != nil && *signOrder < 0 {
		return nil, validationError("signOrder cannot be negative", nil)
	}

	updated, err := s.store.UpdateSignerInfo(ctx, signer.ID, emailAddr, name, signOrder)
	if err != nil {
		return nil, err
	}
	s.reindexDocument(ctx, doc.ID)
	return map[string]any{"signer": signerPayload(updated)}, nil
}

// RemoveSigner deletes the signer; their fields go with them via the
// database cascade.
func (s *Service) RemoveSigner(ctx context.Context, session Session, documentID, signerID string) error {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return err
	}
	if err := requireDraft(doc); err != nil {
		return err
	}
	signer, err := s.requireDocumentSigner(ctx, doc.ID, signerID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteSigner(ctx, signer.ID); err != nil {
		return err
	}
	s.audit(ctx, doc.ID, "signer_removed", session.Email, "", "")
	s.reindexDocument(ctx, doc.ID)
	return nil
}

// ── Fields ──

type FieldInput struct {
	SignerID    string
	PageNumber  int
	X           float64
	Y           float64
	Width       float64
	Height      float64
	FieldType   string
	Required    *bool
	FontSize    float64
	FontFamily  string
	Color       string
	Alignment   string
	Placeholder *string
}

func (s *Service) AddField(ctx context.Context, session Session, documentID string, input FieldInput) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(doc); err != nil {
		return nil, err
	}
	if _, err := s.requireDocumentSigner(ctx, doc.ID, input.SignerID); err != nil {
		return nil, err
	}

	field := store.SignatureField{
		DocumentID:  doc.ID,
		SignerID:    input.SignerID,
		PageNumber:  input.PageNumber,
		X:           input.X,
		Y:           input.Y,
		Width:       input.Width,
		Height:      input.Height,
		FieldType:   input.FieldType,
		Required:    true,
		FontSize:    input.FontSize,
		FontFamily:  input.FontFamily,
		Color:       input.Color,
		Alignment:   input.Alignment,
		Placeholder: input.Placeholder,
	}
	if input.Required != nil {
		field.Required = *input.Required
	}
	applyFieldDefaults(&field)

	if err := validateFieldGeometry(field, doc.PageCount); err != nil {
		return nil, err
	}
	if _, ok := allowedFieldTypes[field.FieldType]; !ok {
		return nil, validationError(fmt.Sprintf("Unknown field type %q", field.FieldType), nil)
	}
	if _, ok := allowedAlignments[field.Alignment]; !ok {
		return nil, validationError(fmt.Sprintf("Unknown alignment %q", field.Alignment), nil)
	}

	created, err := s.store.InsertField(ctx, field)
	if err != nil {
		return nil, err
	}
	return map[string]any{"field": fieldPayload(created)}, nil
}

func (s *Service) ListDocumentFields(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListFields(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		items = append(items, fieldWithSignerPayload(f))
	}
	return map[string]any{"fields": items}, nil
}

func (s *Service) UpdateFieldByID(ctx context.Context, session Session, documentID, fieldID string, update store.FieldUpdate) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(doc); err != nil {
		return nil, err
	}
	field, err := s.requireDocumentField(ctx, doc.ID, fieldID)
	if err != nil {
		return nil, err
	}

	if update.PageNumber != nil && (*update.PageNumber < 1 || (doc.PageCount > 0 && *update.PageNumber > doc.PageCount)) {
		return nil, validationError("pageNumber is out of range", nil)
	}
	if (update.Width != nil && *update.Width <= 0) || (update.Height != nil && *update.Height <= 0) {
		return nil, validationError("width and height must be positive", nil)
	}
	if update.FontSize != nil && *update.FontSize <= 0 {
		return nil, validationError("fontSize must be positive", nil)
	}
	if update.Alignment != nil {
		if _, ok := allowedAlignments[*update.Alignment]; !ok {
			return nil, validationError(fmt.Sprintf("Unknown alignment %q", *update.Alignment), nil)
		}
	}

	updated, err := s.store.UpdateField(ctx, field.ID, update)
	if err != nil {
		return nil, err
	}
	return map[string]any{"field": fieldPayload(updated)}, nil
}

func (s *Service) RemoveField(ctx context.Context, session Session, documentID, fieldID string) error {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return err
	}
	if err := requireDraft(doc); err != nil {
		return err
	}
	field, err := s.requireDocumentField(ctx, doc.ID, fieldID)
	if err != nil {
		return err
	}
	return s.store.DeleteField(ctx, field.ID)
}

// ── Finalize and send ──

// Finalize locks the document for signing. Every signer must have at
// least one field.
func (s *Service) Finalize(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(doc); err != nil {
		return nil, err
	}

	signers, err := s.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(signers) == 0 {
		return nil, validationError("At least one signer is required", nil)
	}

	counts, err := s.store.FieldCountsBySigner(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, sg := range signers {
		if counts[sg.ID] == 0 {
			missing = append(missing, sg.Email)
		}
	}
	if len(missing) > 0 {
		return nil, validationError("Every signer needs at least one field", map[string]any{"signersWithoutFields": missing})
	}

	if err := s.store.SetDocumentStatus(ctx, doc.ID, store.DocumentPending); err != nil {
		return nil, err
	}
	if err := s.store.MarkSignersPending(ctx, doc.ID); err != nil {
		return nil, err
	}

	s.audit(ctx, doc.ID, "document_finalized", session.Email, "", "")
	s.reindexDocument(ctx, doc.ID)

	doc.Status = store.DocumentPending
	return map[string]any{"document": documentPayload(doc)}, nil
}

// Send emails signing invitations. With sign orders in play only the
// lowest unfinished order group is invited; a later Send (or a completed
// signature) advances to the next group.
func (s *Service) Send(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != store.DocumentPending {
		return nil, domainError(http.StatusConflict, "DOCUMENT_NOT_PENDING", "Document must be finalized before sending", map[string]any{"status": doc.Status})
	}

	sent, err := s.inviteCurrentGroup(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, doc.ID, "invitations_sent", session.Email, "", "")
	return map[string]any{"invited": sent}, nil
}

// inviteCurrentGroup emails every unfinished signer in the lowest
// outstanding sign order. Returns the invited email addresses.
func (s *Service) inviteCurrentGroup(ctx context.Context, doc store.Document) ([]string, error) {
	signers, err := s.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	minOrder := -1
	for _, sg := range signers {
		if sg.Status == store.SignerSigned {
			continue
		}
		if minOrder == -1 || sg.SignOrder < minOrder {
			minOrder = sg.SignOrder
		}
	}
	if minOrder == -1 {
		return []string{}, nil
	}

	owner, err := s.store.GetUserByID(ctx, doc.CreatedBy)
	if err != nil {
		return nil, err
	}

	invited := make([]string, 0, len(signers))
	for _, sg := range signers {
		if sg.Status == store.SignerSigned || sg.SignOrder != minOrder {
			continue
		}
		invited = append(invited, sg.Email)
		if s.email == nil || !s.email.IsConfigured() {
			continue
		}
		err := s.email.SendSigningInvitation(sg.Email, email.InvitationData{
			AppName:      "EasySign",
			SignerName:   sg.Name,
			SenderName:   owner.DisplayName,
			DocumentName: doc.FileName,
			Subject:      doc.Subject,
			Message:      doc.Message,
			SigningURL:   s.cfg.AppURL + "/sign/" + sg.SigningToken,
		})
		if err != nil {
			return nil, fmt.Errorf("send invitation to %s: %w", sg.Email, err)
		}
	}
	return invited, nil
}

// ── Public signing (token access, no session) ──

// SignerView loads the signing page data for a token. The first view
// moves a pending signer to seen.
func (s *Service) SignerView(ctx context.Context, token, ip, userAgent string) (map[string]any, error) {
	signer, err := s.store.GetSignerByToken(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "INVALID_TOKEN", "This signing link is not valid", nil)
		}
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, signer.DocumentID)
	if err != nil {
		return nil, err
	}

	if signer.Status == store.SignerPending {
		if err := s.store.SetSignerStatus(ctx, signer.ID, store.SignerSeen); err != nil {
			return nil, err
		}
		signer.Status = store.SignerSeen
		s.audit(ctx, doc.ID, "document_viewed", signer.Email, ip, userAgent)
	}

	fields, err := s.store.ListFieldsBySigner(ctx, signer.ID)
	if err != nil {
		return nil, err
	}
	fieldItems := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		fieldItems = append(fieldItems, fieldPayload(f))
	}

	var viewURL string
	if s.objects != nil {
		viewURL, _ = s.objects.ViewURL(ctx, doc.FileKey, doc.FileName)
	}

	return map[string]any{
		"document": map[string]any{
			"id":        doc.ID,
			"fileName":  doc.FileName,
			"pageCount": doc.PageCount,
			"status":    doc.Status,
			"subject":   doc.Subject,
			"message":   doc.Message,
		},
		"signer":  signerPayload(signer),
		"fields":  fieldItems,
		"viewUrl": viewURL,
	}, nil
}

// SubmitSignature records the signer's field values and completes the
// document once everyone has signed.
func (s *Service) SubmitSignature(ctx context.Context, token string, values map[string]string, ip, userAgent string) (map[string]any, error) {
	signer, err := s.store.GetSignerByToken(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "INVALID_TOKEN", "This signing link is not valid", nil)
		}
		return nil, err
	}
	if signer.Status == store.SignerSigned {
		return nil, domainError(http.StatusConflict, "ALREADY_SIGNED", "This document has already been signed", nil)
	}
	if signer.Status == store.SignerDraft {
		return nil, domainError(http.StatusConflict, "NOT_SENT", "This document is not open for signing yet", nil)
	}

	doc, err := s.store.GetDocument(ctx, signer.DocumentID)
	if err != nil {
		return nil, err
	}

	fields, err := s.store.ListFieldsBySigner(ctx, signer.ID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, f := range fields {
		if f.Required && strings.TrimSpace(values[f.ID]) == "" {
			missing = append(missing, f.ID)
		}
	}
	if len(missing) > 0 {
		return nil, validationError("All required fields must be filled", map[string]any{"missingFields": missing})
	}

	now := time.Now()
	for _, f := range fields {
		value, ok := values[f.ID]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := s.store.SetFieldValue(ctx, f.ID, value, now); err != nil {
			return nil, err
		}
	}
	if err := s.store.SetSignerStatus(ctx, signer.ID, store.SignerSigned); err != nil {
		return nil, err
	}
	s.audit(ctx, doc.ID, "document_signed", signer.Email, ip, userAgent)

	done, err := s.store.AllSignersSigned(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	documentStatus := doc.Status
	if done {
		if err := s.store.SetDocumentStatus(ctx, doc.ID, store.DocumentCompleted); err != nil {
			return nil, err
		}
		documentStatus = store.DocumentCompleted
		s.audit(ctx, doc.ID, "document_completed", signer.Email, "", "")
		s.notifyCompletion(ctx, doc)
	} else {
		// Ordered flows advance to the next group automatically.
		if _, err := s.inviteCurrentGroup(ctx, doc); err != nil {
			return nil, err
		}
	}
	s.reindexDocument(ctx, doc.ID)

	return map[string]any{
		"signerStatus":   store.SignerSigned,
		"documentStatus": documentStatus,
	}, nil
}

func (s *Service) notifyCompletion(ctx context.Context, doc store.Document) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	owner, err := s.store.GetUserByID(ctx, doc.CreatedBy)
	if err != nil {
		return
	}
	_ = s.email.SendCompletionNotice(owner.Email, email.CompletionData{
		AppName:      "EasySign",
		OwnerName:    owner.DisplayName,
		DocumentName: doc.FileName,
		DocumentURL:  s.cfg.AppURL + "/documents/" + doc.ID,
	})
}

// ── Certificate and audit ──

func (s *Service) Certificate(ctx context.Context, session Session, documentID string) (*export.Result, error) {
	if _, err := s.requireOwnedDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Certificate export not configured", nil)
	}
	return s.export.Certificate(ctx, documentID)
}

func (s *Service) AuditTrail(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"action":     e.Action,
			"actorEmail": e.ActorEmail,
			"ipAddress":  e.IPAddress,
			"userAgent":  e.UserAgent,
			"createdAt":  e.CreatedAt,
		})
	}
	return map[string]any{"audit": items}, nil
}

// ── helpers ──

func (s *Service) requireDocumentSigner(ctx context.Context, documentID, signerID string) (store.Signer, error) {
	signer, err := s.store.GetSigner(ctx, signerID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Signer{}, notFoundError("Signer not found")
		}
		return store.Signer{}, err
	}
	if signer.DocumentID != documentID {
		return store.Signer{}, notFoundError("Signer not found")
	}
	return signer, nil
}

func (s *Service) requireDocumentField(ctx context.Context, documentID, fieldID string) (store.SignatureField, error) {
	field, err := s.store.GetField(ctx, fieldID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.SignatureField{}, notFoundError("Field not found")
		}
		return store.SignatureField{}, err
	}
	if field.DocumentID != documentID {
		return store.SignatureField{}, notFoundError("Field not found")
	}
	return field, nil
}

func applyFieldDefaults(f *store.SignatureField) {
	if f.FieldType == "" {
		f.FieldType = "signature"
	}
	if f.PageNumber == 0 {
		f.PageNumber = 1
	}
	if f.FontSize == 0 {
		f.FontSize = 14
	}
	if f.FontFamily == "" {
		f.FontFamily = "Arial"
	}
	if f.Color == "" {
		f.Color = "#000000"
	}
	if f.Alignment == "" {
		f.Alignment = "left"
	}
}

func validateFieldGeometry(f store.SignatureField, pageCount int) error {
	if f.PageNumber < 1 || (pageCount > 0 && f.PageNumber > pageCount) {
		return validationError("pageNumber is out of range", nil)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return validationError("width and height must be positive", nil)
	}
	if f.X < 0 || f.Y < 0 {
		return validationError("x and y cannot be negative", nil)
	}
	if f.FontSize <= 0 {
		return validationError("fontSize must be positive", nil)
	}
	return nil
}

// certDataStore adapts the primary store to the certificate exporter.
type certDataStore struct {
	store dataStore
}

func NewCertificateSource(dataStore *store.PostgresStore) export.DataStore {
	return &certDataStore{store: dataStore}
}

func (c *certDataStore) GetCertificateData(ctx context.Context, documentID string) (export.CertificateData, error) {
	doc, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		return export.CertificateData{}, err
	}
	owner, err := c.store.GetUserByID(ctx, doc.CreatedBy)
	if err != nil {
		return export.CertificateData{}, err
	}
	signers, err := c.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return export.CertificateData{}, err
	}
	audit, err := c.store.ListAudit(ctx, doc.ID)
	if err != nil {
		return export.CertificateData{}, err
	}

	data := export.CertificateData{
		DocumentID:   doc.ID,
		DocumentName: doc.FileName,
		OwnerName:    owner.DisplayName,
		CompletedAt:  doc.UpdatedAt,
		GeneratedAt:  time.Now(),
	}
	for _, sg := range signers {
		var signedAt *time.Time
		fields, err := c.store.ListFieldsBySigner(ctx, sg.ID)
		if err == nil {
			for _, f := range fields {
				if f.SignedAt != nil && (signedAt == nil || f.SignedAt.After(*signedAt)) {
					signedAt = f.SignedAt
				}
			}
		}
		data.Signers = append(data.Signers, export.SignerInfo{
			Name:     sg.Name,
			Email:    sg.Email,
			Status:   sg.Status,
			SignedAt: signedAt,
		})
	}
	for _, e := range audit {
		data.Audit = append(data.Audit, export.AuditInfo{
			Action:     e.Action,
			ActorEmail: e.ActorEmail,
			IPAddress:  e.IPAddress,
			CreatedAt:  e.CreatedAt,
		})
	}
	return data, nil
}
