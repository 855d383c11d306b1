package app

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"easysign/api/internal/auth"
	"easysign/api/internal/authpw"
	"easysign/api/internal/config"
	"easysign/api/internal/docstore"
	"easysign/api/internal/email"
	"easysign/api/internal/export"
	"easysign/api/internal/search"
	"easysign/api/internal/store"
	"easysign/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var allowedFieldTypes = map[string]struct{}{
	"signature": {},
	"initials":  {},
	"date":      {},
	"text":      {},
	"checkbox":  {},
}

var allowedAlignments = map[string]struct{}{
	"left":   {},
	"center": {},
	"right":  {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertDocument(ctx context.Context, fileName, fileKey string, pageCount int, createdBy string) (store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	ListDocumentsByOwner(context.Context, string) ([]store.Document, error)
	UpdateDocumentMeta(ctx context.Context, documentID string, fileName, subject, message *string) (store.Document, error)
	SetDocumentStatus(ctx context.Context, documentID, status string) error
	DeleteDocument(context.Context, string) error

	InsertSigner(ctx context.Context, documentID, email, name string, signOrder int, signingToken string) (store.Signer, error)
	GetSigner(context.Context, string) (store.Signer, error)
	GetSignerByToken(context.Context, string) (store.Signer, error)
	ListSigners(context.Context, string) ([]store.Signer, error)
	SignerEmailExists(ctx context.Context, documentID, email, excludeSignerID string) (bool, error)
	UpdateSignerInfo(ctx context.Context, signerID string, email, name *string, signOrder *int) (store.Signer, error)
	SetSignerStatus(ctx context.Context, signerID, status string) error
	MarkSignersPending(ctx context.Context, documentID string) error
	DeleteSigner(context.Context, string) error
	AllSignersSigned(context.Context, string) (bool, error)
	FieldCountsBySigner(context.Context, string) (map[string]int, error)

	InsertField(context.Context, store.SignatureField) (store.SignatureField, error)
	GetField(context.Context, string) (store.SignatureField, error)
	ListFields(context.Context, string) ([]store.FieldWithSigner, error)
	ListFieldsBySigner(context.Context, string) ([]store.SignatureField, error)
	UpdateField(ctx context.Context, fieldID string, update store.FieldUpdate) (store.SignatureField, error)
	SetFieldValue(ctx context.Context, fieldID, value string, signedAt time.Time) error
	DeleteField(context.Context, string) error

	InsertAudit(context.Context, store.AuditEntry) error
	ListAudit(context.Context, string) ([]store.AuditEntry, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Redis in production, Postgres when
// Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type objectStore interface {
	ObjectKey(ownerID, fileName string) string
	UploadURL(ctx context.Context, objectKey string) (string, error)
	ViewURL(ctx context.Context, objectKey, fileName string) (string, error)
	Remove(ctx context.Context, objectKey string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
}

type exportService interface {
	Certificate(ctx context.Context, documentID string) (*export.Result, error)
}

type emailSender interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendSigningInvitation(to string, data email.InvitationData) error
	SendCompletionNotice(to string, data email.CompletionData) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	email    emailSender
	objects  objectStore
	search   searchService
	export   exportService
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		search:   searchService,
	}
}

// NewWithSessionStore uses a dedicated refresh token backend instead of
// the primary database.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchService *search.Service) *Service {
	svc := New(cfg, dataStore, searchService)
	svc.sessions = sessions
	return svc
}

func (s *Service) SetAuthPasswordService(authSvc *authpw.Service) {
	s.authpw = authSvc
}

func (s *Service) SetEmailService(emailSvc *email.Service) {
	s.email = emailSvc
}

func (s *Service) SetObjectStore(objects *docstore.Service) {
	s.objects = objects
}

func (s *Service) SetExportService(exportSvc *export.Service) {
	s.export = exportSvc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	sessionUser, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Reload the profile so renamed users get fresh claims.
	user, err := s.store.GetUserByID(ctx, sessionUser.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Email:     claims.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ── Documents ──

// CreateUploadURL reserves a storage key and presigns the browser upload.
func (s *Service) CreateUploadURL(ctx context.Context, session Session, fileName string) (map[string]any, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, validationError("fileName is required", nil)
	}
	if s.objects == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}

	fileKey := s.objects.ObjectKey(session.UserID, fileName)
	uploadURL, err := s.objects.UploadURL(ctx, fileKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"uploadUrl": uploadURL,
		"fileKey":   fileKey,
	}, nil
}

func (s *Service) CreateDocument(ctx context.Context, session Session, fileName, fileKey string, pageCount int) (map[string]any, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, validationError("fileName is required", nil)
	}
	if strings.TrimSpace(fileKey) == "" {
		return nil, validationError("fileKey is required", nil)
	}
	if pageCount < 1 {
		pageCount = 1
	}

	doc, err := s.store.InsertDocument(ctx, fileName, fileKey, pageCount, session.UserID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, doc.ID, "document_created", session.Email, "", "")
	s.reindexDocument(ctx, doc.ID)
	return map[string]any{"document": documentPayload(doc)}, nil
}

func (s *Service) ListDocuments(ctx context.Context, session Session) (map[string]any, error) {
	docs, err := s.store.ListDocumentsByOwner(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentPayload(doc))
	}
	return map[string]any{"documents": items}, nil
}

// GetDocumentDetail returns the document with its signers and fields, the
// editor's full working set.
func (s *Service) GetDocumentDetail(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}

	signers, err := s.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListFields(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	signerItems := make([]map[string]any, 0, len(signers))
	for _, sg := range signers {
		signerItems = append(signerItems, signerPayload(sg))
	}
	fieldItems := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		fieldItems = append(fieldItems, fieldWithSignerPayload(f))
	}

	return map[string]any{
		"document": documentPayload(doc),
		"signers":  signerItems,
		"fields":   fieldItems,
	}, nil
}

func (s *Service) UpdateDocument(ctx context.Context, session Session, documentID string, fileName, subject, message *string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireDraft(doc); err != nil {
		return nil, err
	}
	if fileName != nil && strings.TrimSpace(*fileName) == "" {
		return nil, validationError("fileName cannot be empty", nil)
	}
	if fileName == nil && subject == nil && message == nil {
		return map[string]any{"document": documentPayload(doc)}, nil
	}

	updated, err := s.store.UpdateDocumentMeta(ctx, doc.ID, fileName, subject, message)
	if err != nil {
		return nil, err
	}
	s.reindexDocument(ctx, updated.ID)
	return map[string]any{"document": documentPayload(updated)}, nil
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if s.objects != nil && doc.FileKey != "" {
		_ = s.objects.Remove(ctx, doc.FileKey)
	}
	if s.search != nil {
		s.search.DeleteDocument(doc.ID)
	}
	return nil
}

// ViewURL presigns a read link for the stored file.
func (s *Service) ViewURL(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, err := s.requireOwnedDocument(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	if s.objects == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}
	viewURL, err := s.objects.ViewURL(ctx, doc.FileKey, doc.FileName)
	if err != nil {
		return nil, err
	}
	return map[string]any{"viewUrl": viewURL}, nil
}

func (s *Service) Search(ctx context.Context, session Session, text, status string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:         text,
		OwnerID:      session.UserID,
		FilterStatus: status,
		Limit:        limit,
		Offset:       offset,
	}), nil
}

// ── helpers ──

func (s *Service) requireOwnedDocument(ctx context.Context, session Session, documentID string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Document{}, notFoundError("Document not found")
		}
		return store.Document{}, err
	}
	if doc.CreatedBy != session.UserID {
		return store.Document{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return doc, nil
}

func requireDraft(doc store.Document) error {
	if doc.Status != store.DocumentDraft {
		return domainError(http.StatusConflict, "DOCUMENT_NOT_DRAFT", "Document is no longer editable", map[string]any{"status": doc.Status})
	}
	return nil
}

func (s *Service) audit(ctx context.Context, documentID, action, actorEmail, ip, userAgent string) {
	_ = s.store.InsertAudit(ctx, store.AuditEntry{
		DocumentID: documentID,
		Action:     action,
		ActorEmail: actorEmail,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
}

// reindexDocument pushes the document's current state into the search
// index. Index writes are best effort.
func (s *Service) reindexDocument(ctx context.Context, documentID string) {
	if s.search == nil {
		return
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return
	}
	signers, err := s.store.ListSigners(ctx, documentID)
	if err != nil {
		return
	}
	emails := make([]string, 0, len(signers))
	for _, sg := range signers {
		emails = append(emails, sg.Email)
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:           doc.ID,
		FileName:     doc.FileName,
		Subject:      doc.Subject,
		Message:      doc.Message,
		Status:       doc.Status,
		OwnerID:      doc.CreatedBy,
		SignerEmails: emails,
	})
}

func documentPayload(doc store.Document) map[string]any {
	return map[string]any{
		"id":        doc.ID,
		"fileName":  doc.FileName,
		"fileKey":   doc.FileKey,
		"pageCount": doc.PageCount,
		"status":    doc.Status,
		"subject":   doc.Subject,
		"message":   doc.Message,
		"createdBy": doc.CreatedBy,
		"createdAt": doc.CreatedAt,
		"updatedAt": doc.UpdatedAt,
	}
}

func signerPayload(sg store.Signer) map[string]any {
	return map[string]any{
		"id":         sg.ID,
		"documentId": sg.DocumentID,
		"email":      sg.Email,
		"name":       sg.Name,
		"signOrder":  sg.SignOrder,
		"status":     sg.Status,
		"createdAt":  sg.CreatedAt,
		"updatedAt":  sg.UpdatedAt,
	}
}

func fieldPayload(f store.SignatureField) map[string]any {
	return map[string]any{
		"id":          f.ID,
		"documentId":  f.DocumentID,
		"signerId":    f.SignerID,
		"pageNumber":  f.PageNumber,
		"x":           f.X,
		"y":           f.Y,
		"width":       f.Width,
		"height":      f.Height,
		"fieldType":   f.FieldType,
		"required":    f.Required,
		"fontSize":    f.FontSize,
		"fontFamily":  f.FontFamily,
		"color":       f.Color,
		"alignment":   f.Alignment,
		"placeholder": f.Placeholder,
		"value":       f.Value,
		"signedAt":    f.SignedAt,
	}
}

func fieldWithSignerPayload(f store.FieldWithSigner) map[string]any {
	payload := fieldPayload(f.SignatureField)
	payload["signer"] = map[string]any{
		"id":     f.Signer.ID,
		"email":  f.Signer.Email,
		"name":   f.Signer.Name,
		"status": f.Signer.Status,
	}
	return payload
}
