package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const signerColumns = `id, document_id, email, name, sign_order, status, signing_token, created_at, updated_at`

func scanSigner(scan func(...any) error) (Signer, error) {
	var sg Signer
	err := scan(&sg.ID, &sg.DocumentID, &sg.Email, &sg.Name, &sg.SignOrder, &sg.Status, &sg.SigningToken, &sg.CreatedAt, &sg.UpdatedAt)
	return sg, err
}

func (s *PostgresStore) InsertSigner(ctx context.Context, documentID, email, name string, signOrder int, signingToken string) (Signer, error) {
	query := `
		INSERT INTO signers (document_id, email, name, sign_order, signing_token)
		VALUES ($1, LOWER($2), $3, $4, $5)
		RETURNING ` + signerColumns
	sg, err := scanSigner(s.db.QueryRowContext(ctx, query, documentID, email, name, signOrder, signingToken).Scan)
	if err != nil {
		return Signer{}, fmt.Errorf("insert signer: %w", err)
	}
	return sg, nil
}

func (s *PostgresStore) GetSigner(ctx context.Context, signerID string) (Signer, error) {
	query := `SELECT ` + signerColumns + ` FROM signers WHERE id = $1`
	return scanSigner(s.db.QueryRowContext(ctx, query, signerID).Scan)
}

func (s *PostgresStore) GetSignerByToken(ctx context.Context, signingToken string) (Signer, error) {
	query := `SELECT ` + signerColumns + ` FROM signers WHERE signing_token = $1`
	return scanSigner(s.db.QueryRowContext(ctx, query, signingToken).Scan)
}

func (s *PostgresStore) ListSigners(ctx context.Context, documentID string) ([]Signer, error) {
	query := `SELECT ` + signerColumns + ` FROM signers WHERE document_id = $1 ORDER BY sign_order ASC, created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list signers: %w", err)
	}
	defer rows.Close()

	signers := []Signer{}
	for rows.Next() {
		sg, err := scanSigner(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		signers = append(signers, sg)
	}
	return signers, rows.Err()
}

func (s *PostgresStore) SignerEmailExists(ctx context.Context, documentID, email, excludeSignerID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM signers WHERE document_id=$1 AND email=LOWER($2) AND id<>$3)
	`, documentID, email, excludeSignerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check signer email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateSignerInfo(ctx context.Context, signerID string, email, name *string, signOrder *int) (Signer, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{signerID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if email != nil {
		add("email", strings.ToLower(*email))
	}
	if name != nil {
		add("name", *name)
	}
	if signOrder != nil {
		add("sign_order", *signOrder)
	}

	query := `UPDATE signers SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + signerColumns
	return scanSigner(s.db.QueryRowContext(ctx, query, args...).Scan)
}

func (s *PostgresStore) SetSignerStatus(ctx context.Context, signerID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE signers SET status=$2, updated_at=NOW() WHERE id=$1`, signerID, status)
	if err != nil {
		return fmt.Errorf("set signer status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSignersPending promotes every draft signer of a document to pending.
func (s *PostgresStore) MarkSignersPending(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE signers SET status=$2, updated_at=NOW() WHERE document_id=$1 AND status=$3
	`, documentID, SignerPending, SignerDraft)
	if err != nil {
		return fmt.Errorf("mark signers pending: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSigner(ctx context.Context, signerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM signers WHERE id=$1`, signerID)
	if err != nil {
		return fmt.Errorf("delete signer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) AllSignersSigned(ctx context.Context, documentID string) (bool, error) {
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM signers WHERE document_id=$1 AND status<>$2
	`, documentID, SignerSigned).Scan(&remaining)
	if err != nil {
		return false, fmt.Errorf("count unsigned signers: %w", err)
	}
	return remaining == 0, nil
}

func (s *PostgresStore) FieldCountsBySigner(ctx context.Context, documentID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signer_id, COUNT(*) FROM signature_fields WHERE document_id=$1 GROUP BY signer_id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("count fields by signer: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var signerID string
		var count int
		if err := rows.Scan(&signerID, &count); err != nil {
			return nil, fmt.Errorf("scan field count: %w", err)
		}
		counts[signerID] = count
	}
	return counts, rows.Err()
}

const fieldColumns = `id, document_id, signer_id, page_number, x, y, width, height,
	field_type, required, font_size, font_family, color, alignment, placeholder, value, signed_at, created_at, updated_at`

func scanField(scan func(...any) error) (SignatureField, error) {
	var f SignatureField
	err := scan(&f.ID, &f.DocumentID, &f.SignerID, &f.PageNumber, &f.X, &f.Y, &f.Width, &f.Height,
		&f.FieldType, &f.Required, &f.FontSize, &f.FontFamily, &f.Color, &f.Alignment,
		&f.Placeholder, &f.Value, &f.SignedAt, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *PostgresStore) InsertField(ctx context.Context, f SignatureField) (SignatureField, error) {
	query := `
		INSERT INTO signature_fields
			(document_id, signer_id, page_number, x, y, width, height,
			 field_type, required, font_size, font_family, color, alignment, placeholder)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + fieldColumns
	created, err := scanField(s.db.QueryRowContext(ctx, query,
		f.DocumentID, f.SignerID, f.PageNumber, f.X, f.Y, f.Width, f.Height,
		f.FieldType, f.Required, f.FontSize, f.FontFamily, f.Color, f.Alignment, f.Placeholder).Scan)
	if err != nil {
		return SignatureField{}, fmt.Errorf("insert field: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetField(ctx context.Context, fieldID string) (SignatureField, error) {
	query := `SELECT ` + fieldColumns + ` FROM signature_fields WHERE id = $1`
	return scanField(s.db.QueryRowContext(ctx, query, fieldID).Scan)
}

func (s *PostgresStore) ListFields(ctx context.Context, documentID string) ([]FieldWithSigner, error) {
	query := `
		SELECT f.id, f.document_id, f.signer_id, f.page_number, f.x, f.y, f.width, f.height,
			f.field_type, f.required, f.font_size, f.font_family, f.color, f.alignment,
			f.placeholder, f.value, f.signed_at, f.created_at, f.updated_at,
			sg.id, sg.email, sg.name, sg.status
		FROM signature_fields f
		JOIN signers sg ON sg.id = f.signer_id
		WHERE f.document_id = $1
		ORDER BY f.page_number ASC, f.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	fields := []FieldWithSigner{}
	for rows.Next() {
		var fw FieldWithSigner
		err := rows.Scan(&fw.ID, &fw.DocumentID, &fw.SignerID, &fw.PageNumber, &fw.X, &fw.Y, &fw.Width, &fw.Height,
			&fw.FieldType, &fw.Required, &fw.FontSize, &fw.FontFamily, &fw.Color, &fw.Alignment,
			&fw.Placeholder, &fw.Value, &fw.SignedAt, &fw.CreatedAt, &fw.UpdatedAt,
			&fw.Signer.ID, &fw.Signer.Email, &fw.Signer.Name, &fw.Signer.Status)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, fw)
	}
	return fields, rows.Err()
}

func (s *PostgresStore) ListFieldsBySigner(ctx context.Context, signerID string) ([]SignatureField, error) {
	query := `SELECT ` + fieldColumns + ` FROM signature_fields WHERE signer_id = $1 ORDER BY page_number ASC, created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, signerID)
	if err != nil {
		return nil, fmt.Errorf("list signer fields: %w", err)
	}
	defer rows.Close()

	fields := []SignatureField{}
	for rows.Next() {
		f, err := scanField(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (s *PostgresStore) UpdateField(ctx context.Context, fieldID string, update FieldUpdate) (SignatureField, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{fieldID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.X != nil {
		add("x", *update.X)
	}
	if update.Y != nil {
		add("y", *update.Y)
	}
	if update.Width != nil {
		add("width", *update.Width)
	}
	if update.Height != nil {
		add("height", *update.Height)
	}
	if update.PageNumber != nil {
		add("page_number", *update.PageNumber)
	}
	if update.FontSize != nil {
		add("font_size", *update.FontSize)
	}
	if update.FontFamily != nil {
		add("font_family", *update.FontFamily)
	}
	if update.Color != nil {
		add("color", *update.Color)
	}
	if update.Alignment != nil {
		add("alignment", *update.Alignment)
	}
	if update.Placeholder != nil {
		add("placeholder", *update.Placeholder)
	}
	if update.Required != nil {
		add("required", *update.Required)
	}

	query := `UPDATE signature_fields SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + fieldColumns
	return scanField(s.db.QueryRowContext(ctx, query, args...).Scan)
}

func (s *PostgresStore) SetFieldValue(ctx context.Context, fieldID, value string, signedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE signature_fields SET value=$2, signed_at=$3, updated_at=NOW() WHERE id=$1
	`, fieldID, value, signedAt)
	if err != nil {
		return fmt.Errorf("set field value: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteField(ctx context.Context, fieldID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM signature_fields WHERE id=$1`, fieldID)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
