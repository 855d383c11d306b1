package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgSearch is the fallback backend that queries Postgres directly. It is
// always available when the primary store is.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy reports whether the database connection is usable.
func (p *PgSearch) Healthy() bool {
	return p.db.Ping() == nil
}

// Search matches documents by name, subject, message, or signer email.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	pattern := "%" + q.Text + "%"
	args := []any{q.OwnerID, pattern}
	statusFilter := ""
	if q.FilterStatus != "" {
		args = append(args, q.FilterStatus)
		statusFilter = fmt.Sprintf("AND d.status = $%d", len(args))
	}
	args = append(args, limit, q.Offset)

	query := fmt.Sprintf(`
		SELECT d.id, d.file_name, COALESCE(d.subject, ''), d.status, d.created_by, COUNT(*) OVER()
		FROM documents d
		WHERE d.created_by = $1
			%s
			AND (
				d.file_name ILIKE $2
				OR d.subject ILIKE $2
				OR d.message ILIKE $2
				OR EXISTS (
					SELECT 1 FROM signers sg
					WHERE sg.document_id = d.id AND (sg.email ILIKE $2 OR sg.name ILIKE $2)
				)
			)
		ORDER BY d.updated_at DESC
		LIMIT $%d OFFSET $%d
	`, statusFilter, len(args)-1, len(args))

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.FileName, &r.Snippet, &r.Status, &r.OwnerID, &total); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every document into index records for a reindex.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.file_name, COALESCE(d.subject, ''), COALESCE(d.message, ''), d.status, d.created_by,
			COALESCE(ARRAY_AGG(sg.email) FILTER (WHERE sg.email IS NOT NULL), '{}')
		FROM documents d
		LEFT JOIN signers sg ON sg.document_id = d.id
		GROUP BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load index records: %w", err)
	}
	defer rows.Close()

	var records []DocumentRecord
	for rows.Next() {
		var rec DocumentRecord
		var emails []byte
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.Subject, &rec.Message, &rec.Status, &rec.OwnerID, &emails); err != nil {
			return nil, fmt.Errorf("scan index record: %w", err)
		}
		rec.SignerEmails = parsePgTextArray(string(emails))
		records = append(records, rec)
	}
	return records, rows.Err()
}

// parsePgTextArray handles the {a,b} wire form of a text[] column. Emails
// never contain commas or braces so no quote handling is needed.
func parsePgTextArray(raw string) []string {
	if len(raw) < 2 || raw == "{}" {
		return nil
	}
	inner := raw[1 : len(raw)-1]
	if inner == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(inner); i++ {
		if i == len(inner) || inner[i] == ',' {
			part := inner[start:i]
			if part != "" && part != "NULL" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
