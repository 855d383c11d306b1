package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIError is a structured failure from the persistence service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the document API for one document. It implements both
// SignerService and FieldService.
type Client struct {
	baseURL    string
	token      string
	documentID string
	http       *http.Client
}

func NewClient(baseURL, token, documentID string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		documentID: documentID,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

type signerJSON struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	SignOrder    int    `json:"signOrder"`
	Status       string `json:"status"`
	SigningToken string `json:"signingToken"`
}

type fieldJSON struct {
	ID          string     `json:"id"`
	SignerID    string     `json:"signerId"`
	PageNumber  int        `json:"pageNumber"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
	FieldType   string     `json:"fieldType"`
	Required    bool       `json:"required"`
	FontSize    float64    `json:"fontSize"`
	FontFamily  string     `json:"fontFamily"`
	Color       string     `json:"color"`
	Alignment   string     `json:"alignment"`
	Placeholder *string    `json:"placeholder"`
	Value       *string    `json:"value"`
	SignedAt    *time.Time `json:"signedAt"`
	Signer      *struct {
		Email string `json:"email"`
	} `json:"signer"`
}

func (c *Client) CreateSigner(ctx context.Context, email, name string, signOrder int) (SignerRecord, error) {
	body := map[string]any{"email": email, "name": name, "signOrder": signOrder}
	var out struct {
		Signer signerJSON `json:"signer"`
	}
	if err := c.do(ctx, http.MethodPost, "/signers", body, &out); err != nil {
		return SignerRecord{}, err
	}
	return signerRecord(out.Signer), nil
}

func (c *Client) DeleteSigner(ctx context.Context, signerID string) error {
	return c.do(ctx, http.MethodDelete, "/signers/"+signerID, nil, nil)
}

func (c *Client) ListSigners(ctx context.Context) ([]SignerRecord, error) {
	var out struct {
		Signers []signerJSON `json:"signers"`
	}
	if err := c.do(ctx, http.MethodGet, "/signers", nil, &out); err != nil {
		return nil, err
	}
	records := make([]SignerRecord, 0, len(out.Signers))
	for _, signer := range out.Signers {
		records = append(records, signerRecord(signer))
	}
	return records, nil
}

func (c *Client) CreateField(ctx context.Context, field PlacedField, signerID string) (FieldRecord, error) {
	body := map[string]any{
		"signerId":   signerID,
		"pageNumber": field.PageNumber,
		"x":          field.X,
		"y":          field.Y,
		"width":      field.Width,
		"height":     field.Height,
		"fieldType":  field.FieldType,
		"required":   field.Required,
		"fontSize":   field.FontSize,
		"fontFamily": field.FontFamily,
		"color":      field.Color,
		"alignment":  field.Alignment,
	}
	if field.Placeholder != "" {
		body["placeholder"] = field.Placeholder
	}
	var out struct {
		Field fieldJSON `json:"field"`
	}
	if err := c.do(ctx, http.MethodPost, "/fields", body, &out); err != nil {
		return FieldRecord{}, err
	}
	return fieldRecord(out.Field), nil
}

func (c *Client) UpdateField(ctx context.Context, fieldID string, patch FieldPatch) error {
	body := map[string]any{}
	if patch.X != nil {
		body["x"] = *patch.X
	}
	if patch.Y != nil {
		body["y"] = *patch.Y
	}
	if patch.Width != nil {
		body["width"] = *patch.Width
	}
	if patch.Height != nil {
		body["height"] = *patch.Height
	}
	if patch.PageNumber != nil {
		body["pageNumber"] = *patch.PageNumber
	}
	if patch.FontSize != nil {
		body["fontSize"] = *patch.FontSize
	}
	if patch.FontFamily != nil {
		body["fontFamily"] = *patch.FontFamily
	}
	if patch.Color != nil {
		body["color"] = *patch.Color
	}
	if patch.Alignment != nil {
		body["alignment"] = *patch.Alignment
	}
	if patch.Placeholder != nil {
		body["placeholder"] = *patch.Placeholder
	}
	if patch.Required != nil {
		body["required"] = *patch.Required
	}
	return c.do(ctx, http.MethodPatch, "/fields/"+fieldID, body, nil)
}

func (c *Client) DeleteField(ctx context.Context, fieldID string) error {
	return c.do(ctx, http.MethodDelete, "/fields/"+fieldID, nil, nil)
}

func (c *Client) ListFields(ctx context.Context) ([]FieldRecord, error) {
	var out struct {
		Fields []fieldJSON `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, "/fields", nil, &out); err != nil {
		return nil, err
	}
	records := make([]FieldRecord, 0, len(out.Fields))
	for _, field := range out.Fields {
		records = append(records, fieldRecord(field))
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	url := c.baseURL + "/api/documents/" + c.documentID + path
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var failure struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &APIError{Status: resp.StatusCode, Code: failure.Code, Message: failure.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func signerRecord(s signerJSON) SignerRecord {
	return SignerRecord{
		ID:           s.ID,
		Email:        s.Email,
		Name:         s.Name,
		SignOrder:    s.SignOrder,
		Status:       s.Status,
		SigningToken: s.SigningToken,
	}
}

func fieldRecord(f fieldJSON) FieldRecord {
	record := FieldRecord{
		ID:         f.ID,
		SignerID:   f.SignerID,
		PageNumber: f.PageNumber,
		X:          f.X,
		Y:          f.Y,
		Width:      f.Width,
		Height:     f.Height,
		FieldType:  f.FieldType,
		Required:   f.Required,
		FontSize:   f.FontSize,
		FontFamily: f.FontFamily,
		Color:      f.Color,
		Alignment:  f.Alignment,
		SignedAt:   f.SignedAt,
	}
	if f.Placeholder != nil {
		record.Placeholder = *f.Placeholder
	}
	if f.Value != nil {
		record.Value = *f.Value
	}
	if f.Signer != nil {
		record.SignerEmail = f.Signer.Email
	}
	return record
}
