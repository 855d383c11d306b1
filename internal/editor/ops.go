package editor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// duplicateOffset is the pixel nudge applied to duplicated fields so the
// copy does not sit exactly on top of its source.
const duplicateOffset = 16

// Operations is the optimistic mutation layer over the in-memory field
// list. Mutations apply locally first; persistence failures roll back
// creates and deletes but not geometry updates.
type Operations struct {
	mu     sync.Mutex
	fields []PlacedField
	sync   *FieldSync
}

func NewOperations(fieldSync *FieldSync) *Operations {
	return &Operations{sync: fieldSync}
}

// Fields returns a copy of the current local field list.
func (o *Operations) Fields() []PlacedField {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PlacedField, len(o.fields))
	copy(out, o.fields)
	return out
}

// SetFields replaces the local list, used when loading persisted state.
func (o *Operations) SetFields(fields []PlacedField) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields = fields
}

// CreateSignature appends the field locally, then persists it. On
// persistence failure the optimistic insert is removed.
func (o *Operations) CreateSignature(ctx context.Context, field PlacedField, signerID string) error {
	field.SignerID = signerID
	o.mu.Lock()
	o.fields = append(o.fields, field)
	o.mu.Unlock()

	if _, err := o.sync.CreateField(ctx, field, signerID); err != nil {
		o.removeLocal(field.ID)
		return err
	}
	return nil
}

// UpdateSignature merges the patch into local state and schedules the
// remote update. Remote failures are logged only; geometry drift is
// corrected by the next successful update.
func (o *Operations) UpdateSignature(ctx context.Context, fieldID string, patch FieldPatch, immediate bool) {
	o.mu.Lock()
	for i := range o.fields {
		if o.fields[i].ID == fieldID {
			applyPatch(&o.fields[i], patch)
			break
		}
	}
	o.mu.Unlock()

	if err := o.sync.UpdateField(ctx, fieldID, patch, immediate); err != nil {
		log.Printf("field update %s failed: %v", fieldID, err)
	}
}

// UpdateSignatureFontSize adjusts only the font size. Callers clamp the
// value to the allowed range before calling.
func (o *Operations) UpdateSignatureFontSize(ctx context.Context, fieldID string, size float64) {
	o.UpdateSignature(ctx, fieldID, FieldPatch{FontSize: &size}, false)
}

// DeleteSignature removes the field locally, then remotely. On remote
// failure the field is restored at its original position.
func (o *Operations) DeleteSignature(ctx context.Context, fieldID string) error {
	o.mu.Lock()
	index := -1
	var removed PlacedField
	for i := range o.fields {
		if o.fields[i].ID == fieldID {
			index = i
			removed = o.fields[i]
			break
		}
	}
	if index == -1 {
		o.mu.Unlock()
		return fmt.Errorf("field %s not found", fieldID)
	}
	o.fields = append(o.fields[:index], o.fields[index+1:]...)
	o.mu.Unlock()

	if err := o.sync.DeleteField(ctx, fieldID); err != nil {
		o.mu.Lock()
		if index > len(o.fields) {
			index = len(o.fields)
		}
		o.fields = append(o.fields[:index], append([]PlacedField{removed}, o.fields[index:]...)...)
		o.mu.Unlock()
		return err
	}
	return nil
}

// DuplicateSignature clones the field with a fresh id, offset on both
// axes, on the same page.
func (o *Operations) DuplicateSignature(ctx context.Context, fieldID string) (PlacedField, error) {
	o.mu.Lock()
	var source *PlacedField
	for i := range o.fields {
		if o.fields[i].ID == fieldID {
			source = &o.fields[i]
			break
		}
	}
	if source == nil {
		o.mu.Unlock()
		return PlacedField{}, fmt.Errorf("field %s not found", fieldID)
	}
	clone := *source
	o.mu.Unlock()

	clone.ID = o.sync.GenerateFieldID()
	clone.X += duplicateOffset
	clone.Y += duplicateOffset
	clone.Value = ""
	clone.SignedAt = nil

	if err := o.CreateSignature(ctx, clone, clone.SignerID); err != nil {
		return PlacedField{}, err
	}
	return clone, nil
}

// CopySignatureToAllPages clones the field onto every other page. Clones
// are appended locally as a batch and persisted concurrently; partial
// failures leave the succeeded copies in place.
func (o *Operations) CopySignatureToAllPages(ctx context.Context, fieldID string, numPages int) ([]PlacedField, error) {
	o.mu.Lock()
	var source *PlacedField
	for i := range o.fields {
		if o.fields[i].ID == fieldID {
			source = &o.fields[i]
			break
		}
	}
	if source == nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("field %s not found", fieldID)
	}
	src := *source

	clones := make([]PlacedField, 0, numPages-1)
	for page := 1; page <= numPages; page++ {
		if page == src.PageNumber {
			continue
		}
		clone := src
		clone.ID = o.sync.GenerateFieldID()
		clone.PageNumber = page
		clone.Value = ""
		clone.SignedAt = nil
		clones = append(clones, clone)
	}
	o.fields = append(o.fields, clones...)
	o.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int
	for _, clone := range clones {
		wg.Add(1)
		go func(field PlacedField) {
			defer wg.Done()
			if _, err := o.sync.CreateField(ctx, field, field.SignerID); err != nil {
				log.Printf("copy to page %d failed: %v", field.PageNumber, err)
				o.removeLocal(field.ID)
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(clone)
	}
	wg.Wait()

	if failures == len(clones) && len(clones) > 0 {
		return nil, fmt.Errorf("all %d page copies failed", failures)
	}
	return clones, nil
}

// RemoveSignaturesByEmail drops every field owned by the recipient from
// local state. Remote cleanup rides on the signer delete cascade, so no
// per-field delete requests are issued.
func (o *Operations) RemoveSignaturesByEmail(email string) int {
	needle := strings.ToLower(strings.TrimSpace(email))
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.fields[:0]
	removed := 0
	for _, field := range o.fields {
		if strings.ToLower(field.RecipientEmail) == needle {
			removed++
			continue
		}
		kept = append(kept, field)
	}
	o.fields = kept
	return removed
}

func (o *Operations) removeLocal(fieldID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.fields {
		if o.fields[i].ID == fieldID {
			o.fields = append(o.fields[:i], o.fields[i+1:]...)
			return
		}
	}
}

func applyPatch(field *PlacedField, patch FieldPatch) {
	if patch.X != nil {
		field.X = *patch.X
	}
	if patch.Y != nil {
		field.Y = *patch.Y
	}
	if patch.Width != nil {
		field.Width = *patch.Width
	}
	if patch.Height != nil {
		field.Height = *patch.Height
	}
	if patch.PageNumber != nil {
		field.PageNumber = *patch.PageNumber
	}
	if patch.FontSize != nil {
		field.FontSize = *patch.FontSize
	}
	if patch.FontFamily != nil {
		field.FontFamily = *patch.FontFamily
	}
	if patch.Color != nil {
		field.Color = *patch.Color
	}
	if patch.Alignment != nil {
		field.Alignment = *patch.Alignment
	}
	if patch.Placeholder != nil {
		field.Placeholder = *patch.Placeholder
	}
	if patch.Required != nil {
		field.Required = *patch.Required
	}
}
