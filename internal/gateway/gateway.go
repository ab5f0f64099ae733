// Package gateway talks to the remote note service: listing folders
// and notes, fetching full note content, and downloading attachment
// bytes. All calls surface apperr.ErrAuth on credential rejection and
// apperr.ErrNetwork on transient failure after retries.
package gateway

import (
	"context"

	"github.com/willingning/minote-sync/internal/models"
)

// AttachmentPayload carries downloaded asset bytes together with the
// content type the transfer reported. The content type is the only
// trusted kind signal; surrounding markup is known to mislabel audio
// as images.
type AttachmentPayload struct {
	Data        []byte
	ContentType string
}

// Client is the remote gateway contract consumed by the engine.
type Client interface {
	ListFolders(ctx context.Context) ([]models.Folder, error)
	ListNotes(ctx context.Context) ([]models.NoteSummary, error)
	GetNoteContent(ctx context.Context, id string) (*models.NoteContent, error)

	// GetAttachment downloads one asset. kindHint is the classifier's
	// id-shape verdict; implementations may use it to pick the
	// download strategy (the service exposes separate endpoint types
	// for images and recordings).
	GetAttachment(ctx context.Context, id string, kindHint models.AttachmentKind) (*AttachmentPayload, error)
}
