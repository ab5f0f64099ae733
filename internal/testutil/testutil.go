// Package testutil provides shared test helpers: temp sync roots,
// manifest stores, and a scripted in-memory gateway.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/willingning/minote-sync/internal/gateway"
	"github.com/willingning/minote-sync/internal/manifest"
	"github.com/willingning/minote-sync/internal/models"
	"github.com/willingning/minote-sync/internal/storage"
)

// TestStore creates a temporary manifest store that is cleaned up with
// the test.
func TestStore(t *testing.T) *manifest.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "minote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := manifest.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestRoot creates a temporary sync root.
func TestRoot(t *testing.T) (string, *storage.Root) {
	t.Helper()
	dir := t.TempDir()
	root, err := storage.NewRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, root
}

// ReadFile reads a file under dir, failing the test on error.
func ReadFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// FakeGateway is a scripted gateway.Client. Zero value is usable;
// populate the fields a test needs.
type FakeGateway struct {
	Folders     []models.Folder
	Notes       []models.NoteSummary
	Contents    map[string]*models.NoteContent
	Attachments map[string]*gateway.AttachmentPayload

	ListFoldersErr error
	ListNotesErr   error
	ContentErr     map[string]error
	AttachmentErr  map[string]error

	mu              sync.Mutex
	ContentCalls    map[string]int
	AttachmentCalls map[string]int
}

func (f *FakeGateway) ListFolders(context.Context) ([]models.Folder, error) {
	if f.ListFoldersErr != nil {
		return nil, f.ListFoldersErr
	}
	return f.Folders, nil
}

func (f *FakeGateway) ListNotes(context.Context) ([]models.NoteSummary, error) {
	if f.ListNotesErr != nil {
		return nil, f.ListNotesErr
	}
	return f.Notes, nil
}

func (f *FakeGateway) GetNoteContent(_ context.Context, id string) (*models.NoteContent, error) {
	f.mu.Lock()
	if f.ContentCalls == nil {
		f.ContentCalls = make(map[string]int)
	}
	f.ContentCalls[id]++
	f.mu.Unlock()

	if err := f.ContentErr[id]; err != nil {
		return nil, err
	}
	c, ok := f.Contents[id]
	if !ok {
		return &models.NoteContent{}, nil
	}
	return c, nil
}

func (f *FakeGateway) GetAttachment(_ context.Context, id string, _ models.AttachmentKind) (*gateway.AttachmentPayload, error) {
	f.mu.Lock()
	if f.AttachmentCalls == nil {
		f.AttachmentCalls = make(map[string]int)
	}
	f.AttachmentCalls[id]++
	f.mu.Unlock()

	if err := f.AttachmentErr[id]; err != nil {
		return nil, err
	}
	p, ok := f.Attachments[id]
	if !ok {
		return &gateway.AttachmentPayload{Data: []byte("data"), ContentType: "image/jpeg"}, nil
	}
	return p, nil
}

var _ gateway.Client = (*FakeGateway)(nil)
