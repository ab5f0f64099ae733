// Package models defines the domain types for minote-sync.
package models

import "time"

// AttachmentKind classifies an embedded asset.
type AttachmentKind string

const (
	KindImage   AttachmentKind = "image"
	KindAudio   AttachmentKind = "audio"
	KindUnknown AttachmentKind = "unknown"
)

// Folder is a node in the remote folder hierarchy. ParentID is empty
// for root-level folders.
type Folder struct {
	ID       string
	Name     string
	ParentID string
}

// NoteSummary is the lightweight listing record returned by the remote
// service. Revision is an opaque version token; comparing it against
// the manifest decides whether full content is fetched at all.
type NoteSummary struct {
	ID        string
	FolderID  string
	Title     string
	Revision  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note is a catalog record: a summary with its folder path resolved.
// Immutable once built.
type Note struct {
	NoteSummary
	FolderPath []string
}

// AttachmentRef is an asset reference as embedded in note content,
// carrying the kind the surrounding markup claims.
type AttachmentRef struct {
	ID           string
	DeclaredKind AttachmentKind
}

// NoteContent is the full fetched body of a note.
type NoteContent struct {
	RawContent     string
	AttachmentRefs []AttachmentRef
}

// Attachment is a resolved asset. ResolvedKind is the classifier's
// verdict, which may contradict DeclaredKind; ContentType is the truth
// observed on the wire once fetched.
type Attachment struct {
	ID           string
	DeclaredKind AttachmentKind
	ResolvedKind AttachmentKind
	ContentType  string
	LocalPath    string
}

// ManifestEntry records a successfully synced note. It is written only
// after the note file and all of its attachments are durably on disk.
type ManifestEntry struct {
	NoteID             string
	ContentHash        string
	LocalPath          string
	AttachmentHashes   []string
	LastSyncedRevision string
	SyncedAt           time.Time
}

// Anomaly is a non-fatal structural oddity observed during a run
// (folder cycles, dangling folder references, name collisions).
type Anomaly struct {
	Kind    string
	Subject string
	Detail  string
}

// NoteFailure records a note that could not be synced.
type NoteFailure struct {
	NoteID string
	Title  string
	Err    string
}

// AttachmentFailure records a single attachment that could not be
// fetched; the owning note may still have been written.
type AttachmentFailure struct {
	NoteID       string
	AttachmentID string
	Err          string
}

// SyncReport aggregates the outcome of one run, in submission order.
type SyncReport struct {
	Created           []string
	Updated           []string
	Skipped           []string
	Failed            []NoteFailure
	FailedAttachments []AttachmentFailure
	Orphans           []string
	Anomalies         []Anomaly
}
