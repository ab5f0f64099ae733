// Package planner compares the remote catalog against the local
// manifest and decides, per note, whether any work is needed. This is
// the incremental core: an Unchanged verdict means the note's full
// content is never fetched, transformed, or resolved.
package planner

import (
	"github.com/willingning/minote-sync/internal/checksum"
	"github.com/willingning/minote-sync/internal/models"
)

// Action is the planner's verdict for one note.
type Action int

const (
	ActionNew Action = iota
	ActionChanged
	ActionUnchanged
)

func (a Action) String() string {
	switch a {
	case ActionNew:
		return "new"
	case ActionChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// Decision pairs a catalog note with its planned action.
type Decision struct {
	Note         models.Note
	Action       Action
	ExpectedHash string
}

// ExpectedHash fingerprints a note's pre-fetch identity: its id plus
// the opaque revision token. Any remote edit changes the revision and
// therefore the hash.
func ExpectedHash(n models.Note) string {
	return checksum.SumParts(n.ID, n.Revision)
}

// storedHash recomputes the same fingerprint from a manifest entry.
func storedHash(e models.ManifestEntry) string {
	return checksum.SumParts(e.NoteID, e.LastSyncedRevision)
}

// Plan classifies every catalog note as New, Changed, or Unchanged.
// exists reports whether a root-relative file is on disk; an entry
// whose file vanished is re-planned as Changed, upholding the
// invariant that a manifest entry always has its file present.
func Plan(notes []models.Note, entries map[string]models.ManifestEntry, exists func(rel string) bool) []Decision {
	out := make([]Decision, 0, len(notes))
	for _, n := range notes {
		expected := ExpectedHash(n)
		d := Decision{Note: n, ExpectedHash: expected}
		entry, ok := entries[n.ID]
		switch {
		case !ok:
			d.Action = ActionNew
		case storedHash(entry) != expected:
			d.Action = ActionChanged
		case exists != nil && !exists(entry.LocalPath):
			d.Action = ActionChanged
		default:
			d.Action = ActionUnchanged
		}
		out = append(out, d)
	}
	return out
}
