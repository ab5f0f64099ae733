// Package assets classifies and downloads embedded note attachments.
//
// The remote service represents some voice recordings through the same
// embedding mechanism as images; the markup-declared kind is therefore
// untrusted. Classification combines three signals, strongest last:
// the declared kind, the structural shape of the reference id, and the
// content type observed on the wire once the bytes arrive.
package assets

import (
	"net/http"
	"strings"

	"github.com/willingning/minote-sync/internal/models"
)

// Rule is the configurable id-shape classification rule. The exact
// length threshold is a property of the remote service's id scheme,
// so it lives in configuration rather than in code.
type Rule struct {
	AudioIDMinLength int
	AudioIDPrefixes  []string
}

// Classify returns the kind suggested by the reference id's shape,
// falling back to the declared kind. A long-form id wins over an
// "image" declaration: that is exactly the mislabeling this exists to
// correct.
func (r Rule) Classify(ref models.AttachmentRef) models.AttachmentKind {
	for _, p := range r.AudioIDPrefixes {
		if p != "" && strings.HasPrefix(ref.ID, p) {
			return models.KindAudio
		}
	}
	if r.AudioIDMinLength > 0 && len(ref.ID) >= r.AudioIDMinLength {
		return models.KindAudio
	}
	switch ref.DeclaredKind {
	case models.KindAudio, models.KindImage:
		return ref.DeclaredKind
	}
	return models.KindUnknown
}

// extByType maps transfer content types to file extensions. Matching
// is substring-based because the service emits variants like
// "audio/x-wav" and "image/jpeg; charset=binary".
var extByType = []struct {
	match string
	ext   string
	kind  models.AttachmentKind
}{
	{"amr", ".amr", models.KindAudio},
	{"wav", ".wav", models.KindAudio},
	{"mpeg", ".mp3", models.KindAudio},
	{"mp3", ".mp3", models.KindAudio},
	{"mp4", ".m4a", models.KindAudio},
	{"m4a", ".m4a", models.KindAudio},
	{"aac", ".aac", models.KindAudio},
	{"ogg", ".ogg", models.KindAudio},
	{"audio", ".mp3", models.KindAudio},
	{"png", ".png", models.KindImage},
	{"gif", ".gif", models.KindImage},
	{"webp", ".webp", models.KindImage},
	{"bmp", ".bmp", models.KindImage},
	{"jpeg", ".jpg", models.KindImage},
	{"jpg", ".jpg", models.KindImage},
	{"image", ".jpg", models.KindImage},
}

// resolveType settles the final kind and file extension from the
// transfer content type, sniffing the bytes when the header is absent
// or generic. Wire truth overrides the id-shape guess; when the wire
// says nothing useful the guess decides the fallback extension.
func resolveType(contentType string, data []byte, guess models.AttachmentKind) (models.AttachmentKind, string) {
	ct := strings.ToLower(contentType)
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = strings.ToLower(http.DetectContentType(data))
	}
	for _, e := range extByType {
		if strings.Contains(ct, e.match) {
			return e.kind, e.ext
		}
	}
	switch guess {
	case models.KindAudio:
		return models.KindAudio, ".mp3"
	case models.KindImage:
		return models.KindImage, ".jpg"
	}
	return models.KindUnknown, ".bin"
}
