package engine

import (
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/willingning/minote-sync/internal/catalog"
	"github.com/willingning/minote-sync/internal/models"
)

// notesDir is where note files live under the sync root; the manifest
// sits beside it at the root itself.
const notesDir = "Notes"

const timeLayout = "2006-01-02 15:04:05"

type frontmatter struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Folder  string `yaml:"folder,omitempty"`
	Created string `yaml:"created,omitempty"`
	Updated string `yaml:"updated,omitempty"`
}

// renderDocument composes the final Markdown file: YAML frontmatter,
// an H1 title, then the transformed body.
func renderDocument(n models.Note, body string) []byte {
	fm := frontmatter{
		ID:     n.ID,
		Title:  n.Title,
		Folder: strings.Join(n.FolderPath, "/"),
	}
	if !n.CreatedAt.IsZero() {
		fm.Created = n.CreatedAt.Format(timeLayout)
	}
	if !n.UpdatedAt.IsZero() {
		fm.Updated = n.UpdatedAt.Format(timeLayout)
	}

	var b strings.Builder
	b.WriteString("---\n")
	if data, err := yaml.Marshal(&fm); err == nil {
		b.Write(data)
	}
	b.WriteString("---\n\n")
	title := strings.TrimSpace(n.Title)
	if title != "" {
		b.WriteString("# " + strings.ReplaceAll(title, "\n", " ") + "\n\n")
	}
	b.WriteString(body)
	out := b.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out)
}

// notePaths assigns every note its root-relative file path. Notes in
// the same folder whose titles sanitize to the same name all get a
// short id-derived suffix, the same deterministic rule folders use.
func notePaths(notes []models.Note) map[string]string {
	type slot struct{ dir, base string }
	groups := make(map[slot][]string, len(notes))
	bases := make(map[string]slot, len(notes))
	for _, n := range notes {
		dir := path.Join(append([]string{notesDir}, n.FolderPath...)...)
		base := catalog.SanitizeName(n.Title, n.ID)
		s := slot{dir, base}
		groups[s] = append(groups[s], n.ID)
		bases[n.ID] = s
	}

	out := make(map[string]string, len(notes))
	for _, n := range notes {
		s := bases[n.ID]
		name := s.base
		if len(groups[s]) > 1 {
			name += "-" + catalog.ShortID(n.ID)
		}
		out[n.ID] = path.Join(s.dir, name+".md")
	}
	return out
}
