package catalog

import (
	"fmt"

	"github.com/willingning/minote-sync/internal/models"
)

// Build normalizes raw note summaries into catalog records with folder
// paths resolved. A note referencing a folder id absent from the path
// map is placed at the root and reported, never dropped.
func Build(summaries []models.NoteSummary, paths map[string][]string) ([]models.Note, []models.Anomaly) {
	notes := make([]models.Note, 0, len(summaries))
	var anomalies []models.Anomaly
	for _, s := range summaries {
		var path []string
		if s.FolderID != "" {
			p, ok := paths[s.FolderID]
			if !ok {
				anomalies = append(anomalies, models.Anomaly{
					Kind:    AnomalyDanglingFolder,
					Subject: s.ID,
					Detail:  fmt.Sprintf("note %q references unknown folder %s; placed at root", s.Title, s.FolderID),
				})
			} else {
				path = append(path, p...)
			}
		}
		notes = append(notes, models.Note{NoteSummary: s, FolderPath: path})
	}
	return notes, anomalies
}
