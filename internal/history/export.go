package history

import (
	"encoding/json"
	"fmt"

	"aistudio/internal/domain"
	"aistudio/internal/imaging"
	"aistudio/pkg/zip"
)

// ManifestName is the archive entry listing the exported history.
const ManifestName = "history.json"

// Export converts entries into archive assets: one image file per entry
// whose ImageURL is a data URL, plus a manifest in which those URLs are
// replaced by the file names.
func Export(entries []domain.HistoryEntry) ([]zip.Asset, error) {
	assets := make([]zip.Asset, 0, len(entries)+1)
	manifest := make([]domain.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		mimeType, data, err := imaging.ParseDataURL(entry.ImageURL)
		if err != nil {
			manifest = append(manifest, entry)
			continue
		}
		name := entry.ID + imaging.Extension(mimeType)
		assets = append(assets, zip.Asset{
			Filename: name,
			MIME:     mimeType,
			Data:     data,
			Modified: entry.CreatedAt,
		})
		entry.ImageURL = name
		manifest = append(manifest, entry)
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("history: encode manifest: %w", err)
	}
	return append(assets, zip.Asset{Filename: ManifestName, MIME: "application/json", Data: raw}), nil
}
