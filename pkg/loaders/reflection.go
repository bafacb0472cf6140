package loaders

import (
	"strings"

	"github.com/querylens/querylens/pkg/dremio"
	"github.com/querylens/querylens/pkg/models"
)

// ReflectionFromWire maps a provider reflection onto the canonical
// record. Sizes arrive in bytes and are stored in megabytes.
func ReflectionFromWire(refl *dremio.Reflection) *models.ReflectionRecord {
	return &models.ReflectionRecord{
		ReflectionID:     refl.ID,
		Name:             refl.Name,
		Type:             refl.Type,
		DatasetID:        refl.DatasetID,
		DatasetPath:      strings.Join(refl.DatasetPath, "."),
		HitCount:         refl.HitCount,
		LastUsed:         refl.LastAccess.Ptr(),
		RefreshFrequency: refl.RefreshPolicy.RefreshSchedule,
		LastRefresh:      refl.LastRefresh.Ptr(),
		SizeMB:           float64(refl.CurrentSize) / bytesPerMB,
	}
}
