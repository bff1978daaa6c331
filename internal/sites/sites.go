// Package sites imports job site definitions into the durable store, either
// from a YAML seed file or from a surveyed boundary shapefile.
package sites

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/store"
)

// seedFile is the YAML seed document layout.
type seedFile struct {
	Sites []seedSite `yaml:"sites"`
}

type seedSite struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Address      string  `yaml:"address"`
	Lat          float64 `yaml:"lat"`
	Lng          float64 `yaml:"lng"`
	RadiusMeters float64 `yaml:"radius_meters"`
	Environment  string  `yaml:"environment"`
	ShiftStart   string  `yaml:"shift_start"` // RFC 3339, optional
}

// ImportYAML upserts every site in a YAML seed file. Returns the number of
// sites imported.
func ImportYAML(ctx context.Context, s store.Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "sites: read seed %s", path)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, eris.Wrapf(err, "sites: parse seed %s", path)
	}

	now := time.Now().UTC()
	count := 0
	for _, ss := range seed.Sites {
		site, err := ss.toModel(now)
		if err != nil {
			return count, err
		}
		if err := s.UpsertJobSite(ctx, site); err != nil {
			return count, err
		}
		count++
	}

	zap.L().Info("sites: seed import complete", zap.String("path", path), zap.Int("sites", count))
	return count, nil
}

func (ss seedSite) toModel(now time.Time) (model.JobSite, error) {
	if ss.ID == "" || ss.Name == "" {
		return model.JobSite{}, eris.Errorf("sites: seed entry missing id or name (id=%q)", ss.ID)
	}

	site := model.JobSite{
		ID:      ss.ID,
		Name:    ss.Name,
		Address: ss.Address,
		Geofence: model.GeofenceDefinition{
			CenterLat:    ss.Lat,
			CenterLng:    ss.Lng,
			RadiusMeters: ss.RadiusMeters,
			Environment:  model.Environment(ss.Environment),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if ss.ShiftStart != "" {
		t, err := time.Parse(time.RFC3339, ss.ShiftStart)
		if err != nil {
			return model.JobSite{}, eris.Wrapf(err, "sites: seed entry %s: parse shift_start", ss.ID)
		}
		site.ShiftStart = &t
	}
	return site, nil
}
