package sites

import (
	"context"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/geodesy"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/store"
)

// Radius bounds for fences derived from a surveyed boundary. A tiny parcel
// still needs enough fence to absorb GPS scatter; a sprawling one must not
// become a fence the size of a neighborhood.
const (
	minDerivedRadius = 50
	maxDerivedRadius = 400
)

// ImportShapefile upserts a job site per polygon in a boundary shapefile.
// Expected attributes: SITE_ID, NAME, and optionally ADDRESS. The geofence
// center is the polygon centroid and the radius is the distance to the
// farthest vertex, clamped to sane bounds. Records without a polygon or a
// SITE_ID are skipped.
func ImportShapefile(ctx context.Context, s store.Store, path string) (int, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "sites: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(idx int, name string) string {
		i, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		v := strings.TrimRight(reader.Attribute(i), "\x00")
		return strings.TrimSpace(v)
	}

	now := time.Now().UTC()
	count, skipped := 0, 0
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || len(poly.Points) == 0 {
			skipped++
			continue
		}
		siteID := attr(n, "site_id")
		if siteID == "" {
			skipped++
			continue
		}

		centerLat, centerLng, radius, err := fenceFromBoundary(poly)
		if err != nil {
			zap.L().Warn("sites: unusable boundary", zap.String("site_id", siteID), zap.Error(err))
			skipped++
			continue
		}

		site := model.JobSite{
			ID:      siteID,
			Name:    attr(n, "name"),
			Address: attr(n, "address"),
			Geofence: model.GeofenceDefinition{
				CenterLat:    centerLat,
				CenterLng:    centerLng,
				RadiusMeters: radius,
				Environment:  classifyByRadius(radius),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if site.Name == "" {
			site.Name = siteID
		}
		if err := s.UpsertJobSite(ctx, site); err != nil {
			return count, err
		}
		count++
	}

	if skipped > 0 {
		zap.L().Debug("sites: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	zap.L().Info("sites: shapefile import complete", zap.String("path", path), zap.Int("sites", count))
	return count, nil
}

// fenceFromBoundary reduces a boundary polygon to a circular fence: centroid
// plus a radius reaching the farthest vertex.
func fenceFromBoundary(poly *shp.Polygon) (lat, lng, radius float64, err error) {
	g, err := polygonToGeom(poly)
	if err != nil {
		return 0, 0, 0, err
	}
	centroid, err := xy.Centroid(g)
	if err != nil {
		return 0, 0, 0, eris.Wrap(err, "sites: polygon centroid")
	}
	lng, lat = centroid.X(), centroid.Y()

	for _, pt := range poly.Points {
		d := geodesy.Distance(lat, lng, pt.Y, pt.X)
		if d > radius {
			radius = d
		}
	}
	if radius < minDerivedRadius {
		radius = minDerivedRadius
	}
	if radius > maxDerivedRadius {
		radius = maxDerivedRadius
	}
	return lat, lng, radius, nil
}

// polygonToGeom converts a shapefile polygon to a go-geom polygon. Only the
// outer rings matter for a centroid at geofence precision.
func polygonToGeom(p *shp.Polygon) (*geom.Polygon, error) {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.New("sites: empty polygon")
	}

	out := geom.NewPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if err := out.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			return nil, eris.Wrap(err, "sites: build polygon ring")
		}
	}
	return out, nil
}

// classifyByRadius tags the environment class the derived radius implies, so
// reporting can group sites the same way adaptive fences do.
func classifyByRadius(radius float64) model.Environment {
	switch {
	case radius <= model.RadiusForEnvironment(model.EnvironmentUrban):
		return model.EnvironmentUrban
	case radius <= model.RadiusForEnvironment(model.EnvironmentSuburban):
		return model.EnvironmentSuburban
	default:
		return model.EnvironmentRural
	}
}
