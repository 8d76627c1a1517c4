package seeds

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/EmpoweredVote/rep-lookup/internal/db"
	"github.com/EmpoweredVote/rep-lookup/internal/representatives"
	"github.com/EmpoweredVote/rep-lookup/internal/validate"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed demo.yaml
var demoData []byte

// Entry is one validated geography and the representatives serving it.
type Entry struct {
	Geography       validate.GeographyRecord
	Representatives []validate.RepresentativeRecord
}

// Summary counts what a Seed call wrote.
type Summary struct {
	Geographies     int
	Representatives int
	Mappings        int
	Pruned          int64
}

// Demo returns the embedded demo dataset.
func Demo() ([]Entry, error) {
	return Parse(demoData)
}

// Parse reads a YAML dataset with a top-level "geographies" list, each item
// holding geography fields and a "representatives" list. Every record goes
// through the body validators, so unknown keys are dropped.
func Parse(data []byte) ([]Entry, error) {
	var geos struct {
		Geographies []map[string]any `yaml:"geographies"`
	}
	if err := yaml.Unmarshal(data, &geos); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	var reps struct {
		Geographies []struct {
			Representatives []map[string]any `yaml:"representatives"`
		} `yaml:"geographies"`
	}
	if err := yaml.Unmarshal(data, &reps); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	entries := make([]Entry, 0, len(geos.Geographies))
	for i, raw := range geos.Geographies {
		g, err := validate.GeographyBody(raw)
		if err != nil {
			return nil, fmt.Errorf("geography #%d: %w", i+1, err)
		}
		e := Entry{Geography: g}
		for j, rawRep := range reps.Geographies[i].Representatives {
			r, err := validate.RepresentativeBody(rawRep)
			if err != nil {
				return nil, fmt.Errorf("geography %s, representative #%d: %w", g.ZipCode, j+1, err)
			}
			e.Representatives = append(e.Representatives, r)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Seed writes entries, one transaction per geography. Each representative is
// mapped at its own branch, and mappings of the geography to anyone not in
// the entry are removed.
func Seed(ctx context.Context, gdb *gorm.DB, entries []Entry, log *zap.Logger) (Summary, error) {
	var sum Summary
	for _, e := range entries {
		var (
			kept   int
			pruned int64
		)
		err := db.WithTx(ctx, gdb, func(tx *gorm.DB) error {
			geo := representatives.GeographyFromRecord(e.Geography)
			if err := representatives.UpsertGeography(tx, &geo); err != nil {
				return err
			}

			keep := make([]uint, 0, len(e.Representatives))
			for _, rec := range e.Representatives {
				rep := representatives.RepresentativeFromRecord(rec)
				if err := representatives.UpsertRepresentative(tx, &rep); err != nil {
					return err
				}
				if err := representatives.MapRepresentative(tx, rep.ID, geo.ID, rep.Branch); err != nil {
					return err
				}
				keep = append(keep, rep.ID)
			}

			n, err := representatives.PruneMappings(tx, geo.ID, keep)
			if err != nil {
				return err
			}
			kept, pruned = len(keep), n
			return nil
		})
		if err != nil {
			return sum, fmt.Errorf("seed %s: %w", e.Geography.ZipCode, err)
		}
		// Only committed work is counted.
		sum.Geographies++
		sum.Representatives += kept
		sum.Mappings += kept
		sum.Pruned += pruned
		log.Info("[seeds] seeded geography",
			zap.String("zip_code", e.Geography.ZipCode),
			zap.Int("representatives", len(e.Representatives)),
		)
	}
	return sum, nil
}

// SeedDemo loads the embedded demo dataset.
func SeedDemo(ctx context.Context, gdb *gorm.DB, log *zap.Logger) (Summary, error) {
	entries, err := Demo()
	if err != nil {
		return Summary{}, err
	}
	return Seed(ctx, gdb, entries, log)
}
