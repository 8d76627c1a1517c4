package representatives

import (
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/validate"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The functions below are the write side used by seeding and the admin CLI.
// Each takes the transaction it should run in.

// GeographyFromRecord converts a validated geography document.
func GeographyFromRecord(rec validate.GeographyRecord) Geography {
	return Geography{
		ZipCode:               rec.ZipCode,
		City:                  rec.City,
		State:                 rec.State,
		StateName:             rec.StateName,
		County:                rec.County,
		CongressionalDistrict: rec.CongressionalDistrict,
		Latitude:              rec.Latitude,
		Longitude:             rec.Longitude,
	}
}

// RepresentativeFromRecord converts a validated representative document.
// Term dates were checked by the validator.
func RepresentativeFromRecord(rec validate.RepresentativeRecord) Representative {
	return Representative{
		Name:         rec.Name,
		Title:        rec.Title,
		Party:        rec.Party,
		Branch:       Branch(rec.Branch),
		OfficeType:   rec.OfficeType,
		Phone:        rec.Phone,
		Email:        rec.Email,
		Website:      rec.Website,
		PhotoURL:     rec.PhotoURL,
		AddressLine1: rec.AddressLine1,
		AddressLine2: rec.AddressLine2,
		AddressCity:  rec.AddressCity,
		AddressState: rec.AddressState,
		AddressZip:   rec.AddressZip,
		TermStart:    parseDate(rec.TermStart),
		TermEnd:      parseDate(rec.TermEnd),
		IsActive:     rec.Active(),
	}
}

// UpsertGeography inserts g or, when its ZIP exists, refreshes the row.
// g.ID is set either way.
func UpsertGeography(tx *gorm.DB, g *Geography) error {
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "zip_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"city", "state", "state_name", "county",
			"congressional_district", "latitude", "longitude", "updated_at",
		}),
	}).Create(g).Error
	if err != nil {
		return fmt.Errorf("upsert geography %s: %w", g.ZipCode, err)
	}
	return nil
}

// UpsertRepresentative matches an existing row by name and title and
// overwrites it, or inserts a new one. rep.ID is set either way.
func UpsertRepresentative(tx *gorm.DB, rep *Representative) error {
	var existing Representative
	err := tx.Select("id", "created_at").
		Where("name = ? AND title = ?", rep.Name, rep.Title).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(rep).Error; err != nil {
			return fmt.Errorf("insert representative %q: %w", rep.Name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find representative %q: %w", rep.Name, err)
	}

	rep.ID = existing.ID
	rep.CreatedAt = existing.CreatedAt
	if err := tx.Model(rep).Select("*").Omit("id", "created_at").Updates(rep).Error; err != nil {
		return fmt.Errorf("update representative %q: %w", rep.Name, err)
	}
	return nil
}

// MapRepresentative links a representative to a geography, replacing the
// jurisdiction level if the pair is already linked.
func MapRepresentative(tx *gorm.DB, representativeID, geographyID uint, level Branch) error {
	m := RepGeographyMap{
		RepresentativeID:  representativeID,
		GeographyID:       geographyID,
		JurisdictionLevel: level,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "representative_id"}, {Name: "geography_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"jurisdiction_level"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("map representative %d to geography %d: %w", representativeID, geographyID, err)
	}
	return nil
}

// PruneMappings removes the links of geographyID to any representative not
// in keep and returns how many were removed.
func PruneMappings(tx *gorm.DB, geographyID uint, keep []uint) (int64, error) {
	ids := make([]int64, len(keep))
	for i, id := range keep {
		ids[i] = int64(id)
	}

	q := tx.Where("geography_id = ?", geographyID)
	if len(ids) > 0 {
		q = q.Where("NOT (representative_id = ANY(?))", pq.Array(ids))
	}
	res := q.Delete(&RepGeographyMap{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune mappings for geography %d: %w", geographyID, res.Error)
	}
	return res.RowsAffected, nil
}

func parseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}
