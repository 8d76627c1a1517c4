package representatives

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/db"
	"gorm.io/gorm"
)

// branchOrder sorts federal, state, local.
const branchOrder = "CASE r.branch WHEN 'federal' THEN 1 WHEN 'state' THEN 2 WHEN 'local' THEN 3 ELSE 4 END"

// Store resolves geographies and representatives. It only reads; writes go
// through the functions in ingest.go.
type Store struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

type StoreOption func(*Store)

// WithQueryTimeout bounds every store call. Zero leaves the caller's context
// untouched.
func WithQueryTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.queryTimeout = d }
}

func NewStore(gdb *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{db: gdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.queryTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		return s.db.WithContext(ctx), cancel
	}
	return s.db.WithContext(ctx), func() {}
}

// Ping reports whether storage is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Ping(ctx, s.db)
}

// ResolveByZip finds the geography with exactly this ZIP code.
func (s *Store) ResolveByZip(ctx context.Context, zip string) (*Geography, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	var g Geography
	err := q.Where("zip_code = ?", zip).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, zipNotFound(zip)
	}
	if err != nil {
		return nil, db.Wrap("resolve zip", err)
	}
	return &g, nil
}

// ResolveForGeography returns the representatives mapped to geographyID,
// active only unless f.IncludeInactive, optionally limited to f.Branch,
// ordered federal, state, local and then by name.
func (s *Store) ResolveForGeography(ctx context.Context, geographyID uint, f Filter) ([]RepresentativeRow, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	q = q.Table("representatives AS r").
		Select("r.*, m.jurisdiction_level").
		Joins("JOIN rep_geography_map m ON m.representative_id = r.id").
		Where("m.geography_id = ?", geographyID)
	if !f.IncludeInactive {
		q = q.Where("r.is_active = ?", true)
	}
	if f.Branch != "" {
		q = q.Where("r.branch = ?", f.Branch)
	}

	rows := []RepresentativeRow{}
	if err := q.Order(branchOrder).Order("r.name ASC").Order("r.id ASC").Scan(&rows).Error; err != nil {
		return nil, db.Wrap("resolve representatives", err)
	}
	return rows, nil
}

// Search finds active representatives matching every given criterion. Name
// and party match case-insensitively anywhere in the value; branch matches
// exactly; state matches through any mapped geography. A representative
// mapped to several matching geographies is returned once.
func (s *Store) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	if !p.HasCriteria() {
		return SearchResult{}, ErrInvalidSearch
	}

	q, cancel := s.conn(ctx)
	defer cancel()

	filters := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("representatives.is_active = ?", true)
		if p.Name != "" {
			tx = tx.Where("representatives.name ILIKE ?", containsPattern(p.Name))
		}
		if p.Party != "" {
			tx = tx.Where("representatives.party ILIKE ?", containsPattern(p.Party))
		}
		if p.Branch != "" {
			tx = tx.Where("representatives.branch = ?", p.Branch)
		}
		if p.State != "" {
			tx = tx.Where(`EXISTS (
				SELECT 1 FROM rep_geography_map m
				JOIN geography g ON g.id = m.geography_id
				WHERE m.representative_id = representatives.id AND g.state = ?)`, strings.ToUpper(p.State))
		}
		return tx
	}

	var total int64
	if err := q.Model(&Representative{}).Scopes(filters).Count(&total).Error; err != nil {
		return SearchResult{}, db.Wrap("count search", err)
	}

	reps := []Representative{}
	if total > 0 {
		err := q.Model(&Representative{}).Scopes(filters).
			Order("representatives.name ASC").Order("representatives.id ASC").
			Limit(p.Limit).Offset(p.Offset).
			Find(&reps).Error
		if err != nil {
			return SearchResult{}, db.Wrap("search", err)
		}
	}
	return SearchResult{Representatives: reps, TotalCount: total}, nil
}

// GetByID returns one representative, active or not, and the distinct
// geographies it serves.
func (s *Store) GetByID(ctx context.Context, id uint) (*Representative, []ServedArea, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	var rep Representative
	err := q.Where("id = ?", id).First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, representativeNotFound(id)
	}
	if err != nil {
		return nil, nil, db.Wrap("get representative", err)
	}

	// The outer join yields one all-NULL geography row when nothing is mapped.
	type areaRow struct {
		GeographyID           *uint
		ZipCode               *string
		City                  *string
		State                 *string
		StateName             *string
		County                *string
		CongressionalDistrict *string
		JurisdictionLevel     *string
	}
	var rows []areaRow
	err = q.Table("representatives AS r").
		Distinct("g.id AS geography_id", "g.zip_code", "g.city", "g.state", "g.state_name",
			"g.county", "g.congressional_district", "m.jurisdiction_level").
		Joins("LEFT JOIN rep_geography_map m ON m.representative_id = r.id").
		Joins("LEFT JOIN geography g ON g.id = m.geography_id").
		Where("r.id = ?", id).
		Order("g.zip_code").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, db.Wrap("served areas", err)
	}

	areas := make([]ServedArea, 0, len(rows))
	for _, r := range rows {
		if r.GeographyID == nil {
			continue
		}
		areas = append(areas, ServedArea{
			GeographyID:           *r.GeographyID,
			ZipCode:               deref(r.ZipCode),
			City:                  deref(r.City),
			State:                 deref(r.State),
			StateName:             deref(r.StateName),
			County:                deref(r.County),
			CongressionalDistrict: deref(r.CongressionalDistrict),
			JurisdictionLevel:     Branch(deref(r.JurisdictionLevel)),
		})
	}
	return &rep, areas, nil
}

// Stats counts representatives, geographies and mappings.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	st := Stats{ByBranch: make(map[Branch]int64, len(Branches))}
	for _, b := range Branches {
		st.ByBranch[b] = 0
	}

	if err := q.Model(&Representative{}).Count(&st.TotalRepresentatives).Error; err != nil {
		return Stats{}, db.Wrap("stats", err)
	}
	if err := q.Model(&Representative{}).Where("is_active = ?", true).Count(&st.ActiveRepresentatives).Error; err != nil {
		return Stats{}, db.Wrap("stats", err)
	}

	var byBranch []struct {
		Branch Branch
		Count  int64
	}
	err := q.Model(&Representative{}).
		Select("branch, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("branch").
		Scan(&byBranch).Error
	if err != nil {
		return Stats{}, db.Wrap("stats", err)
	}
	for _, b := range byBranch {
		st.ByBranch[b.Branch] = b.Count
	}

	if err := q.Model(&Geography{}).Count(&st.ZipCodes).Error; err != nil {
		return Stats{}, db.Wrap("stats", err)
	}
	if err := q.Model(&Geography{}).Distinct("state").Count(&st.States).Error; err != nil {
		return Stats{}, db.Wrap("stats", err)
	}
	if err := q.Model(&RepGeographyMap{}).Count(&st.Mappings).Error; err != nil {
		return Stats{}, db.Wrap("stats", err)
	}
	return st, nil
}

// containsPattern builds an ILIKE pattern matching s anywhere, with s's own
// wildcard characters taken literally.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
