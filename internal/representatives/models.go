package representatives

import (
	"time"
)

// Branch is the closed government-level enumeration used both for a
// representative's own branch and for a mapping's jurisdiction_level. The two
// are independent: nothing requires them to agree.
type Branch string

const (
	BranchFederal Branch = "federal"
	BranchState   Branch = "state"
	BranchLocal   Branch = "local"
)

var Branches = []Branch{BranchFederal, BranchState, BranchLocal}

// ParseBranch accepts the lowercase enum value.
func ParseBranch(s string) (Branch, bool) {
	for _, b := range Branches {
		if string(b) == s {
			return b, true
		}
	}
	return "", false
}

// Priority orders federal before state before local.
func (b Branch) Priority() int {
	switch b {
	case BranchFederal:
		return 1
	case BranchState:
		return 2
	case BranchLocal:
		return 3
	}
	return 4
}

type Geography struct {
	ID                    uint      `json:"id" gorm:"primaryKey"`
	ZipCode               string    `json:"zip_code" gorm:"size:5;not null;uniqueIndex"`
	City                  string    `json:"city" gorm:"size:100;not null"`
	State                 string    `json:"state" gorm:"size:2;not null;index"`
	StateName             string    `json:"state_name" gorm:"size:50"`
	County                string    `json:"county" gorm:"size:100"`
	CongressionalDistrict string    `json:"congressional_district" gorm:"size:10"`
	Latitude              *float64  `json:"latitude" gorm:"type:numeric(10,8)"`
	Longitude             *float64  `json:"longitude" gorm:"type:numeric(11,8)"`
	CreatedAt             time.Time `json:"-"`
	UpdatedAt             time.Time `json:"-"`
}

type Representative struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Name         string     `json:"name" gorm:"size:255;not null;index"`
	Title        string     `json:"title" gorm:"size:255;not null"`
	Party        *string    `json:"party" gorm:"size:100"`
	Branch       Branch     `json:"branch" gorm:"type:varchar(10);not null;index;check:chk_representatives_branch,branch IN ('federal','state','local')"`
	OfficeType   *string    `json:"office_type" gorm:"size:100"`
	Phone        *string    `json:"phone" gorm:"size:20"`
	Email        *string    `json:"email" gorm:"size:255"`
	Website      *string    `json:"website" gorm:"size:500"`
	PhotoURL     *string    `json:"photo_url" gorm:"size:500"`
	AddressLine1 *string    `json:"address_line1" gorm:"size:255"`
	AddressLine2 *string    `json:"address_line2" gorm:"size:255"`
	AddressCity  *string    `json:"address_city" gorm:"size:100"`
	AddressState *string    `json:"address_state" gorm:"size:2"`
	AddressZip   *string    `json:"address_zip" gorm:"size:10"`
	TermStart    *time.Time `json:"term_start" gorm:"type:date"`
	TermEnd      *time.Time `json:"term_end" gorm:"type:date"`
	IsActive     bool       `json:"is_active" gorm:"not null;index"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"-"`
}

// RepGeographyMap links a representative to a geography it serves. The pair
// is unique; deleting either side removes the link.
type RepGeographyMap struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	RepresentativeID  uint            `json:"representative_id" gorm:"not null;uniqueIndex:idx_rep_geography_pair;index"`
	GeographyID       uint            `json:"geography_id" gorm:"not null;uniqueIndex:idx_rep_geography_pair;index"`
	JurisdictionLevel Branch          `json:"jurisdiction_level" gorm:"type:varchar(10);not null;check:chk_rep_geography_map_level,jurisdiction_level IN ('federal','state','local')"`
	Representative    *Representative `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Geography         *Geography      `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time       `json:"-"`
}

func (Geography) TableName() string {
	return "geography"
}

func (Representative) TableName() string {
	return "representatives"
}

func (RepGeographyMap) TableName() string {
	return "rep_geography_map"
}

// RepresentativeRow is a representative as reached through a mapping row,
// carrying the mapping's jurisdiction_level.
type RepresentativeRow struct {
	Representative    `gorm:"embedded"`
	JurisdictionLevel Branch
}

// Filter narrows ResolveForGeography.
type Filter struct {
	IncludeInactive bool
	Branch          Branch
}

// SearchParams are the criteria of Search. At least one of Name, Party,
// Branch or State must be set.
type SearchParams struct {
	Name   string
	Party  string
	Branch Branch
	State  string
	Limit  int
	Offset int
}

func (p SearchParams) HasCriteria() bool {
	return p.Name != "" || p.Party != "" || p.Branch != "" || p.State != ""
}

type SearchResult struct {
	Representatives []Representative
	TotalCount      int64
}

// ServedArea is a geography reachable from a representative via the mapping
// table.
type ServedArea struct {
	GeographyID           uint   `json:"id"`
	ZipCode               string `json:"zip_code"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	StateName             string `json:"state_name"`
	County                string `json:"county"`
	CongressionalDistrict string `json:"congressional_district"`
	JurisdictionLevel     Branch `json:"jurisdiction_level"`
}

// Stats are aggregate counts over the whole dataset.
type Stats struct {
	TotalRepresentatives  int64            `json:"total_representatives"`
	ActiveRepresentatives int64            `json:"active_representatives"`
	ByBranch              map[Branch]int64 `json:"by_branch"`
	ZipCodes              int64            `json:"zip_codes"`
	States                int64            `json:"states"`
	Mappings              int64            `json:"mappings"`
}
