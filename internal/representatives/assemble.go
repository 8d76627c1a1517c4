package representatives

import (
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/httputil"
)

type ContactView struct {
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Website *string `json:"website"`
}

type AddressView struct {
	Line1 string  `json:"line1"`
	Line2 *string `json:"line2"`
	City  *string `json:"city"`
	State *string `json:"state"`
	Zip   *string `json:"zip"`
}

type TermView struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// RepresentativeView is the public shape of a representative.
// JurisdictionLevel is only set when the row was reached through a mapping.
type RepresentativeView struct {
	ID                uint         `json:"id"`
	Name              string       `json:"name"`
	Title             string       `json:"title"`
	Party             *string      `json:"party"`
	Branch            Branch       `json:"branch"`
	OfficeType        *string      `json:"office_type"`
	JurisdictionLevel Branch       `json:"jurisdiction_level,omitempty"`
	PhotoURL          *string      `json:"photo_url"`
	Contact           ContactView  `json:"contact"`
	Address           *AddressView `json:"address"`
	Term              TermView     `json:"term"`
	IsActive          bool         `json:"is_active"`
}

// BranchGroups buckets views by their own branch. All three slices are
// non-nil so they encode as [].
type BranchGroups struct {
	Federal []RepresentativeView `json:"federal"`
	State   []RepresentativeView `json:"state"`
	Local   []RepresentativeView `json:"local"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationView struct {
	City                  string       `json:"city"`
	State                 string       `json:"state"`
	StateName             string       `json:"state_name"`
	County                string       `json:"county"`
	CongressionalDistrict string       `json:"congressional_district"`
	Coordinates           *Coordinates `json:"coordinates,omitempty"`
}

type AppliedFilters struct {
	IncludeInactive bool    `json:"include_inactive"`
	Branch          *Branch `json:"branch"`
}

type ZipResponse struct {
	ZipCode         string         `json:"zip_code"`
	Location        LocationView   `json:"location"`
	Representatives BranchGroups   `json:"representatives"`
	Count           int            `json:"count"`
	Filters         AppliedFilters `json:"filters"`
	Timestamp       string         `json:"timestamp"`
}

type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

type SearchCriteria struct {
	Name   *string `json:"name,omitempty"`
	Party  *string `json:"party,omitempty"`
	Branch *Branch `json:"branch,omitempty"`
	State  *string `json:"state,omitempty"`
}

type SearchResponse struct {
	Results    []RepresentativeView `json:"results"`
	Pagination Pagination           `json:"pagination"`
	Criteria   SearchCriteria       `json:"criteria"`
	Timestamp  string               `json:"timestamp"`
}

type DetailResponse struct {
	RepresentativeView
	ServedAreas []ServedArea `json:"served_areas"`
	Timestamp   string       `json:"timestamp"`
}

func NewView(r Representative) RepresentativeView {
	v := RepresentativeView{
		ID:         r.ID,
		Name:       r.Name,
		Title:      r.Title,
		Party:      r.Party,
		Branch:     r.Branch,
		OfficeType: r.OfficeType,
		PhotoURL:   r.PhotoURL,
		Contact: ContactView{
			Phone:   r.Phone,
			Email:   r.Email,
			Website: r.Website,
		},
		Term: TermView{
			Start: formatDate(r.TermStart),
			End:   formatDate(r.TermEnd),
		},
		IsActive: r.IsActive,
	}
	// line1 stands for the whole address block.
	if r.AddressLine1 != nil {
		v.Address = &AddressView{
			Line1: *r.AddressLine1,
			Line2: r.AddressLine2,
			City:  r.AddressCity,
			State: r.AddressState,
			Zip:   r.AddressZip,
		}
	}
	return v
}

// GroupByBranch keeps the incoming order inside each bucket.
func GroupByBranch(rows []RepresentativeRow) BranchGroups {
	g := BranchGroups{
		Federal: []RepresentativeView{},
		State:   []RepresentativeView{},
		Local:   []RepresentativeView{},
	}
	for _, row := range rows {
		v := NewView(row.Representative)
		v.JurisdictionLevel = row.JurisdictionLevel
		switch row.Branch {
		case BranchFederal:
			g.Federal = append(g.Federal, v)
		case BranchState:
			g.State = append(g.State, v)
		case BranchLocal:
			g.Local = append(g.Local, v)
		}
	}
	return g
}

func AssembleZip(geo *Geography, rows []RepresentativeRow, f Filter, now time.Time) ZipResponse {
	loc := LocationView{
		City:                  geo.City,
		State:                 geo.State,
		StateName:             geo.StateName,
		County:                geo.County,
		CongressionalDistrict: geo.CongressionalDistrict,
	}
	if geo.Latitude != nil && geo.Longitude != nil {
		loc.Coordinates = &Coordinates{Latitude: *geo.Latitude, Longitude: *geo.Longitude}
	}

	filters := AppliedFilters{IncludeInactive: f.IncludeInactive}
	if f.Branch != "" {
		b := f.Branch
		filters.Branch = &b
	}

	return ZipResponse{
		ZipCode:         geo.ZipCode,
		Location:        loc,
		Representatives: GroupByBranch(rows),
		Count:           len(rows),
		Filters:         filters,
		Timestamp:       httputil.Timestamp(now),
	}
}

// AssembleSearch reports has_more whenever the page is full, even if it was
// the last one.
func AssembleSearch(res SearchResult, p SearchParams, now time.Time) SearchResponse {
	results := make([]RepresentativeView, 0, len(res.Representatives))
	for _, r := range res.Representatives {
		results = append(results, NewView(r))
	}

	var c SearchCriteria
	if p.Name != "" {
		c.Name = &p.Name
	}
	if p.Party != "" {
		c.Party = &p.Party
	}
	if p.Branch != "" {
		c.Branch = &p.Branch
	}
	if p.State != "" {
		c.State = &p.State
	}

	return SearchResponse{
		Results: results,
		Pagination: Pagination{
			Total:   res.TotalCount,
			Limit:   p.Limit,
			Offset:  p.Offset,
			HasMore: len(results) == p.Limit,
		},
		Criteria:  c,
		Timestamp: httputil.Timestamp(now),
	}
}

func AssembleDetail(rep *Representative, areas []ServedArea, now time.Time) DetailResponse {
	if areas == nil {
		areas = []ServedArea{}
	}
	return DetailResponse{
		RepresentativeView: NewView(*rep),
		ServedAreas:        areas,
		Timestamp:          httputil.Timestamp(now),
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
