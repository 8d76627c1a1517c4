package validate

import (
	"net/url"
	"strings"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// ZipLookup is the normalized query of GET /api/v1/representatives.
type ZipLookup struct {
	Zip             string `json:"zip" validate:"required,zip5"`
	IncludeInactive bool   `json:"include_inactive"`
	Branch          string `json:"branch" validate:"omitempty,oneof=federal state local"`
}

// ZipQuery validates a ZIP lookup. zip must be exactly five digits;
// include_inactive defaults to false; branch is optional.
func ZipQuery(q url.Values) (ZipLookup, error) {
	var verr ValidationError

	out := ZipLookup{
		Zip:    q.Get("zip"),
		Branch: lower(q.Get("branch")),
	}
	if raw := q.Get("include_inactive"); raw != "" {
		b, ok := parseBool(raw)
		if ok {
			out.IncludeInactive = b
		} else {
			verr.add("include_inactive", "must be a boolean", raw)
		}
	}

	verr.addStruct(engine.Struct(out))
	return out, verr.orNil()
}

// Search is the normalized query of GET /api/v1/representatives/search.
// Whether at least one criterion is present is checked by the resolver.
type Search struct {
	Name   string `json:"name" validate:"omitempty,max=100"`
	Party  string `json:"party" validate:"omitempty,max=100"`
	Branch string `json:"branch" validate:"omitempty,oneof=federal state local"`
	State  string `json:"state" validate:"omitempty,len=2,alpha"`
	Limit  int    `json:"limit" validate:"min=1,max=100"`
	Offset int    `json:"offset" validate:"min=0"`
}

// SearchQuery validates search criteria and pagination. State is uppercased,
// branch lowercased, limit defaults to 20 and offset to 0.
func SearchQuery(q url.Values) (Search, error) {
	var verr ValidationError

	out := Search{
		Name:   strings.TrimSpace(q.Get("name")),
		Party:  strings.TrimSpace(q.Get("party")),
		Branch: lower(q.Get("branch")),
		State:  upper(q.Get("state")),
		Limit:  DefaultSearchLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		if n, ok := parseInt(raw); ok {
			out.Limit = n
		} else {
			verr.add("limit", "must be an integer", raw)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, ok := parseInt(raw); ok {
			out.Offset = n
		} else {
			verr.add("offset", "must be an integer", raw)
		}
	}

	verr.addStruct(engine.Struct(out))
	return out, verr.orNil()
}
