package validate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RepresentativeRecord is a validated representative as written by the
// ingestion side. Absent optional fields are nil.
type RepresentativeRecord struct {
	Name         string  `json:"name" validate:"required,min=1,max=255"`
	Title        string  `json:"title" validate:"required,min=1,max=255"`
	Party        *string `json:"party" validate:"omitempty,max=100"`
	Branch       string  `json:"branch" validate:"required,oneof=federal state local"`
	OfficeType   *string `json:"office_type" validate:"omitempty,max=100"`
	Phone        *string `json:"phone" validate:"omitempty,phone"`
	Email        *string `json:"email" validate:"omitempty,email,max=255"`
	Website      *string `json:"website" validate:"omitempty,url,max=500"`
	PhotoURL     *string `json:"photo_url" validate:"omitempty,url,max=500"`
	AddressLine1 *string `json:"address_line1" validate:"omitempty,max=255"`
	AddressLine2 *string `json:"address_line2" validate:"omitempty,max=255"`
	AddressCity  *string `json:"address_city" validate:"omitempty,max=100"`
	AddressState *string `json:"address_state" validate:"omitempty,len=2,alpha"`
	AddressZip   *string `json:"address_zip" validate:"omitempty,zipcode"`
	TermStart    *string `json:"term_start" validate:"omitempty,isodate"`
	TermEnd      *string `json:"term_end" validate:"omitempty,isodate"`
	IsActive     *bool   `json:"is_active"`
}

// Active reports is_active, which defaults to true.
func (r RepresentativeRecord) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

// GeographyRecord is a validated geography row.
type GeographyRecord struct {
	ZipCode               string   `json:"zip_code" validate:"required,zip5"`
	City                  string   `json:"city" validate:"required,max=100"`
	State                 string   `json:"state" validate:"required,len=2,alpha"`
	StateName             string   `json:"state_name" validate:"omitempty,max=50"`
	County                string   `json:"county" validate:"omitempty,max=100"`
	CongressionalDistrict string   `json:"congressional_district" validate:"omitempty,max=10"`
	Latitude              *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude             *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
}

type kind int

const (
	kindString kind = iota
	kindUpper
	kindLower
	kindBool
	kindFloat
)

// fieldSpec lists the recognized keys of a body and how each is coerced.
// Keys not listed are dropped.
type fieldSpec map[string]kind

var representativeFields = fieldSpec{
	"name":          kindString,
	"title":         kindString,
	"party":         kindString,
	"branch":        kindLower,
	"office_type":   kindString,
	"phone":         kindString,
	"email":         kindString,
	"website":       kindString,
	"photo_url":     kindString,
	"address_line1": kindString,
	"address_line2": kindString,
	"address_city":  kindString,
	"address_state": kindUpper,
	"address_zip":   kindString,
	"term_start":    kindString,
	"term_end":      kindString,
	"is_active":     kindBool,
}

var geographyFields = fieldSpec{
	"zip_code":               kindString,
	"city":                   kindString,
	"state":                  kindUpper,
	"state_name":             kindString,
	"county":                 kindString,
	"congressional_district": kindString,
	"latitude":               kindFloat,
	"longitude":              kindFloat,
}

// RepresentativeBody validates a loosely typed representative document.
func RepresentativeBody(raw map[string]any) (RepresentativeRecord, error) {
	var (
		verr ValidationError
		rec  RepresentativeRecord
	)
	if err := decodeInto(representativeFields.normalize(raw, &verr), &rec); err != nil {
		return rec, err
	}
	verr.addStruct(engine.Struct(rec))

	if rec.TermStart != nil && rec.TermEnd != nil {
		start, errS := time.Parse(dateLayout, *rec.TermStart)
		end, errE := time.Parse(dateLayout, *rec.TermEnd)
		if errS == nil && errE == nil && end.Before(start) {
			verr.add("term_end", "must not be before term_start", *rec.TermEnd)
		}
	}
	return rec, verr.orNil()
}

// GeographyBody validates a loosely typed geography document.
func GeographyBody(raw map[string]any) (GeographyRecord, error) {
	var (
		verr ValidationError
		rec  GeographyRecord
	)
	if err := decodeInto(geographyFields.normalize(raw, &verr), &rec); err != nil {
		return rec, err
	}
	verr.addStruct(engine.Struct(rec))
	return rec, verr.orNil()
}

func (s fieldSpec) normalize(raw map[string]any, verr *ValidationError) map[string]any {
	out := make(map[string]any, len(s))
	for key, k := range s {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch k {
		case kindString, kindUpper, kindLower:
			str := strings.TrimSpace(toString(v))
			if str == "" {
				continue
			}
			switch k {
			case kindUpper:
				str = upper(str)
			case kindLower:
				str = lower(str)
			}
			out[key] = str
		case kindBool:
			b, ok := toBool(v)
			if !ok {
				verr.add(key, "must be a boolean", v)
				continue
			}
			out[key] = b
		case kindFloat:
			f, ok := toFloat(v)
			if !ok {
				verr.add(key, "must be a number", v)
				continue
			}
			out[key] = f
		}
	}
	return out
}

func decodeInto(fields map[string]any, dst any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode normalized body: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode normalized body: %w", err)
	}
	return nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return parseBool(t)
	case float64:
		return t != 0, t == 0 || t == 1
	case int:
		return t != 0, t == 0 || t == 1
	case int64:
		return t != 0, t == 0 || t == 1
	case uint64:
		return t != 0, t == 0 || t == 1
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
