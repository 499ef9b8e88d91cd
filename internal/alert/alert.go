// Package alert defines the canonical field alert and the normalizer that
// builds it from loosely typed feed records.
package alert

import (
	"strings"
	"time"
)

// Category is the incident type of an alert.
type Category string

const (
	CategoryAccident Category = "Accident"
	CategoryFire     Category = "Fire"
	CategoryFlood    Category = "Flood"
	CategoryDrowning Category = "Drowning"
	CategoryIllness  Category = "Illness"
	CategoryOther    Category = "Other"
)

// categories is the closed set in display order.
var categories = []Category{
	CategoryAccident,
	CategoryFire,
	CategoryFlood,
	CategoryDrowning,
	CategoryIllness,
	CategoryOther,
}

// aliases maps folded labels, including the backend's French labels, to categories.
var aliases = map[string]Category{
	"accident":    CategoryAccident,
	"accidents":   CategoryAccident,
	"fire":        CategoryFire,
	"incendie":    CategoryFire,
	"incendies":   CategoryFire,
	"flood":       CategoryFlood,
	"inondation":  CategoryFlood,
	"inondations": CategoryFlood,
	"drowning":    CategoryDrowning,
	"noyade":      CategoryDrowning,
	"illness":     CategoryIllness,
	"malaise":     CategoryIllness,
	"malaises":    CategoryIllness,
	"other":       CategoryOther,
	"autre":       CategoryOther,
}

// backendLabels are the labels the backend itself uses.
var backendLabels = map[Category]string{
	CategoryAccident: "Accidents",
	CategoryFire:     "Incendies",
	CategoryFlood:    "Inondations",
	CategoryDrowning: "Noyade",
	CategoryIllness:  "Malaises",
	CategoryOther:    "Autre",
}

// BackendLabel returns the backend's label for c, or "" for an unknown category.
func (c Category) BackendLabel() string { return backendLabels[c] }

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory resolves a label to a Category, case-insensitively.
func ParseCategory(s string) (Category, bool) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// MediaKind distinguishes photo and video attachments.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Media is one attachment on an alert.
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Location is a WGS84 position in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Alert is a normalized field report. Values are immutable once built.
type Alert struct {
	ID            string    `json:"id"`
	Category      Category  `json:"category"`
	Location      Location  `json:"location"`
	Description   string    `json:"description"`
	ReporterName  string    `json:"reporter_name"`
	ReporterPhone string    `json:"reporter_phone"`
	ReporterPhoto string    `json:"reporter_photo,omitempty"`
	ReportedAt    time.Time `json:"reported_at"`
	Media         []Media   `json:"media"`
}

// Raw is one undecoded entry of the alert feed.
type Raw map[string]any
