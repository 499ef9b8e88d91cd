package filter

import (
	"fmt"

	"github.com/linnemanlabs/dispatch/internal/alert"
)

// Patch is a mutation of State. Unset fields leave the state unchanged.
// Reset is applied first, then the all-categories toggle, then the single
// category toggle, then the recency toggle and search.
type Patch struct {
	Reset           bool           `json:"reset,omitempty"`
	AllCategories   *bool          `json:"all_categories,omitempty"`
	OnlyLast24Hours *bool          `json:"only_last_24_hours,omitempty"`
	Search          *string        `json:"search,omitempty"`
	Category        alert.Category `json:"category,omitempty"`
	Active          *bool          `json:"active,omitempty"`
	Only            bool           `json:"only,omitempty"`
}

// ResetAll restores Default.
func ResetAll() Patch { return Patch{Reset: true} }

// SetAll turns the all-categories toggle on or off.
func SetAll(on bool) Patch { return Patch{AllCategories: &on} }

// SetLast24Hours turns the recency toggle on or off.
func SetLast24Hours(on bool) Patch { return Patch{OnlyLast24Hours: &on} }

// SetSearch replaces the search text.
func SetSearch(q string) Patch { return Patch{Search: &q} }

// SetCategory turns one category toggle on or off.
func SetCategory(c alert.Category, on bool) Patch { return Patch{Category: c, Active: &on} }

// ActivateOnly turns c on and every other category off.
func ActivateOnly(c alert.Category) Patch {
	on := true
	return Patch{Category: c, Active: &on, Only: true}
}

// Validate rejects patches naming an unknown category or asking for "only"
// without a category.
func (p Patch) Validate() error {
	if p.Category != "" {
		if _, ok := alert.ParseCategory(string(p.Category)); !ok {
			return fmt.Errorf("unknown category %q", p.Category)
		}
	}
	if p.Only && p.Category == "" {
		return fmt.Errorf("only requires a category")
	}
	if p.Category != "" && p.Active == nil && !p.Only {
		return fmt.Errorf("category %q given without active flag", p.Category)
	}
	return nil
}

// Apply returns s with p applied. s is not modified.
//
// Activating a category clears AllCategories and leaves siblings alone
// unless Only is set, in which case siblings are cleared too. Activating
// AllCategories sets every category on. Turning off the last active
// category while AllCategories is off is allowed and yields an empty view.
func (s State) Apply(p Patch) (State, error) {
	if err := p.Validate(); err != nil {
		return s, err
	}

	next := s.Clone()
	if p.Reset {
		next = Default()
	}

	if p.AllCategories != nil {
		next.AllCategories = *p.AllCategories
		if *p.AllCategories {
			for _, c := range alert.Categories() {
				next.Categories[c] = true
			}
		}
	}

	if p.Category != "" {
		c, _ := alert.ParseCategory(string(p.Category))
		on := p.Only || (p.Active != nil && *p.Active)
		if on {
			next.AllCategories = false
			if p.Only {
				for _, other := range alert.Categories() {
					next.Categories[other] = false
				}
			}
		}
		next.Categories[c] = on
	}

	if p.OnlyLast24Hours != nil {
		next.OnlyLast24Hours = *p.OnlyLast24Hours
	}
	if p.Search != nil {
		next.Search = *p.Search
	}

	return next, nil
}
