package alert

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Placeholder is used for reporter fields the feed leaves empty.
const Placeholder = "Not specified"

// ErrInvalidRecord is matched by every NormalizationError.
var ErrInvalidRecord = errors.New("invalid alert record")

// NormalizationError describes why one feed entry was rejected.
type NormalizationError struct {
	Index  int
	ID     string
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("alert[%d] id=%s: %s: %s", e.Index, e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("alert[%d]: %s: %s", e.Index, e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidRecord.
func (e *NormalizationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// Normalize converts one feed entry into an Alert. It rejects the entry when
// id, category, either coordinate or the report time is missing or unparsable.
func Normalize(raw Raw) (Alert, error) {
	return normalize(0, raw)
}

// NormalizeBatch normalizes every entry independently. The number of alerts
// plus the number of errors always equals len(raws). A repeated id is
// rejected so ids stay unique within the batch.
func NormalizeBatch(raws []Raw) ([]Alert, []error) {
	alerts := make([]Alert, 0, len(raws))
	var errs []error
	seen := make(map[string]struct{}, len(raws))

	for i, raw := range raws {
		a, err := normalize(i, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[a.ID]; dup {
			errs = append(errs, &NormalizationError{Index: i, ID: a.ID, Field: "id", Reason: "duplicate id in batch"})
			continue
		}
		seen[a.ID] = struct{}{}
		alerts = append(alerts, a)
	}
	return alerts, errs
}

func normalize(idx int, raw Raw) (Alert, error) {
	fail := func(id, field, reason string) (Alert, error) {
		return Alert{}, &NormalizationError{Index: idx, ID: id, Field: field, Reason: reason}
	}

	if raw == nil {
		return fail("", "record", "empty record")
	}

	id, err := cast.ToStringE(raw["id"])
	if err != nil || strings.TrimSpace(id) == "" {
		return fail("", "id", "missing")
	}
	id = strings.TrimSpace(id)

	label, _ := firstOf(raw, "category", "type").(string)
	cat, ok := ParseCategory(label)
	if !ok {
		return fail(id, "category", fmt.Sprintf("unknown category %q", label))
	}

	lat, err := coordinate(firstOf(raw, "location_lat", "lat", "latitude"))
	if err != nil {
		return fail(id, "latitude", err.Error())
	}
	lon, err := coordinate(firstOf(raw, "location_lng", "lon", "lng", "longitude"))
	if err != nil {
		return fail(id, "longitude", err.Error())
	}

	reportedAt, err := timestamp(firstOf(raw, "createdAt", "reportedAt", "created_at"))
	if err != nil {
		return fail(id, "reportedAt", err.Error())
	}

	a := Alert{
		ID:            id,
		Category:      cat,
		Location:      Location{Lat: lat, Lon: lon},
		Description:   cast.ToString(raw["description"]),
		ReporterName:  Placeholder,
		ReporterPhone: Placeholder,
		ReportedAt:    reportedAt,
		Media:         media(raw["media"]),
	}

	if rep, ok := raw["reporter"].(map[string]any); ok {
		name := strings.TrimSpace(cast.ToString(rep["first_name"]) + " " + cast.ToString(rep["last_name"]))
		if name != "" {
			a.ReporterName = name
		}
		if phone := strings.TrimSpace(cast.ToString(rep["phone_number"])); phone != "" {
			a.ReporterPhone = phone
		}
		a.ReporterPhoto = firstPhoto(rep["photos"])
	}

	return a, nil
}

// firstOf returns the first non-nil value among keys.
func firstOf(raw Raw, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func coordinate(v any) (float64, error) {
	var f float64
	var err error

	switch t := v.(type) {
	case nil:
		return 0, errors.New("missing")
	case bool:
		return 0, fmt.Errorf("not a number: %v", t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, errors.New("missing")
		}
		f, err = cast.ToFloat64E(s)
	default:
		f, err = cast.ToFloat64E(t)
	}
	if err != nil {
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", v)
	}
	return f, nil
}

// timestamp accepts a time string in any layout cast understands, or epoch
// milliseconds.
func timestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, errors.New("missing")
	case time.Time:
		if t.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, errors.New("missing")
		}
		ts, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparsable time %q", s)
		}
		return ts.UTC(), nil
	case bool:
		return time.Time{}, fmt.Errorf("unparsable time %v", t)
	default:
		ms, err := cast.ToInt64E(t)
		if err != nil || ms <= 0 {
			return time.Time{}, fmt.Errorf("unparsable time %v", v)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
}

func media(v any) []Media {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return []Media{}
	}

	out := make([]Media, 0, len(items))
	for _, item := range items {
		switch m := item.(type) {
		case string:
			if m != "" {
				out = append(out, Media{URL: m, Kind: MediaPhoto})
			}
		case map[string]any:
			url := cast.ToString(firstOf(m, "url", "media_url", "file_url"))
			if url == "" {
				continue
			}
			kind := MediaPhoto
			if strings.HasPrefix(strings.ToLower(cast.ToString(firstOf(m, "kind", "type", "media_type"))), "video") {
				kind = MediaVideo
			}
			out = append(out, Media{URL: url, Kind: kind})
		}
	}
	return out
}

func firstPhoto(v any) string {
	photos, ok := v.([]any)
	if !ok || len(photos) == 0 {
		return ""
	}
	p, ok := photos[0].(map[string]any)
	if !ok {
		return ""
	}
	return cast.ToString(p["photo_url"])
}
