package reconcile

import (
	"strings"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// LastGoodTag marks a provider whose row was partly filled from the last-good cache.
const LastGoodTag = "(last-good)"

const cacheProvider = "cache"

// NeedsSecondary reports whether a row qualifies for the secondary feed:
// its temperature is missing or not recent.
func NeedsSecondary(row domain.StationObservation) bool {
	return row.TempC == nil || !row.Recent
}

// MergeSecondary overlays a secondary-feed row onto a primary row. A secondary
// row without temperature is discarded, and a primary row that already has a
// recent temperature is returned untouched. The bool reports whether the
// result differs from primary.
func MergeSecondary(primary, secondary domain.StationObservation) (domain.StationObservation, bool) {
	if secondary.TempC == nil || primary.HasRecentTemp() {
		return primary, false
	}

	merged := primary.Clone()
	adoptFloat(&merged.TempC, secondary.TempC)
	adoptFloat(&merged.DewpointC, secondary.DewpointC)
	adoptTime(&merged.TempObTime, secondary.TempObTime)
	adoptFloat(&merged.WindDirDeg, secondary.WindDirDeg)
	adoptFloat(&merged.WindSpeedMPS, secondary.WindSpeedMPS)
	adoptFloat(&merged.WindGustMPS, secondary.WindGustMPS)
	adoptTime(&merged.WindObTime, secondary.WindObTime)

	if merged.ElevationM == nil && secondary.ElevationM != nil {
		v := *secondary.ElevationM
		merged.ElevationM = &v
	}
	if secondary.TempObTime != nil && secondary.Provider != "" {
		merged.Provider = secondary.Provider
	}
	return merged, true
}

// ApplyLastGood fills absent fields of row from a cached row. The temperature
// group (temperature, dewpoint) and the wind group (direction, speed, gust)
// are each eligible only while the cached observation time is within grace
// of now. Elevation is filled whenever it is missing. Present values are
// never replaced. The bool reports whether any group field came from cache.
func ApplyLastGood(row, cached domain.StationObservation, now time.Time, grace time.Duration) (domain.StationObservation, bool) {
	merged := row.Clone()
	used := false

	if merged.ElevationM == nil && cached.ElevationM != nil {
		v := *cached.ElevationM
		merged.ElevationM = &v
	}

	tempOK := domain.WithinGrace(cached.TempObTime, now, grace)
	windOK := domain.WithinGrace(cached.WindObTime, now, grace)

	if tempOK {
		if merged.TempC == nil && cached.TempC != nil {
			v := *cached.TempC
			merged.TempC = &v
			merged.TempObTime = cloneTime(cached.TempObTime)
			used = true
		}
		if merged.DewpointC == nil && cached.DewpointC != nil {
			v := *cached.DewpointC
			merged.DewpointC = &v
			used = true
		}
	}

	if windOK {
		if merged.WindSpeedMPS == nil && cached.WindSpeedMPS != nil {
			v := *cached.WindSpeedMPS
			merged.WindSpeedMPS = &v
			merged.WindObTime = cloneTime(cached.WindObTime)
			used = true
		}
		if merged.WindGustMPS == nil && cached.WindGustMPS != nil {
			v := *cached.WindGustMPS
			merged.WindGustMPS = &v
			if merged.WindObTime == nil {
				merged.WindObTime = cloneTime(cached.WindObTime)
			}
			used = true
		}
		if merged.WindDirDeg == nil && cached.WindDirDeg != nil {
			v := *cached.WindDirDeg
			merged.WindDirDeg = &v
			if merged.WindObTime == nil {
				merged.WindObTime = cloneTime(cached.WindObTime)
			}
			used = true
		}
	}

	if used {
		merged.Provider = tagLastGood(merged.Provider, cached.Provider)
	}
	return merged, used
}

func tagLastGood(current, cached string) string {
	base := current
	if base == "" {
		base = cached
	}
	if base == "" {
		base = cacheProvider
	}
	if strings.Contains(base, LastGoodTag) {
		return base
	}
	return base + " " + LastGoodTag
}

func adoptFloat(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func adoptTime(dst **time.Time, src *time.Time) {
	if src != nil {
		*dst = cloneTime(src)
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
