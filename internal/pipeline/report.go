package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

var csvHeader = []string{"station", "name", "elev_m", "temp_c", "ob_time", "age_min", "provider", "recent"}

// WriteCSV writes the per-station table in roster order.
func WriteCSV(w io.Writer, rows []domain.StationObservation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		provider := row.Provider
		if provider == "" && row.TempObTime == nil {
			provider = "no_temp"
		}
		record := []string{
			row.ID,
			row.Name,
			optional("%.2f", row.ElevationM),
			optional("%.2f", row.TempC),
			domain.FormatUTCPtr(row.TempObTime),
			optional("%.1f", row.AgeMinutes),
			provider,
			flag(row.Recent),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatus prints the run summary: profile provenance, chart titles and
// one line per station.
func WriteStatus(w io.Writer, r Report) error {
	var b strings.Builder
	obTime := domain.FormatUTCPtr(r.Profile.Profile.ObTime)
	if obTime == "" {
		obTime = "missing"
	}
	fmt.Fprintf(&b, "rass_file=%s\n", r.Profile.File)
	fmt.Fprintf(&b, "rass_source=%s\n", r.Profile.Source)
	fmt.Fprintf(&b, "rass_time_utc=%s\n", obTime)
	fmt.Fprintf(&b, "title_metric=%s\n", r.Charts.TitleMetric)
	fmt.Fprintf(&b, "title_imperial=%s\n", r.Charts.TitleImperial)
	fmt.Fprintf(&b, "recent_station_count=%d\n", r.Run.PlottableCount())
	for _, row := range r.Run.Rows {
		provider := row.Provider
		if provider == "" {
			provider = "none"
		}
		windTime := domain.FormatUTCPtr(row.WindObTime)
		if windTime == "" {
			windTime = "missing"
		}
		fmt.Fprintf(&b, "%s name=%s provider=%s temp=%s dew=%s wind_time=%s recent=%s\n",
			row.ID, row.Name, provider,
			optional("%.2f", row.TempC), optional("%.2f", row.DewpointC),
			windTime, flag(row.Recent))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func optional(format string, v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func flag(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
