package efdadapter

import (
	"fmt"
	"strconv"
	"strings"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	monitoring "efd-cmms-bridge/internal/monitoring/domain"
)

// BuildLatestQuery renders the InfluxQL statement selecting the newest value of
// one field inside the lookback window.
func BuildLatestQuery(q monitoring.LatestQuery) (string, error) {
	if err := checkIdentifiers(q.Measurement, q.Field); err != nil {
		return "", err
	}
	if !masterdata.ValidInterval(q.Interval) {
		return "", fmt.Errorf("efd: invalid interval %q", q.Interval)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE time > now() - %s", quote(q.Field), quote(q.Measurement), q.Interval)
	if q.SalIndex != nil {
		b.WriteString(` AND "salIndex" = `)
		b.WriteString(strconv.Itoa(*q.SalIndex))
	}
	b.WriteString(" ORDER BY time DESC LIMIT 1")
	return b.String(), nil
}

// BuildSeriesQuery renders the InfluxQL statement selecting a time-ascending
// series of fields inside the lookback window.
func BuildSeriesQuery(q monitoring.SeriesQuery) (string, error) {
	if len(q.Fields) == 0 {
		return "", fmt.Errorf("efd: no fields for %q", q.Measurement)
	}
	if err := checkIdentifiers(append([]string{q.Measurement}, q.Fields...)...); err != nil {
		return "", err
	}
	if !masterdata.ValidInterval(q.Interval) {
		return "", fmt.Errorf("efd: invalid interval %q", q.Interval)
	}
	fields := make([]string, len(q.Fields))
	for i, f := range q.Fields {
		fields[i] = quote(f)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE time > now() - %s ORDER BY time ASC",
		strings.Join(fields, ", "), quote(q.Measurement), q.Interval), nil
}

func checkIdentifiers(idents ...string) error {
	for _, ident := range idents {
		if !masterdata.ValidIdentifier(ident) {
			return fmt.Errorf("efd: invalid identifier %q", ident)
		}
	}
	return nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}
