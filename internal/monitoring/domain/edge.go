package monitoring

// ActivityFlags marks each row active when any of fields exceeds thresholdPct.
// Missing or non-numeric values read as inactive.
func ActivityFlags(rows []Row, fields []string, thresholdPct float64) []bool {
	flags := make([]bool, len(rows))
	for i, row := range rows {
		for _, field := range fields {
			value, ok := Float(row.Values[field])
			if ok && value > thresholdPct {
				flags[i] = true
				break
			}
		}
	}
	return flags
}

// CountRisingEdges counts false→true transitions, treating the sample before the
// window as inactive. An empty series is ErrNoData, never zero activations.
func CountRisingEdges(flags []bool) (int64, error) {
	if len(flags) == 0 {
		return 0, ErrNoData
	}
	var (
		count int64
		prev  bool
	)
	for _, active := range flags {
		if active && !prev {
			count++
		}
		prev = active
	}
	return count, nil
}
