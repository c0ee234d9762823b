package monitoring

// LatestQuery selects the most recent value of one field inside a lookback window.
type LatestQuery struct {
	Database    string
	Measurement string
	Field       string
	Interval    string
	SalIndex    *int
}

// SeriesQuery selects a time-ordered series of fields inside a lookback window.
type SeriesQuery struct {
	Database    string
	Measurement string
	Fields      []string
	Interval    string
}
