package models

// ScoreSummary aggregates successful scores for one codec at one bitrate.
type ScoreSummary struct {
	Codec   string
	Bitrate int
	Metric  string
	Count   int
	Failed  int
	Mean    float64
	Min     float64
	Max     float64
	StdDev  float64
}

// SweepStats counts job outcomes of one sweep run.
type SweepStats struct {
	Planned   int
	Attempted int
	Skipped   int
	Succeeded int
	Failed    int
	ByKind    map[ErrorKind]int
	Bytes     int64 // Total size of outputs written in this run
}
