package model

import "time"

// AnalysisRow is one reported swap leg after metadata resolution.
type AnalysisRow struct {
	Token0Address string `json:"token0Address"`
	Token0Symbol  string `json:"token0Symbol"`
	Token1Address string `json:"token1Address"`
	Token1Symbol  string `json:"token1Symbol"`
	PoolAddress   string `json:"poolAddress"`
	Date          string `json:"date"`
	DexType       string `json:"dexType"`
}

// Report is the ordered row set handed to export sinks.
type Report struct {
	JobID       string        `json:"job_id"`
	Wallet      string        `json:"wallet"`
	GeneratedAt time.Time     `json:"generated_at"`
	Rows        []AnalysisRow `json:"rows"`
}

// FormatDate renders a unix timestamp the way rows carry it.
func FormatDate(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
