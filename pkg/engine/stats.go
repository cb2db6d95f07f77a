package engine

import "encoding/json"

// RunStats is the JSON payload stored in RunSummary.SummaryJSON.
type RunStats struct {
	UpsertsAtoB  int    `json:"upsertsAtoB"`
	UpsertsBtoA  int    `json:"upsertsBtoA"`
	DeletesAtoB  int    `json:"deletesAtoB"`
	DeletesBtoA  int    `json:"deletesBtoA"`
	Retries      int    `json:"retries"`
	Conflicts    int    `json:"conflicts"`
	MapperErrors int    `json:"mapperErrors"`
	Reason       string `json:"reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (s RunStats) marshal() string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseRunStats unmarshals a RunSummary's SummaryJSON back into RunStats,
// for callers inspecting a completed run (tests, operator tooling).
func ParseRunStats(summaryJSON string) (RunStats, error) {
	var s RunStats
	if summaryJSON == "" {
		return s, nil
	}
	err := json.Unmarshal([]byte(summaryJSON), &s)
	return s, err
}
