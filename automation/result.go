package automation

// ItemResult is the outcome for a single instruction in a run.
type ItemResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchResult is what a run hands back to the dispatch layer. TotalSent and
// TotalFailed are always derived from Results so summary and detail cannot
// drift apart.
type BatchResult struct {
	Results     []ItemResult `json:"results"`
	TotalSent   int          `json:"totalSent"`
	TotalFailed int          `json:"totalFailed"`
	Logs        []string     `json:"logs"`

	// ConfirmedAt is set only when the portal confirmed the submission; it
	// becomes the shared sentAt for every successful instruction.
	ConfirmedAt string `json:"confirmedAt,omitempty"`
}

func newBatchResult(results []ItemResult, logs []string) *BatchResult {
	sent, failed := tally(results)
	return &BatchResult{
		Results:     results,
		TotalSent:   sent,
		TotalFailed: failed,
		Logs:        logs,
	}
}

func tally(results []ItemResult) (sent, failed int) {
	for _, r := range results {
		if r.Success {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

// downgradeUnconfirmed flips every still-successful result to failed with
// the given reason. Called when the portal never showed its success marker:
// the Confirmation Detector is the single source of truth for "sent", not
// the fact that form filling went through.
func downgradeUnconfirmed(results []ItemResult, reason string) {
	for i := range results {
		if results[i].Success {
			results[i].Success = false
			results[i].Error = reason
		}
	}
}

// fillMissingResults appends a failed result for every submitted id that has
// no result yet. Run-level failures apply uniformly; no instruction is ever
// silently dropped from the result set.
func fillMissingResults(results []ItemResult, ids []string, reason string) []ItemResult {
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			results = append(results, ItemResult{ID: id, Success: false, Error: reason})
		}
	}
	return results
}
