// Package memory implements conversation memory: the compaction trigger rule,
// the LLM-backed summarizer, and the service that commits compaction results
// to storage.
package memory

// CompactionCadence is the number of completed assistant turns between
// automatic compactions.
const CompactionCadence = 10

// ShouldCompact reports whether a compaction should be scheduled after an
// assistant turn completes. It fires on every cadence multiple, and also
// whenever enough uncompacted turns have piled up because an earlier
// compaction failed or was skipped.
func ShouldCompact(completed, lastCompacted int) bool {
	if completed < CompactionCadence {
		return false
	}

	return completed%CompactionCadence == 0 || completed-lastCompacted >= CompactionCadence
}
