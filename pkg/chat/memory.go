package chat

// MaxPlotPoints is the hard cap on the structured plot-point list carried in
// a conversation's MemoryState. Older points are dropped first when the
// merged list exceeds the cap.
const MaxPlotPoints = 20

// MemoryState is the bounded, compacted representation of a conversation's
// history: a prose summary plus a capped list of discrete plot points. It is
// re-injected into every future system prompt so the model never needs the
// full transcript.
//
// Invariants: LastCompactedAtTurn <= CompletedTurnCount and
// len(PlotPoints) <= MaxPlotPoints.
type MemoryState struct {
	// SummaryText is free-form prose. The ~500 character cap is a prompt
	// convention, not enforced structurally.
	SummaryText string `json:"summary_text"`

	// PlotPoints is the ordered list of short narrative events,
	// oldest first.
	PlotPoints []string `json:"plot_points"`

	// CompletedTurnCount is the monotonic count of assistant turns ever
	// produced (decremented only when an assistant turn is deleted).
	CompletedTurnCount int `json:"completed_turn_count"`

	// LastCompactedAtTurn is the value of CompletedTurnCount at the most
	// recent successful compaction.
	LastCompactedAtTurn int `json:"last_compacted_at_turn"`
}

// NewMemoryState returns the empty memory a conversation starts with.
func NewMemoryState() *MemoryState {
	return &MemoryState{PlotPoints: []string{}}
}
