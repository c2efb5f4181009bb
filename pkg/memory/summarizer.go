package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/extract"
	"github.com/papercompute/fable/pkg/llm"
	"github.com/papercompute/fable/pkg/llm/provider"
)

// summarizeTimeout bounds a single summarization call.
const summarizeTimeout = 2 * time.Minute

const summarizerSystemPrompt = `You maintain the long-term memory of an ongoing interactive story. You will be given the memory so far (a running summary and a list of established plot points) and the story passages written since the memory was last updated.

Produce an updated memory that folds the new passages into the summary and plot points. Preserve established facts unless the new passages contradict them. Keep the summary under 300 words. Each plot point is one short sentence stating a single concrete fact, event, or relationship.

Respond with a single JSON object and nothing else:
{"summary": "...", "keyPlotPoints": ["...", "..."]}`

// Result is the outcome of one summarization call, already merged with the
// prior memory state.
type Result struct {
	Summary    string
	PlotPoints []string
}

// Summarizer produces updated memory states by asking an LLM to fold new
// assistant turns into the prior summary.
type Summarizer struct {
	prov  provider.Provider
	cred  llm.Credential
	model string
	log   *zap.Logger
}

// NewSummarizer creates a Summarizer bound to a provider, credential, and model.
func NewSummarizer(prov provider.Provider, cred llm.Credential, model string, log *zap.Logger) *Summarizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Summarizer{
		prov:  prov,
		cred:  cred,
		model: model,
		log:   log,
	}
}

// Compact summarizes the given uncompacted assistant turns against the prior
// memory state. The returned result carries the merged plot point list,
// capped at chat.MaxPlotPoints. A malformed LLM reply degrades to using the
// raw reply text as the summary rather than failing the compaction.
func (s *Summarizer) Compact(ctx context.Context, turns []*chat.Turn, prior *chat.MemoryState) (*Result, error) {
	if len(turns) == 0 {
		return &Result{
			Summary:    prior.SummaryText,
			PlotPoints: append([]string(nil), prior.PlotPoints...),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	req := &llm.ChatRequest{
		Model:  s.model,
		System: summarizerSystemPrompt,
		Messages: []llm.Message{
			llm.NewMessage("user", buildSummarizeInput(turns, prior)),
		},
	}

	resp, err := s.prov.Complete(ctx, s.cred, req)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	summary, points := parseSummaryResponse(resp.Text)
	if summary == "" {
		s.log.Warn("summarizer returned no usable summary, keeping prior",
			zap.String("model", s.model))
		summary = prior.SummaryText
	}

	// Overflow archived into the prompt annex is gone for good; only the
	// recent window participates in the merge.
	_, recent := splitPlotOverflow(prior.PlotPoints)

	return &Result{
		Summary:    summary,
		PlotPoints: MergePlotPoints(recent, points),
	}, nil
}

// splitPlotOverflow splits a prior plot-point list that grew past
// chat.MaxPlotPoints (for example, a store written under a higher cap) into
// the archived overflow (oldest first) and the recent window that stays in
// the structured list.
func splitPlotOverflow(points []string) (archived, recent []string) {
	if len(points) <= chat.MaxPlotPoints {
		return nil, points
	}
	cut := len(points) - chat.MaxPlotPoints
	return points[:cut], points[cut:]
}

// buildSummarizeInput assembles the user message: prior memory first, then
// the new passages in chronological order. A prior plot-point list over the
// cap keeps only its recent window in the structured section; the overflow is
// folded into the summary text as a prose annex.
func buildSummarizeInput(turns []*chat.Turn, prior *chat.MemoryState) string {
	archived, recent := splitPlotOverflow(prior.PlotPoints)

	var b strings.Builder

	b.WriteString("## Memory so far\n\n")
	if prior.SummaryText == "" {
		b.WriteString("(none — this is the first compaction)\n")
	} else {
		b.WriteString(prior.SummaryText)
		b.WriteString("\n")
	}
	if len(archived) > 0 {
		b.WriteString("\nEarlier events, already woven into the story: ")
		b.WriteString(strings.Join(archived, "; "))
		b.WriteString(".\n")
	}

	if len(recent) > 0 {
		b.WriteString("\n## Established plot points\n\n")
		for _, point := range recent {
			b.WriteString("- ")
			b.WriteString(point)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## New passages\n\n")
	for _, turn := range turns {
		if turn.Speaker != "" {
			b.WriteString("[")
			b.WriteString(turn.Speaker)
			b.WriteString("] ")
		}
		b.WriteString(turn.Text)
		b.WriteString("\n\n")
	}

	return b.String()
}

// parseSummaryResponse extracts summary and plot points from the LLM reply.
// The reply goes through the same JSON repair as story responses, so a
// truncated object still yields its fields. A reply that is not an object at
// all is treated as the summary itself.
func parseSummaryResponse(text string) (string, []string) {
	repaired, ok := extract.RepairObject(text)
	if !ok {
		return strings.TrimSpace(text), nil
	}

	summary := strings.TrimSpace(gjson.Get(repaired, "summary").String())

	var points []string
	for _, entry := range gjson.Get(repaired, "keyPlotPoints").Array() {
		point := strings.TrimSpace(entry.String())
		if point != "" {
			points = append(points, point)
		}
	}

	if summary == "" && len(points) == 0 {
		return strings.TrimSpace(text), nil
	}
	return summary, points
}

// MergePlotPoints folds incoming plot points into the existing list. An
// incoming point that contains, or is contained by, an existing point
// (case-insensitive) restates a known fact and is skipped; the existing entry
// keeps its wording and its position. The merged list keeps chronological
// order and is capped at chat.MaxPlotPoints, oldest dropped first.
func MergePlotPoints(existing, incoming []string) []string {
	merged := append([]string(nil), existing...)

	for _, raw := range incoming {
		point := strings.TrimSpace(raw)
		if point == "" {
			continue
		}

		lowered := strings.ToLower(point)
		known := false
		for _, have := range merged {
			haveLowered := strings.ToLower(have)
			if strings.Contains(haveLowered, lowered) || strings.Contains(lowered, haveLowered) {
				known = true
				break
			}
		}
		if known {
			continue
		}
		merged = append(merged, point)
	}

	if len(merged) > chat.MaxPlotPoints {
		merged = merged[len(merged)-chat.MaxPlotPoints:]
	}
	return merged
}
