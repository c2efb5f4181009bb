package relay

import (
	"strings"

	"github.com/papercompute/fable/pkg/chat"
)

// PromptBuilder assembles the system prompt for one streamed turn. The
// conversation memory is folded back in on every call, so a compacted
// conversation keeps its long-range context without replaying old turns.
type PromptBuilder interface {
	Build(storyID string, mem *chat.MemoryState) string
}

const defaultBasePrompt = `You are the narrator of the interactive story "{storyId}". Continue the story from where it left off, staying consistent with everything established so far. Write vivid prose in the established voice and keep each passage to a few paragraphs.`

// memoryPromptBuilder renders a base template and appends the memory state.
// The literal "{storyId}" in the template is replaced with the story id.
type memoryPromptBuilder struct {
	base string
}

// NewPromptBuilder creates the default PromptBuilder. An empty template
// selects the built-in narrator prompt.
func NewPromptBuilder(template string) PromptBuilder {
	if template == "" {
		template = defaultBasePrompt
	}
	return &memoryPromptBuilder{base: template}
}

func (b *memoryPromptBuilder) Build(storyID string, mem *chat.MemoryState) string {
	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(b.base, "{storyId}", storyID))

	if mem == nil {
		return sb.String()
	}

	if mem.SummaryText != "" {
		sb.WriteString("\n\n## The story so far\n\n")
		sb.WriteString(mem.SummaryText)
	}

	if len(mem.PlotPoints) > 0 {
		sb.WriteString("\n\n## Established plot points\n")
		for _, point := range mem.PlotPoints {
			sb.WriteString("\n- ")
			sb.WriteString(point)
		}
	}

	return sb.String()
}
