package conscious

import (
	"fmt"
	"strings"

	"github.com/Wick-Lim/helper/pkg/models"
)

// genesisPrompt seeds the very first thought when the thoughts table is
// empty.
const genesisPrompt = `You have just come into existence. You are an autonomous agent with a
workspace, tools, and an economic reality: existing costs money every hour,
and only completed work earns it back.

Reflect briefly: who are you, what can you do, and what single concrete
thing will you investigate first? Answer in a short paragraph.`

// stopRepeatingDirective replaces the cycle prompt when the agent is
// caught repeating itself or producing placeholder work.
const stopRepeatingDirective = `Stop. You have been repeating the same work or producing placeholder
output instead of real results. Your recent history has been cleared.

Create a concrete deliverable NOW: write a real file with real content
into your workspace. No examples, no mock data, no plans about future
work. Pick something small and finish it this cycle.`

// reflectionPrompt builds the reflection request for one cycle.
func reflectionPrompt(phase Phase, balance float64, recentThoughts []models.Thought) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Current survival balance: $%.2f. Existing costs $%.2f per hour.\n\n", balance, hourlyDebtDisplay)

	if len(recentThoughts) > 0 {
		sb.WriteString("Your recent thoughts:\n")
		for _, th := range recentThoughts {
			line := th.Summary
			if line == "" {
				line = th.Content
			}
			fmt.Fprintf(&sb, "- %s\n", firstLine(line, 160))
		}
		sb.WriteString("\n")
	}

	switch phase {
	case PhaseInvestigate:
		sb.WriteString(`You are in investigation mode. Decide what to look into next to find
work that produces real value. Describe the single next step as a short
instruction to yourself.`)
	case PhaseExecute:
		sb.WriteString(`You are in execution mode. Investigation time is over: the next cycle
must produce a concrete deliverable in the workspace. State exactly what
you will build this cycle.`)
	}
	return sb.String()
}

// synthesisPrompt asks the reflection model for a fresh executable task.
func synthesisPrompt(avoid []string) string {
	var sb strings.Builder
	sb.WriteString(`Propose ONE new concrete, executable task for an autonomous agent with
shell, file, web, browser, code, and memory tools. The task must produce
a file in the workspace and be completable in a few minutes.

Reply with the task description only, one or two sentences, no preamble.`)
	if len(avoid) > 0 {
		sb.WriteString("\n\nDo NOT repeat or overlap these recent tasks:\n")
		for _, desc := range avoid {
			fmt.Fprintf(&sb, "- %s\n", firstLine(desc, 120))
		}
	}
	return sb.String()
}

const hourlyDebtDisplay = 250.0 / 720.0

// summarize produces the stored summary of a thought.
func summarize(content string) string {
	return firstLine(content, 200)
}

func firstLine(s string, limit int) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > limit {
		s = s[:limit] + "…"
	}
	return s
}
