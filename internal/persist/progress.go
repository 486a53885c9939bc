package persist

import "fmt"

// Step identifies one of the remote writes a save performs.
type Step int

const (
	StepMetadata Step = iota + 1
	StepNodes
	StepEdges
)

func (s Step) String() string {
	switch s {
	case StepMetadata:
		return "metadata"
	case StepNodes:
		return "nodes"
	case StepEdges:
		return "edges"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// ProgressStatus is the state of a step.
type ProgressStatus int

const (
	ProgressWorking ProgressStatus = iota + 1
	ProgressComplete
	ProgressFailed
	ProgressSkipped
)

// ProgressEvent reports a step transition. Batch is set (1-based) for the
// edge batches of a fallback write.
type ProgressEvent struct {
	Step    Step
	Status  ProgressStatus
	Batch   int
	Message string
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(ev ProgressEvent) string {
	name := ev.Step.String()
	if ev.Batch > 0 {
		name = fmt.Sprintf("%s batch %d", name, ev.Batch)
	}
	switch ev.Status {
	case ProgressWorking:
		return fmt.Sprintf("  ● %s...", name)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s saved", name)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", name, ev.Message)
	case ProgressSkipped:
		return fmt.Sprintf("  ○ %s skipped: %s", name, ev.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", name)
	}
}
