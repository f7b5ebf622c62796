package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchFirstPage Phase = iota
	FetchPages
	WriteExport
)

func (p Phase) String() string {
	switch p {
	case FetchFirstPage:
		return "fetch_first_page"
	case FetchPages:
		return "fetch_pages"
	case WriteExport:
		return "write_export"
	default:
		return ""
	}
}

func firstPageUpdate(author string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchFirstPage,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching stories by %s...", author),
	}
}

func pageFetchedUpdate(step, total int, res PageResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ page %d (%d stories)", step, total, res.Page, res.Count),
		Data:    res,
	}
}

func pageFailedUpdate(step, total int, res PageResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ page %d: %v", step, total, res.Page, res.Error),
		Data:    res,
	}
}

func writingUpdate(format string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteExport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Writing %d stories as %s...", count, format),
	}
}
