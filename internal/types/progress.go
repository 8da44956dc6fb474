// internal/types/progress.go
package types

// Stage identifies where the pipeline is in a run.
type Stage string

const (
	StageFetching      Stage = "fetching"
	StageSegmenting    Stage = "segmenting"
	StageConsolidating Stage = "consolidating"
	StageSummarizing   Stage = "summarizing"
	StageComplete      Stage = "complete"
)

// ProgressEvent is a transient progress notification. Current/Total are only
// set during summarization.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// ProgressFunc consumes progress events. A nil func is a valid no-op sink.
type ProgressFunc func(ProgressEvent)

// Emit invokes the callback if one is set.
func (f ProgressFunc) Emit(e ProgressEvent) {
	if f != nil {
		f(e)
	}
}
