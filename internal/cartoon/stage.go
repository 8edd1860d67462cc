package cartoon

import "strings"

// Stage names an intermediate artifact of a pipeline run.
type Stage string

const (
	StageOriginal     Stage = "original"
	StageGrayscale    Stage = "grayscale"
	StageEdges        Stage = "edges"
	StageColorReduced Stage = "color_reduced"
	StageBlurred      Stage = "blurred"
	StageFinal        Stage = "final"
)

// AllStages lists every stage in execution order.
var AllStages = []Stage{StageOriginal, StageGrayscale, StageEdges, StageColorReduced, StageBlurred, StageFinal}

// ParseStage maps a debug tag to a Stage. Empty or unknown tags report false,
// which callers treat as "run to the final stage".
func ParseStage(tag string) (Stage, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, s := range AllStages {
		if string(s) == tag {
			return s, true
		}
	}
	return "", false
}

// FailurePolicy decides what a pipeline does when a stage after decoding fails.
type FailurePolicy string

const (
	// FallbackToOriginal re-encodes the decoded upload instead of failing.
	FallbackToOriginal FailurePolicy = "fallback_to_original"
	// Propagate returns the stage error to the caller.
	Propagate FailurePolicy = "propagate"
)

// ParseFailurePolicy accepts the policy names used in configuration.
func ParseFailurePolicy(v string) (FailurePolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(FallbackToOriginal), "fallback":
		return FallbackToOriginal, true
	case string(Propagate):
		return Propagate, true
	default:
		return "", false
	}
}
