package pipeline

import (
	"fmt"
	"strings"
)

// NoFaceSummary is reported for frames without any detected face.
const NoFaceSummary = "No face detected"

// Summarize builds the text describing a processed frame. Every detected box
// is counted, recognized ones are listed by label.
func Summarize(boxes []DetectionBox) string {
	switch len(boxes) {
	case 0:
		return NoFaceSummary
	case 1:
		if boxes[0].Recognized() {
			return "One face detected. Face found: " + boxes[0].Outcome.MatchLabel
		}
		return "One face detected"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d faces detected", len(boxes))
	for i := range boxes {
		if boxes[i].Recognized() {
			sb.WriteString("\nFace found: ")
			sb.WriteString(boxes[i].Outcome.MatchLabel)
		}
	}
	return sb.String()
}
