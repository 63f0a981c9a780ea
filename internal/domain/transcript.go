package domain

import "strings"

// MergeTranscript appends a final transcript segment to the accumulated
// transcript. The durable transcript is the concatenation of all final
// segments in arrival order, separated by a single space; segments are never
// overwritten. Empty segments leave the transcript unchanged.
func MergeTranscript(existing, segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return existing
	}
	if existing == "" {
		return segment
	}
	return existing + " " + segment
}
