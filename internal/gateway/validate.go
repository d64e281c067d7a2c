package gateway

import (
	"fmt"
	"slices"
	"strings"
)

const segmentExt = ".ts"

// ValidationError rejects a user-supplied path parameter before any
// filesystem path is joined from it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateQuality accepts only the exact rendition names the adaptive
// layout uses. Anything else is rejected without touching the filesystem.
func ValidateQuality(quality string) error {
	if !slices.Contains(Qualities, quality) {
		return &ValidationError{Field: "quality", Reason: "not an allowed rendition"}
	}
	return nil
}

// ValidateSegment accepts a bare media-segment filename: required extension,
// no path separators, no parent-directory sequence. Every join built from an
// accepted name stays a descendant of the media root.
func ValidateSegment(segment string) error {
	if !strings.HasSuffix(segment, segmentExt) {
		return &ValidationError{Field: "segment", Reason: "must end with " + segmentExt}
	}
	if len(segment) == len(segmentExt) {
		return &ValidationError{Field: "segment", Reason: "empty segment name"}
	}
	if strings.ContainsAny(segment, `/\`) {
		return &ValidationError{Field: "segment", Reason: "path separators not allowed"}
	}
	if strings.Contains(segment, "..") {
		return &ValidationError{Field: "segment", Reason: "parent directory sequences not allowed"}
	}
	return nil
}

// legacySegmentPrefix is the filename prefix legacy segments carry for one
// camera. The trailing underscore matters: without it camera_1 would match
// camera_10's files.
func legacySegmentPrefix(camera CameraID) string {
	return fmt.Sprintf("camera_%d_", camera)
}

// ValidateLegacySegment applies ValidateSegment plus the camera-prefix rule
// for the flat legacy directory, where segments of every camera live side by
// side and an otherwise well-formed name could read a sibling camera's media.
func ValidateLegacySegment(camera CameraID, segment string) error {
	if err := ValidateSegment(segment); err != nil {
		return err
	}
	if !strings.HasPrefix(segment, legacySegmentPrefix(camera)) {
		return &ValidationError{Field: "segment", Reason: "does not belong to requested camera"}
	}
	return nil
}
