package gateway

import "time"

// CameraID identifies a camera channel. Valid ids are 1..N where N is the
// deployment's configured camera count.
type CameraID int

// Role is the authorization role carried in a capability token.
type Role string

const (
	RoleViewer   Role = "VIEWER"
	RoleOperator Role = "OPERATOR"
	RoleAdmin    Role = "ADMIN"
)

// Elevated reports whether the role bypasses camera scope checks entirely.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleOperator
}

// TokenKind distinguishes what a capability token may be used for.
// Session tokens authenticate API/UI calls; stream tokens authorize
// playlist and segment bytes.
type TokenKind string

const (
	KindSession TokenKind = "session"
	KindStream  TokenKind = "stream"
)

// Qualities lists the adaptive renditions in probe order: highest first.
// The resolver and the validator both treat this list as the closed set of
// acceptable quality names.
var Qualities = []string{"1080p", "720p", "480p", "360p"}

// ArtifactKind says which storage generation an artifact belongs to.
type ArtifactKind int

const (
	// ArtifactAdaptiveMaster is camera_<id>/master.m3u8.
	ArtifactAdaptiveMaster ArtifactKind = iota
	// ArtifactAdaptiveQuality is camera_<id>/<quality>/playlist.m3u8.
	ArtifactAdaptiveQuality
	// ArtifactLegacy is the flat camera_<id>.m3u8 of the older pipeline.
	ArtifactLegacy
)

// ArtifactLocation is the result of resolving a camera+quality request to a
// physical file. It is recomputed on every request; the capture pipeline
// rewrites these files continuously, so locations are never cached.
type ArtifactLocation struct {
	Path         string
	Kind         ArtifactKind
	Quality      string // set only for ArtifactAdaptiveQuality
	LastModified time.Time
	SizeBytes    int64
}

// RecordingInfo is the externally visible state of one recording session.
type RecordingInfo struct {
	Camera    CameraID  `json:"cameraId"`
	Filename  string    `json:"filename"`
	StartedAt time.Time `json:"startTime"`
}
