package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	playlistName = "playlist.m3u8"
	masterName   = "master.m3u8"
)

// ErrArtifactNotFound means no storage generation holds a matching artifact,
// or (for availability checks) the artifact exists but is stale. Artifacts
// appear asynchronously as the capture pipeline writes, so callers may retry.
var ErrArtifactNotFound = errors.New("artifact not found")

// Resolver maps a camera id plus optional quality onto a physical file in
// the media root, across the two coexisting storage generations:
//
//	adaptive: camera_<id>/master.m3u8 + camera_<id>/<quality>/playlist.m3u8
//	legacy:   camera_<id>.m3u8 with flat camera_<id>_<...>.ts segments
//
// Every resolution stats the filesystem anew. External writers rewrite these
// files continuously, so nothing here may be cached across requests.
type Resolver struct {
	mediaRoot      string
	adaptiveWindow time.Duration
	legacyWindow   time.Duration
	now            func() time.Time
}

// NewResolver returns a resolver over mediaRoot. The windows bound how old
// an artifact may be and still count as live for availability reporting;
// the legacy window is longer because legacy writers update less often.
func NewResolver(mediaRoot string, adaptiveWindow, legacyWindow time.Duration) *Resolver {
	return &Resolver{
		mediaRoot:      mediaRoot,
		adaptiveWindow: adaptiveWindow,
		legacyWindow:   legacyWindow,
		now:            time.Now,
	}
}

// NewResolverAt is NewResolver with an injected clock for staleness tests.
func NewResolverAt(mediaRoot string, adaptiveWindow, legacyWindow time.Duration, now func() time.Time) *Resolver {
	r := NewResolver(mediaRoot, adaptiveWindow, legacyWindow)
	r.now = now
	return r
}

func (r *Resolver) cameraDir(camera CameraID) string {
	return filepath.Join(r.mediaRoot, fmt.Sprintf("camera_%d", camera))
}

func (r *Resolver) legacyPlaylistPath(camera CameraID) string {
	return filepath.Join(r.mediaRoot, fmt.Sprintf("camera_%d.m3u8", camera))
}

// statArtifact probes one candidate path; ok is false unless it exists as a
// regular file.
func statArtifact(path string, kind ArtifactKind, quality string) (ArtifactLocation, bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return ArtifactLocation{}, false
	}
	return ArtifactLocation{
		Path:         path,
		Kind:         kind,
		Quality:      quality,
		LastModified: fi.ModTime(),
		SizeBytes:    fi.Size(),
	}, true
}

// Resolve finds the playlist artifact for camera, honouring the fixed
// fallback order. quality may be empty. First match wins:
//
//  1. the requested quality's adaptive playlist
//  2. the adaptive master
//  3. adaptive directory present but master missing: each quality,
//     highest first
//  4. the legacy playlist
//
// Staleness is not considered here; byte-serving never penalizes a slow
// fragment write. Use ResolveLive for availability reporting.
func (r *Resolver) Resolve(camera CameraID, quality string) (ArtifactLocation, error) {
	dir := r.cameraDir(camera)

	if quality != "" {
		if loc, ok := statArtifact(filepath.Join(dir, quality, playlistName), ArtifactAdaptiveQuality, quality); ok {
			return loc, nil
		}
	}
	if loc, ok := statArtifact(filepath.Join(dir, masterName), ArtifactAdaptiveMaster, ""); ok {
		return loc, nil
	}
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		for _, q := range Qualities {
			if loc, ok := statArtifact(filepath.Join(dir, q, playlistName), ArtifactAdaptiveQuality, q); ok {
				return loc, nil
			}
		}
	}
	if loc, ok := statArtifact(r.legacyPlaylistPath(camera), ArtifactLegacy, ""); ok {
		return loc, nil
	}
	return ArtifactLocation{}, ErrArtifactNotFound
}

// Fresh reports whether the artifact's modification time falls inside the
// staleness window for its storage generation.
func (r *Resolver) Fresh(loc ArtifactLocation) bool {
	window := r.adaptiveWindow
	if loc.Kind == ArtifactLegacy {
		window = r.legacyWindow
	}
	return r.now().Sub(loc.LastModified) <= window
}

// ResolveLive is Resolve for listing and status purposes: an artifact that
// resolves but is stale is reported as not found, since its camera is no
// longer producing.
func (r *Resolver) ResolveLive(camera CameraID, quality string) (ArtifactLocation, error) {
	loc, err := r.Resolve(camera, quality)
	if err != nil {
		return ArtifactLocation{}, err
	}
	if !r.Fresh(loc) {
		return ArtifactLocation{}, ErrArtifactNotFound
	}
	return loc, nil
}

// StreamAvailability reports which playlist endpoints are currently live
// for one camera, after staleness filtering.
type StreamAvailability struct {
	Adaptive  bool
	Qualities []string
	Legacy    bool
}

// Online reports whether anything at all is live for the camera.
func (a StreamAvailability) Online() bool {
	return a.Adaptive || len(a.Qualities) > 0 || a.Legacy
}

// Availability probes every generation independently. Unlike Resolve it does
// not stop at the first match: the listing endpoints advertise adaptive and
// legacy links side by side when both are live.
func (r *Resolver) Availability(camera CameraID) StreamAvailability {
	var av StreamAvailability
	dir := r.cameraDir(camera)

	if loc, ok := statArtifact(filepath.Join(dir, masterName), ArtifactAdaptiveMaster, ""); ok && r.Fresh(loc) {
		av.Adaptive = true
	}
	for _, q := range Qualities {
		if loc, ok := statArtifact(filepath.Join(dir, q, playlistName), ArtifactAdaptiveQuality, q); ok && r.Fresh(loc) {
			av.Qualities = append(av.Qualities, q)
		}
	}
	if loc, ok := statArtifact(r.legacyPlaylistPath(camera), ArtifactLegacy, ""); ok && r.Fresh(loc) {
		av.Legacy = true
	}
	return av
}

// ResolveSegment locates a media segment. With a quality, only that
// rendition's directory is searched. Without one, the quality directories
// are probed in the fixed descending order and then the flat legacy root,
// mirroring playlist precedence. The segment name must already have passed
// validation; this function only probes.
func (r *Resolver) ResolveSegment(camera CameraID, quality, segment string) (string, error) {
	dir := r.cameraDir(camera)

	if quality != "" {
		path := filepath.Join(dir, quality, segment)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, nil
		}
		return "", ErrArtifactNotFound
	}

	for _, q := range Qualities {
		path := filepath.Join(dir, q, segment)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path, nil
		}
	}
	path := filepath.Join(r.mediaRoot, segment)
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return path, nil
	}
	return "", ErrArtifactNotFound
}
