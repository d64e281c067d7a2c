package gateway

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func ageArtifact(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	return NewResolver(root, 2*time.Minute, time.Hour), root
}

func TestResolver_requestedQualityFirst(t *testing.T) {
	r, root := newTestResolver(t)
	writeArtifact(t, filepath.Join(root, "camera_2", "master.m3u8"))
	writeArtifact(t, filepath.Join(root, "camera_2", "720p", "playlist.m3u8"))

	loc, err := r.Resolve(2, "720p")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Kind != ArtifactAdaptiveQuality || loc.Quality != "720p" {
		t.Errorf("got kind %d quality %q, want the requested quality playlist", loc.Kind, loc.Quality)
	}
}

func TestResolver_masterBeatsLegacy(t *testing.T) {
	r, root := newTestResolver(t)
	writeArtifact(t, filepath.Join(root, "camera_3", "master.m3u8"))
	writeArtifact(t, filepath.Join(root, "camera_3.m3u8"))

	loc, err := r.Resolve(3, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Kind != ArtifactAdaptiveMaster {
		t.Errorf("got kind %d, want adaptive master", loc.Kind)
	}
}

func TestResolver_qualityProbeDescending(t *testing.T) {
	r, root := newTestResolver(t)
	// Adaptive dir exists, master missing, two qualities present.
	writeArtifact(t, filepath.Join(root, "camera_4", "480p", "playlist.m3u8"))
	writeArtifact(t, filepath.Join(root, "camera_4", "720p", "playlist.m3u8"))

	loc, err := r.Resolve(4, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Quality != "720p" {
		t.Errorf("got quality %q, want highest available 720p", loc.Quality)
	}
}

func TestResolver_legacyOnly(t *testing.T) {
	r, root := newTestResolver(t)
	writeArtifact(t, filepath.Join(root, "camera_5.m3u8"))

	loc, err := r.Resolve(5, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Kind != ArtifactLegacy {
		t.Errorf("got kind %d, want legacy", loc.Kind)
	}
}

func TestResolver_missingQualityFallsBack(t *testing.T) {
	r, root := newTestResolver(t)
	writeArtifact(t, filepath.Join(root, "camera_6", "master.m3u8"))

	loc, err := r.Resolve(6, "1080p")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Kind != ArtifactAdaptiveMaster {
		t.Errorf("missing requested quality should fall back to master, got kind %d", loc.Kind)
	}
}

func TestResolver_nothingPresent(t *testing.T) {
	r, _ := newTestResolver(t)
	if _, err := r.Resolve(7, ""); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestResolver_staleMasterNotLive(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolverAt(root, 2*time.Minute, time.Hour, testClock(now))

	master := filepath.Join(root, "camera_8", "master.m3u8")
	writeArtifact(t, master)
	ageArtifact(t, master, now.Add(-10*time.Minute))

	// Byte serving still resolves the stale file.
	if _, err := r.Resolve(8, ""); err != nil {
		t.Errorf("Resolve should ignore staleness: %v", err)
	}
	// Availability reporting does not.
	if _, err := r.ResolveLive(8, ""); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound for stale master, got %v", err)
	}
}

func TestResolver_legacyWindowLonger(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolverAt(root, 2*time.Minute, time.Hour, testClock(now))

	legacy := filepath.Join(root, "camera_9.m3u8")
	writeArtifact(t, legacy)
	ageArtifact(t, legacy, now.Add(-30*time.Minute))

	// 30 minutes old: dead for adaptive, alive for legacy.
	if _, err := r.ResolveLive(9, ""); err != nil {
		t.Errorf("legacy artifact within its window reported not live: %v", err)
	}
}

func TestResolver_availability(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolverAt(root, 2*time.Minute, time.Hour, testClock(now))

	writeArtifact(t, filepath.Join(root, "camera_2", "master.m3u8"))
	writeArtifact(t, filepath.Join(root, "camera_2", "720p", "playlist.m3u8"))
	writeArtifact(t, filepath.Join(root, "camera_2.m3u8"))

	stale := filepath.Join(root, "camera_2", "360p", "playlist.m3u8")
	writeArtifact(t, stale)
	ageArtifact(t, stale, now.Add(-10*time.Minute))

	av := r.Availability(2)
	if !av.Adaptive || !av.Legacy {
		t.Errorf("adaptive and legacy should both be live: %+v", av)
	}
	if len(av.Qualities) != 1 || av.Qualities[0] != "720p" {
		t.Errorf("qualities = %v, want [720p] (360p is stale)", av.Qualities)
	}
	if !av.Online() {
		t.Error("camera with live artifacts reported offline")
	}

	if r.Availability(3).Online() {
		t.Error("camera without artifacts reported online")
	}
}

func TestResolver_resolveSegment(t *testing.T) {
	r, root := newTestResolver(t)

	adaptive := filepath.Join(root, "camera_2", "720p", "seg001.ts")
	writeArtifact(t, adaptive)
	legacy := filepath.Join(root, "camera_2_000001.ts")
	writeArtifact(t, legacy)

	// Explicit quality searches only that rendition.
	if path, err := r.ResolveSegment(2, "720p", "seg001.ts"); err != nil || path != adaptive {
		t.Errorf("quality segment: path %q err %v", path, err)
	}
	if _, err := r.ResolveSegment(2, "480p", "seg001.ts"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("segment in wrong rendition should not resolve, got %v", err)
	}

	// No quality: adaptive renditions first, then the flat legacy root.
	if path, err := r.ResolveSegment(2, "", "seg001.ts"); err != nil || path != adaptive {
		t.Errorf("unqualified segment: path %q err %v", path, err)
	}
	if path, err := r.ResolveSegment(2, "", "camera_2_000001.ts"); err != nil || path != legacy {
		t.Errorf("legacy segment: path %q err %v", path, err)
	}
	if _, err := r.ResolveSegment(2, "", "missing.ts"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("missing segment: got %v", err)
	}
}
