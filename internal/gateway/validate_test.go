package gateway

import "testing"

func TestValidateQuality(t *testing.T) {
	for _, q := range []string{"360p", "480p", "720p", "1080p"} {
		if err := ValidateQuality(q); err != nil {
			t.Errorf("quality %q rejected: %v", q, err)
		}
	}
	for _, q := range []string{"", "240p", "4k", "720P", "720p/", "../720p", "master.m3u8"} {
		if err := ValidateQuality(q); err == nil {
			t.Errorf("quality %q accepted", q)
		}
	}
}

func TestValidateSegment(t *testing.T) {
	for _, seg := range []string{"segment001.ts", "camera_2_000042.ts", "a.ts"} {
		if err := ValidateSegment(seg); err != nil {
			t.Errorf("segment %q rejected: %v", seg, err)
		}
	}
	for _, seg := range []string{
		"",
		".ts",
		"segment001.mp4",
		"segment001",
		"../../etc/passwd",
		"../segment001.ts",
		"..segment.ts",
		"dir/segment001.ts",
		`dir\segment001.ts`,
		"/etc/passwd.ts",
	} {
		if err := ValidateSegment(seg); err == nil {
			t.Errorf("segment %q accepted", seg)
		}
	}
}

func TestValidateLegacySegment(t *testing.T) {
	if err := ValidateLegacySegment(2, "camera_2_000042.ts"); err != nil {
		t.Errorf("well-formed legacy segment rejected: %v", err)
	}

	// Another camera's segment, even well-formed, must be rejected.
	if err := ValidateLegacySegment(2, "camera_3_000042.ts"); err == nil {
		t.Error("cross-camera legacy segment accepted")
	}

	// camera_1 must not match camera_10's files.
	if err := ValidateLegacySegment(1, "camera_10_000042.ts"); err == nil {
		t.Error("prefix collision: camera_10 segment accepted for camera 1")
	}

	// Traversal still rejected with the right prefix.
	if err := ValidateLegacySegment(2, "camera_2_../../x.ts"); err == nil {
		t.Error("traversal in legacy segment accepted")
	}
}
