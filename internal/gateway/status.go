package gateway

import (
	"os"
	"strings"
	"time"
)

// StatusReport aggregates read-only counts over both directory roots plus
// the supervisor's active set.
type StatusReport struct {
	LegacyCameras    int `json:"legacyCameras"`
	AdaptiveCameras  int `json:"adaptiveCameras"`
	TotalSegments    int `json:"totalSegments"`
	TotalRecordings  int `json:"totalRecordings"`
	ActiveRecordings int `json:"activeRecordings"`
}

// StatusReporter produces StatusReports. Counts are recomputed per call;
// the roots change under us continuously.
type StatusReporter struct {
	mediaRoot     string
	recordingsDir string
	supervisor    *Supervisor
}

// NewStatusReporter returns a reporter over the two roots.
func NewStatusReporter(mediaRoot, recordingsDir string, supervisor *Supervisor) *StatusReporter {
	return &StatusReporter{
		mediaRoot:     mediaRoot,
		recordingsDir: recordingsDir,
		supervisor:    supervisor,
	}
}

// Report walks the top level of both roots. Unreadable roots count as empty
// rather than failing the status endpoint.
func (s *StatusReporter) Report() StatusReport {
	var report StatusReport

	if entries, err := os.ReadDir(s.mediaRoot); err == nil {
		for _, e := range entries {
			name := e.Name()
			switch {
			case e.IsDir() && strings.HasPrefix(name, "camera_"):
				report.AdaptiveCameras++
			case strings.HasSuffix(name, ".m3u8"):
				report.LegacyCameras++
			case strings.HasSuffix(name, segmentExt):
				report.TotalSegments++
			}
		}
	}

	if entries, err := os.ReadDir(s.recordingsDir); err == nil {
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".mp4") {
				report.TotalRecordings++
			}
		}
	}

	report.ActiveRecordings = s.supervisor.ActiveCount()
	return report
}

// ServiceStatus is the full /status payload.
type ServiceStatus struct {
	Status    string       `json:"status"`
	Service   string       `json:"service"`
	Timestamp time.Time    `json:"timestamp"`
	Media     StatusReport `json:"media"`
}
