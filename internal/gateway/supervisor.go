package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// recordingTimestampLayout is sortable and filesystem-safe.
const recordingTimestampLayout = "2006-01-02T15-04-05"

// DefaultStopGracePeriod bounds how long a graceful stop cue may go
// unanswered before the process is killed.
const DefaultStopGracePeriod = 5 * time.Second

var (
	// ErrAlreadyRecording: a start raced an active session for the camera.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNotRecording: a stop or status found no active session.
	ErrNotRecording = errors.New("no active recording")
)

// SourceFunc maps a camera id to its capture source address.
type SourceFunc func(CameraID) string

// session is one active recording. Its watcher goroutine is the only code
// that removes it from the active set, so removal happens exactly once no
// matter whether the process exits from a stop cue, a kill, a crash, or
// natural completion.
type session struct {
	camera    CameraID
	filename  string
	output    string
	startedAt time.Time
	proc      Process
}

// Supervisor tracks at most one external capture process per camera.
// The active map is the only mutable shared state in the gateway core;
// every access goes through mu.
type Supervisor struct {
	launcher Launcher
	source   SourceFunc
	dir      string
	grace    time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[CameraID]*session
}

// NewSupervisor returns a supervisor writing recordings into dir. grace <= 0
// selects DefaultStopGracePeriod.
func NewSupervisor(launcher Launcher, source SourceFunc, dir string, grace time.Duration, log *slog.Logger) *Supervisor {
	if grace <= 0 {
		grace = DefaultStopGracePeriod
	}
	return &Supervisor{
		launcher: launcher,
		source:   source,
		dir:      dir,
		grace:    grace,
		log:      log,
		now:      time.Now,
		active:   make(map[CameraID]*session),
	}
}

// Start begins recording camera. The existence check and the insert are one
// critical section, so of two simultaneous starts exactly one wins. A spawn
// failure leaves no active entry behind; the camera stays startable.
// Start returns as soon as the process is spawned.
func (s *Supervisor) Start(camera CameraID) (RecordingInfo, error) {
	startedAt := s.now()
	filename := fmt.Sprintf("camera_%d_%s.mp4", camera, startedAt.UTC().Format(recordingTimestampLayout))
	output := filepath.Join(s.dir, filename)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[camera]; exists {
		return RecordingInfo{}, ErrAlreadyRecording
	}

	proc, err := s.launcher.Launch(camera, s.source(camera), output)
	if err != nil {
		s.log.Error("recording spawn failed",
			slog.Int("camera", int(camera)),
			slog.String("error", err.Error()))
		return RecordingInfo{}, fmt.Errorf("start recording camera %d: %w", camera, err)
	}

	sess := &session{
		camera:    camera,
		filename:  filename,
		output:    output,
		startedAt: startedAt,
		proc:      proc,
	}
	s.active[camera] = sess
	go s.watch(sess)

	s.log.Info("recording started",
		slog.Int("camera", int(camera)),
		slog.String("filename", filename))

	return RecordingInfo{Camera: camera, Filename: filename, StartedAt: startedAt}, nil
}

// watch waits for the session's process to exit and removes the session.
// It runs once per session and is the sole remover.
func (s *Supervisor) watch(sess *session) {
	<-sess.proc.Done()

	s.mu.Lock()
	if s.active[sess.camera] == sess {
		delete(s.active, sess.camera)
	}
	s.mu.Unlock()

	if err := sess.proc.Err(); err != nil {
		s.log.Warn("recording exited with error",
			slog.Int("camera", int(sess.camera)),
			slog.String("filename", sess.filename),
			slog.String("error", err.Error()))
		return
	}
	s.log.Info("recording exited",
		slog.Int("camera", int(sess.camera)),
		slog.String("filename", sess.filename))
}

// StopResult reports what a stop concluded.
type StopResult struct {
	Filename string
	Duration time.Duration
}

// Stop cues the camera's recording to finish, waits up to the grace period,
// then kills. The watcher goroutine does the removal; Stop never touches the
// active set beyond the lookup, so removal stays exactly-once.
func (s *Supervisor) Stop(camera CameraID) (StopResult, error) {
	s.mu.Lock()
	sess, exists := s.active[camera]
	s.mu.Unlock()
	if !exists {
		return StopResult{}, ErrNotRecording
	}

	if err := sess.proc.Stop(); err != nil {
		s.log.Warn("graceful stop cue failed",
			slog.Int("camera", int(camera)),
			slog.String("error", err.Error()))
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-sess.proc.Done():
	case <-timer.C:
		s.log.Warn("recording did not stop in time, killing",
			slog.Int("camera", int(camera)),
			slog.String("filename", sess.filename))
		if err := sess.proc.Kill(); err != nil {
			return StopResult{}, fmt.Errorf("stop recording camera %d: kill: %w", camera, err)
		}
		<-sess.proc.Done()
	}

	return StopResult{
		Filename: sess.filename,
		Duration: s.now().Sub(sess.startedAt),
	}, nil
}

// Status is a pure read of the active set.
func (s *Supervisor) Status(camera CameraID) (RecordingInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, exists := s.active[camera]
	if !exists {
		return RecordingInfo{}, false
	}
	return RecordingInfo{Camera: camera, Filename: sess.filename, StartedAt: sess.startedAt}, true
}

// ActiveCount returns the number of cameras currently recording.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown cues every active recording to finish and waits for the exits,
// bounded by ctx. Best effort: sessions still running when ctx expires are
// abandoned to the OS.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.active))
	for _, sess := range s.active {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.log.Info("stopping recording for shutdown",
			slog.Int("camera", int(sess.camera)),
			slog.String("filename", sess.filename))
		if err := sess.proc.Stop(); err != nil {
			s.log.Warn("shutdown stop cue failed",
				slog.Int("camera", int(sess.camera)),
				slog.String("error", err.Error()))
		}
	}
	for _, sess := range sessions {
		select {
		case <-sess.proc.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
