package gateway

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is the supervisor's handle on one external capture process.
// Done is closed when the process has exited; Err is meaningful only after
// that. Stop delivers the graceful shutdown cue, Kill terminates forcibly.
type Process interface {
	Stop() error
	Kill() error
	Done() <-chan struct{}
	Err() error
}

// Launcher spawns a capture process bound to a camera's source address and
// an output path. The supervisor owns the returned Process exclusively.
type Launcher interface {
	Launch(camera CameraID, source, outputPath string) (Process, error)
}

// FFmpegLauncher runs ffmpeg against an RTSP source, producing an mp4.
type FFmpegLauncher struct {
	// Binary overrides the ffmpeg executable path. Empty means "ffmpeg".
	Binary string
}

// Launch starts ffmpeg recording source into outputPath. The returned
// process exits on its own when the source ends, on a graceful "q" cue,
// or on a kill.
func (l *FFmpegLauncher) Launch(camera CameraID, source, outputPath string) (Process, error) {
	bin := l.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{
		"-rtsp_transport", "tcp",
		"-i", source,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "mp4",
		outputPath,
	}

	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("launcher: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launcher: start %s: %w", bin, err)
	}

	p := &ffmpegProcess{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type ffmpegProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	waitErr error
}

// Stop asks ffmpeg to finalize the output: writing "q" to its stdin makes
// it close the container cleanly, unlike a signal.
func (p *ffmpegProcess) Stop() error {
	_, err := io.WriteString(p.stdin, "q")
	return err
}

func (p *ffmpegProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *ffmpegProcess) Done() <-chan struct{} { return p.done }

func (p *ffmpegProcess) Err() error { return p.waitErr }
