package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camera-gateway/internal/gateway"
	"camera-gateway/internal/platform/config"
	"camera-gateway/internal/platform/logger"
	"camera-gateway/internal/platform/metrics"
	"camera-gateway/internal/platform/ratelimit"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	mediaDir := config.GetEnv("MEDIA_DIR", "/app/output")
	recordingsDir := config.GetEnv("RECORDINGS_DIR", "/app/recordings")
	jwtSecret := config.GetEnv("JWT_SECRET", "")
	apiKey := config.GetEnv("API_ACCESS_KEY", "")
	cameraCount := config.GetEnvInt("CAMERA_COUNT", 24)
	streamTokenTTL := config.GetEnvDuration("STREAM_TOKEN_TTL", 30*time.Minute)
	adaptiveWindow := config.GetEnvDuration("ADAPTIVE_STALE_WINDOW", 2*time.Minute)
	legacyWindow := config.GetEnvDuration("LEGACY_STALE_WINDOW", time.Hour)
	stopGrace := config.GetEnvDuration("STOP_GRACE_PERIOD", gateway.DefaultStopGracePeriod)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	if jwtSecret == "" || apiKey == "" {
		log.Error("JWT_SECRET and API_ACCESS_KEY must be set")
		os.Exit(1)
	}

	for _, dir := range []string{mediaDir, recordingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("create directory", "dir", dir, "error", err.Error())
			os.Exit(1)
		}
	}

	codec, err := gateway.NewCodec(jwtSecret)
	if err != nil {
		log.Error("token codec", "error", err.Error())
		os.Exit(1)
	}

	rtspUser := config.GetEnv("RTSP_USER", "")
	rtspPass := config.GetEnv("RTSP_PASS", "")
	rtspHost := config.GetEnv("RTSP_BASE_IP", "127.0.0.1")
	rtspPort := config.GetEnv("RTSP_PORT", "554")
	source := func(camera gateway.CameraID) string {
		return fmt.Sprintf("rtsp://%s:%s@%s:%s/chID=%d", rtspUser, rtspPass, rtspHost, rtspPort, camera)
	}

	resolver := gateway.NewResolver(mediaDir, adaptiveWindow, legacyWindow)
	supervisor := gateway.NewSupervisor(&gateway.FFmpegLauncher{}, source, recordingsDir, stopGrace, log)
	status := gateway.NewStatusReporter(mediaDir, recordingsDir, supervisor)
	met := metrics.New()

	h := gateway.NewHandler(gateway.HandlerConfig{
		Codec:          codec,
		Resolver:       resolver,
		Supervisor:     supervisor,
		Directory:      gateway.DefaultDirectory(),
		Status:         status,
		APIKey:         apiKey,
		CameraCount:    cameraCount,
		StreamTokenTTL: streamTokenTTL,
	}, log, met)

	apiLimiter := ratelimit.New(100, 15*time.Minute)
	streamLimiter := ratelimit.New(300, time.Minute)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveRecordings(supervisor.ActiveCount()) }).ServeHTTP(w, req)
	})
	r.Mount("/", h.Routes(ratelimit.Middleware(apiLimiter), ratelimit.Middleware(streamLimiter)))

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("gateway starting",
		"port", port,
		"media_dir", mediaDir,
		"recordings_dir", recordingsDir,
		"camera_count", cameraCount,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	if err := supervisor.Shutdown(ctx); err != nil {
		log.Error("recordings did not stop in time", "error", err)
		os.Exit(1)
	}

	log.Info("gateway stopped")
}
