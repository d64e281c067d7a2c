package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"camera-gateway/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
	sessionTokenTTL     = 24 * time.Hour
)

// HandlerConfig wires the gateway components into the HTTP surface.
type HandlerConfig struct {
	Codec          *Codec
	Resolver       *Resolver
	Supervisor     *Supervisor
	Directory      Directory
	Status         *StatusReporter
	APIKey         string
	CameraCount    int
	StreamTokenTTL time.Duration
}

// Handler exposes the gateway over HTTP using go-chi. Metrics may be nil to
// disable metric recording (e.g. in tests).
type Handler struct {
	cfg     HandlerConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler for the given components.
func NewHandler(cfg HandlerConfig, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{cfg: cfg, log: log, metrics: m}
}

// Routes assembles the full route tree. The limiter middlewares guard the
// management API and the stream routes respectively; either may be nil.
//
// Note the one-level /stream/{cameraID}/{quality} route: chi requires a
// single wildcard name per tree level, so that parameter holds a legacy
// segment name when the path has no second level.
func (h *Handler) Routes(apiLimiter, streamLimiter func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/status", h.ServiceStatus)
	r.Post("/auth/token", h.Login)
	r.Get("/auth/validate", h.ValidateSession)

	r.Route("/api", func(api chi.Router) {
		if apiLimiter != nil {
			api.Use(apiLimiter)
		}
		api.Use(h.RequireAPIKey)
		api.Post("/stream-token", h.IssueStreamToken)
		api.Get("/stream-token/verify", h.VerifyStreamToken)
		api.Get("/cameras", h.ListCameras)
		api.Route("/camera/{cameraID}", func(cam chi.Router) {
			cam.Get("/streams", h.CameraStreams)
			cam.Post("/start-recording", h.StartRecording)
			cam.Post("/stop-recording", h.StopRecording)
			cam.Get("/recording-status", h.RecordingStatus)
		})
	})

	r.Route("/stream/{cameraID}", func(st chi.Router) {
		if streamLimiter != nil {
			st.Use(streamLimiter)
		}
		st.Use(h.RequireStreamToken)
		st.Get("/master.m3u8", h.ServePlaylist)
		st.Get("/playlist.m3u8", h.ServePlaylist)
		st.Route("/{quality}", func(q chi.Router) {
			q.Get("/", h.ServeLegacySegment)
			q.Get("/playlist.m3u8", h.ServeQualityPlaylist)
			q.Get("/{segment}", h.ServeQualitySegment)
		})
	})

	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("write response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// cameraParam parses and range-checks the cameraID URL parameter.
func (h *Handler) cameraParam(r *http.Request) (CameraID, error) {
	raw := chi.URLParam(r, "cameraID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 || id > h.cfg.CameraCount {
		return 0, fmt.Errorf("invalid camera ID (1-%d)", h.cfg.CameraCount)
	}
	return CameraID(id), nil
}

// extractToken pulls a token from the token query parameter or a bearer
// Authorization header. Players fetching segments can only pass query
// parameters, API clients prefer the header; both are accepted everywhere.
func extractToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// RequireAPIKey guards management routes with the deployment API key.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != h.cfg.APIKey {
			h.writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStreamToken verifies and authorizes a stream-kind token against the
// camera in the URL before any byte of media is served.
func (h *Handler) RequireStreamToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		camera, err := h.cameraParam(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		tok := extractToken(r)
		if tok == "" {
			h.writeError(w, http.StatusUnauthorized, "Stream access denied: token required")
			return
		}

		claims, err := h.cfg.Codec.Verify(tok)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				h.writeError(w, http.StatusUnauthorized, "Stream token expired")
				return
			}
			h.writeError(w, http.StatusUnauthorized, "Stream access denied: invalid token")
			return
		}

		if err := Authorize(claims, camera, KindStream); err != nil {
			var deny *DenyError
			if errors.As(err, &deny) && deny.Reason == DenyCameraNotInScope {
				h.log.Info("stream access denied",
					slog.Int("camera", int(camera)),
					slog.String("subject", claims.Subject))
				h.writeJSON(w, http.StatusForbidden, map[string]any{
					"error":           "Stream access denied: camera not in token scope",
					"requestedCamera": camera,
					"allowedCameras":  deny.Allowed,
				})
				return
			}
			h.writeError(w, http.StatusForbidden, "Invalid token type for stream access")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Login handles POST /auth/token: credentials in, session token out.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	subject, cap, ok := h.cfg.Directory.Authenticate(body.Username, body.Password)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	claims := Claims{Kind: KindSession, Role: cap.Role, Cameras: cap.Cameras}
	claims.Subject = subject
	token, err := h.cfg.Codec.Issue(claims, sessionTokenTTL)
	if err != nil {
		h.log.Error("issue session token", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user": map[string]any{
			"username": subject,
			"role":     cap.Role,
			"cameras":  cap.Cameras,
		},
	})
}

// ValidateSession handles GET /auth/validate.
func (h *Handler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	tok := extractToken(r)
	if tok == "" {
		h.writeError(w, http.StatusUnauthorized, "Token required")
		return
	}
	claims, err := h.cfg.Codec.Verify(tok)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			h.writeError(w, http.StatusUnauthorized, "Token expired")
			return
		}
		h.writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"username": claims.Subject,
			"role":     claims.Role,
			"cameras":  claims.Scope(),
		},
	})
}

// IssueStreamToken handles POST /api/stream-token. The request names a
// single camera, a list, or scope "all"; when a subject is named its
// capability clamps the grant and any overreach is refused outright with
// the offending ids.
func (h *Handler) IssueStreamToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CameraID  int    `json:"cameraId"`
		CameraIDs []int  `json:"cameraIds"`
		Scope     string `json:"scope"`
		UserID    string `json:"userId"`
		Duration  string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		role    Role
		allowed []CameraID
	)
	if body.UserID != "" {
		cap, ok := h.cfg.Directory.Lookup(body.UserID)
		if !ok {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		role = cap.Role
		if cap.Role.Elevated() {
			allowed = h.allCameras()
		} else {
			allowed = cap.Cameras
		}
	}

	var target []CameraID
	switch {
	case body.Scope == "all":
		if len(allowed) > 0 {
			target = allowed
		} else {
			target = h.allCameras()
		}
	case len(body.CameraIDs) > 0:
		if len(allowed) > 0 {
			var unauthorized []CameraID
			for _, id := range body.CameraIDs {
				if !containsCamera(allowed, CameraID(id)) {
					unauthorized = append(unauthorized, CameraID(id))
				}
			}
			if len(unauthorized) > 0 {
				h.writeJSON(w, http.StatusForbidden, map[string]any{
					"error":        "Access denied to some cameras",
					"unauthorized": unauthorized,
					"allowed":      allowed,
				})
				return
			}
		}
		for _, id := range body.CameraIDs {
			if id >= 1 && id <= h.cfg.CameraCount {
				target = append(target, CameraID(id))
			}
		}
	case body.CameraID != 0:
		if len(allowed) > 0 && !containsCamera(allowed, CameraID(body.CameraID)) {
			h.writeError(w, http.StatusForbidden, "User does not have access to this camera")
			return
		}
		if body.CameraID >= 1 && body.CameraID <= h.cfg.CameraCount {
			target = []CameraID{CameraID(body.CameraID)}
		}
	default:
		h.writeError(w, http.StatusBadRequest, `Specify cameraId, cameraIds array, or scope="all"`)
		return
	}

	if len(target) == 0 {
		h.writeError(w, http.StatusBadRequest, "No valid cameras specified")
		return
	}

	ttl := h.cfg.StreamTokenTTL
	if body.Duration != "" {
		parsed, err := time.ParseDuration(body.Duration)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid duration")
			return
		}
		ttl = parsed
	}

	claims := Claims{
		Kind:    KindStream,
		Role:    role,
		Cameras: target,
		Camera:  target[0],
	}
	claims.Subject = body.UserID
	token, err := h.cfg.Codec.Issue(claims, ttl)
	if err != nil {
		h.log.Error("issue stream token", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Failed to generate stream token")
		return
	}

	scopeLabel := "multiple"
	if len(target) == 1 {
		scopeLabel = "single"
	}
	h.log.Info("stream token issued",
		slog.String("subject", body.UserID),
		slog.Int("cameras", len(target)),
		slog.String("ttl", ttl.String()))
	if h.metrics != nil {
		h.metrics.IncTokensIssued()
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"token":     token,
		"cameras":   target,
		"scope":     scopeLabel,
		"expiresIn": ttl.String(),
	})
}

// VerifyStreamToken handles GET /api/stream-token/verify. Validity is part
// of the payload, not the status code: an expired token is a well-formed
// question with a negative answer.
func (h *Handler) VerifyStreamToken(w http.ResponseWriter, r *http.Request) {
	tok := extractToken(r)
	if tok == "" {
		h.writeError(w, http.StatusBadRequest, "Token parameter required")
		return
	}

	claims, err := h.cfg.Codec.Verify(tok)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			h.writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": "Token expired"})
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": "Invalid token"})
		return
	}
	if claims.Kind != KindStream {
		h.writeError(w, http.StatusBadRequest, "Not a stream token")
		return
	}

	payload := map[string]any{
		"type":     claims.Kind,
		"cameras":  claims.Scope(),
		"userId":   claims.Subject,
		"userRole": claims.Role,
	}
	if claims.IssuedAt != nil {
		payload["issuedAt"] = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		payload["expiresAt"] = claims.ExpiresAt.Time
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"valid": true, "token": payload})
}

// ListCameras handles GET /api/cameras: every configured camera with its
// live status derived from the artifacts on disk.
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	type cameraEntry struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		AdaptiveHLS bool   `json:"adaptiveHls"`
	}

	cameras := make([]cameraEntry, 0, h.cfg.CameraCount)
	for id := 1; id <= h.cfg.CameraCount; id++ {
		av := h.cfg.Resolver.Availability(CameraID(id))
		status := "offline"
		if av.Online() {
			status = "online"
		}
		cameras = append(cameras, cameraEntry{
			ID:          id,
			Name:        fmt.Sprintf("Camera %d", id),
			Status:      status,
			AdaptiveHLS: av.Adaptive || len(av.Qualities) > 0,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cameras": cameras,
		"total":   len(cameras),
	})
}

// CameraStreams handles GET /api/camera/{cameraID}/streams: the playlist
// URLs currently live for one camera.
func (h *Handler) CameraStreams(w http.ResponseWriter, r *http.Request) {
	camera, err := h.cameraParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	av := h.cfg.Resolver.Availability(camera)
	if !av.Online() {
		h.writeError(w, http.StatusNotFound, "No streams available for this camera")
		return
	}

	streams := make(map[string]any)
	if av.Adaptive {
		streams["adaptive"] = fmt.Sprintf("/stream/%d/master.m3u8", camera)
	}
	if len(av.Qualities) > 0 {
		type qualityLink struct {
			Quality string `json:"quality"`
			URL     string `json:"url"`
		}
		links := make([]qualityLink, 0, len(av.Qualities))
		for _, q := range av.Qualities {
			links = append(links, qualityLink{Quality: q, URL: fmt.Sprintf("/stream/%d/%s/playlist.m3u8", camera, q)})
		}
		streams["qualities"] = links
	}
	if av.Legacy {
		streams["legacy"] = fmt.Sprintf("/stream/%d/playlist.m3u8", camera)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"cameraId": camera,
		"streams":  streams,
	})
}

// servePlaylistFile writes a resolved playlist with no-store headers; the
// capture pipeline rewrites playlists every few seconds.
func (h *Handler) servePlaylistFile(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, path)
	if h.metrics != nil {
		h.metrics.IncPlaylistsServed()
	}
}

// ServePlaylist handles the master and legacy playlist routes through the
// shared fallback chain: requested-quality, master, best quality, legacy.
func (h *Handler) ServePlaylist(w http.ResponseWriter, r *http.Request) {
	camera, _ := h.cameraParam(r) // validated by RequireStreamToken

	loc, err := h.cfg.Resolver.Resolve(camera, "")
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	h.servePlaylistFile(w, r, loc.Path)
}

// ServeQualityPlaylist handles GET /stream/{cameraID}/{quality}/playlist.m3u8.
func (h *Handler) ServeQualityPlaylist(w http.ResponseWriter, r *http.Request) {
	camera, _ := h.cameraParam(r)
	quality := chi.URLParam(r, "quality")
	if err := ValidateQuality(quality); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid quality parameter")
		return
	}

	loc, err := h.cfg.Resolver.Resolve(camera, quality)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Quality playlist not found")
		return
	}
	h.servePlaylistFile(w, r, loc.Path)
}

func (h *Handler) serveSegmentFile(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeFile(w, r, path)
	if h.metrics != nil {
		h.metrics.IncSegmentsServed()
	}
}

// ServeQualitySegment handles GET /stream/{cameraID}/{quality}/{segment}.
func (h *Handler) ServeQualitySegment(w http.ResponseWriter, r *http.Request) {
	camera, _ := h.cameraParam(r)
	quality := chi.URLParam(r, "quality")
	segment := chi.URLParam(r, "segment")

	if err := ValidateQuality(quality); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid quality parameter")
		return
	}
	if err := ValidateSegment(segment); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid segment format")
		return
	}

	path, err := h.cfg.Resolver.ResolveSegment(camera, quality, segment)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Segment not found")
		return
	}
	h.log.Debug("segment served",
		slog.Int("camera", int(camera)),
		slog.String("segment", segment))
	h.serveSegmentFile(w, r, path)
}

// ServeLegacySegment handles the one-level GET /stream/{cameraID}/{name}.
// The URL parameter is registered as {quality} (see Routes) but holds a
// legacy segment filename here.
func (h *Handler) ServeLegacySegment(w http.ResponseWriter, r *http.Request) {
	camera, _ := h.cameraParam(r)
	segment := chi.URLParam(r, "quality")

	if err := ValidateLegacySegment(camera, segment); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid segment format")
		return
	}

	path, err := h.cfg.Resolver.ResolveSegment(camera, "", segment)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Segment not found")
		return
	}
	h.log.Debug("legacy segment served",
		slog.Int("camera", int(camera)),
		slog.String("segment", segment))
	h.serveSegmentFile(w, r, path)
}

// StartRecording handles POST /api/camera/{cameraID}/start-recording.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	camera, err := h.cameraParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.cfg.Supervisor.Start(camera)
	if err != nil {
		if errors.Is(err, ErrAlreadyRecording) {
			h.writeError(w, http.StatusBadRequest, "Recording already in progress")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to start recording")
		return
	}
	if h.metrics != nil {
		h.metrics.IncRecordingsStarted()
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Recording started",
		"cameraId":  info.Camera,
		"filename":  info.Filename,
		"startTime": info.StartedAt,
	})
}

// StopRecording handles POST /api/camera/{cameraID}/stop-recording.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	camera, err := h.cameraParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.cfg.Supervisor.Stop(camera)
	if err != nil {
		if errors.Is(err, ErrNotRecording) {
			h.writeError(w, http.StatusNotFound, "No active recording for this camera")
			return
		}
		h.log.Error("stop recording failed",
			slog.Int("camera", int(camera)),
			slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "Failed to stop recording")
		return
	}
	if h.metrics != nil {
		h.metrics.IncRecordingsStopped()
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "Recording stopped",
		"cameraId":        camera,
		"filename":        result.Filename,
		"durationSeconds": int(result.Duration.Seconds()),
	})
}

// RecordingStatus handles GET /api/camera/{cameraID}/recording-status.
func (h *Handler) RecordingStatus(w http.ResponseWriter, r *http.Request) {
	camera, err := h.cameraParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, recording := h.cfg.Supervisor.Status(camera)
	if !recording {
		h.writeJSON(w, http.StatusOK, map[string]any{"isRecording": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"isRecording":     true,
		"filename":        info.Filename,
		"startTime":       info.StartedAt,
		"durationSeconds": int(time.Since(info.StartedAt).Seconds()),
	})
}

// ServiceStatus handles GET /status.
func (h *Handler) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ServiceStatus{
		Status:    "ok",
		Service:   "camera-gateway",
		Timestamp: time.Now().UTC(),
		Media:     h.cfg.Status.Report(),
	})
}

func (h *Handler) allCameras() []CameraID {
	ids := make([]CameraID, h.cfg.CameraCount)
	for i := range ids {
		ids[i] = CameraID(i + 1)
	}
	return ids
}

func containsCamera(set []CameraID, id CameraID) bool {
	for _, c := range set {
		if c == id {
			return true
		}
	}
	return false
}
