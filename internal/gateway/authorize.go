package gateway

import (
	"fmt"
	"slices"
)

// DenyReason classifies why a request was refused by the authorizer.
type DenyReason string

const (
	// DenyWrongTokenKind: the token is valid but its kind is not accepted
	// by this operation class (e.g. a session token on a segment route).
	DenyWrongTokenKind DenyReason = "wrong token kind"

	// DenyCameraNotInScope: a viewer token whose camera scope does not
	// contain the requested camera.
	DenyCameraNotInScope DenyReason = "camera not in token scope"
)

// DenyError is a terminal authorization failure. For scope denials it
// carries the requested camera and the allowed set: the caller is already
// authenticated, so disclosing their own scope is diagnostic, not a leak.
type DenyError struct {
	Reason  DenyReason
	Camera  CameraID
	Allowed []CameraID
}

func (e *DenyError) Error() string {
	if e.Reason == DenyCameraNotInScope {
		return fmt.Sprintf("access denied: camera %d not in scope %v", e.Camera, e.Allowed)
	}
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Authorize decides whether claims permit access to camera. The accepted
// kinds restrict which token kinds the calling operation class takes; with
// none given, any kind passes the kind gate.
//
// Elevated roles (admin, operator) bypass scope entirely. Viewers are
// allowed only when the camera is in their normalized scope. A deny is
// terminal and never retried.
func Authorize(claims *Claims, camera CameraID, accepted ...TokenKind) error {
	if len(accepted) > 0 && !slices.Contains(accepted, claims.Kind) {
		return &DenyError{Reason: DenyWrongTokenKind, Camera: camera}
	}
	if claims.Role.Elevated() {
		return nil
	}
	scope := claims.Scope()
	if slices.Contains(scope, camera) {
		return nil
	}
	return &DenyError{Reason: DenyCameraNotInScope, Camera: camera, Allowed: scope}
}
