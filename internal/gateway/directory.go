package gateway

// Capability is what the external user/permission store resolves for a
// subject: a role and the cameras the subject may view. How it is stored is
// opaque to the gateway; only the resolved capability matters.
type Capability struct {
	Role    Role
	Cameras []CameraID
}

// Directory is the capability lookup service consumed by token issuance and
// login. Implementations may be backed by a database; the gateway ships a
// static one for deployments running without it.
type Directory interface {
	// Lookup resolves a subject id to its capability.
	Lookup(subject string) (Capability, bool)

	// Authenticate verifies credentials and returns the subject id and
	// capability on success.
	Authenticate(username, password string) (string, Capability, bool)
}

// StaticDirectory is an in-memory Directory.
type StaticDirectory struct {
	users map[string]staticUser
}

type staticUser struct {
	password   string
	capability Capability
}

// NewStaticDirectory builds a directory from explicit entries.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{users: make(map[string]staticUser)}
}

// Add registers a subject with credentials and capability. The subject id is
// the username.
func (d *StaticDirectory) Add(username, password string, cap Capability) *StaticDirectory {
	d.users[username] = staticUser{password: password, capability: cap}
	return d
}

// Lookup implements Directory.
func (d *StaticDirectory) Lookup(subject string) (Capability, bool) {
	u, ok := d.users[subject]
	if !ok {
		return Capability{}, false
	}
	return u.capability, true
}

// Authenticate implements Directory.
func (d *StaticDirectory) Authenticate(username, password string) (string, Capability, bool) {
	u, ok := d.users[username]
	if !ok || u.password != password {
		return "", Capability{}, false
	}
	return username, u.capability, true
}

// DefaultDirectory mirrors the deployment's bootstrap assignment: elevated
// roles with no explicit scope (they bypass it anyway) and four viewers each
// owning a contiguous six-camera block.
func DefaultDirectory() *StaticDirectory {
	block := func(from CameraID) []CameraID {
		ids := make([]CameraID, 6)
		for i := range ids {
			ids[i] = from + CameraID(i)
		}
		return ids
	}
	return NewStaticDirectory().
		Add("admin", "admin123", Capability{Role: RoleAdmin}).
		Add("operator", "op123", Capability{Role: RoleOperator}).
		Add("user1", "user123", Capability{Role: RoleViewer, Cameras: block(1)}).
		Add("user2", "user123", Capability{Role: RoleViewer, Cameras: block(7)}).
		Add("user3", "user123", Capability{Role: RoleViewer, Cameras: block(13)}).
		Add("user4", "user123", Capability{Role: RoleViewer, Cameras: block(19)})
}
