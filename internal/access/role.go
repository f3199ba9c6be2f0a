package access

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Principal is an authenticated caller identity: a backend service, a user acting
// through the dashboard, an operator.
type Principal string

// Role is an opaque fixed-width role identifier, the Keccak-256 hash of its name.
type Role [32]byte

var (
	RoleAdmin   = RoleFromName("ADMIN")
	RoleBackend = RoleFromName("BACKEND")
)

var knownRoles = map[Role]string{
	RoleAdmin:   "ADMIN",
	RoleBackend: "BACKEND",
}

// RoleFromName derives a role identifier from a human-readable name.
func RoleFromName(name string) Role {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	var r Role
	copy(r[:], h.Sum(nil))
	return r
}

// ParseRole accepts either a 0x-prefixed 32-byte hex identifier or a role name.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Role{}, fmt.Errorf("%w: empty role", ErrInvalidRole)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return RoleFromName(strings.ToUpper(s)), nil
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil || len(raw) != len(Role{}) {
		return Role{}, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	var r Role
	copy(r[:], raw)
	return r, nil
}

func (r Role) String() string {
	return "0x" + hex.EncodeToString(r[:])
}

// Name returns the human-readable name for well-known roles, or the hex form.
func (r Role) Name() string {
	if name, ok := knownRoles[r]; ok {
		return name
	}
	return r.String()
}
