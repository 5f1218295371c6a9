package authn

import (
	"net/http"
	"strings"

	"github.com/docflow/edms/pkg/lifecycle"
)

// Trusted identity headers set by the fronting proxy.
const (
	HeaderUser        = "X-Remote-User"
	HeaderRole        = "X-Remote-Role"
	HeaderDepartment  = "X-Remote-Department"
	HeaderPermissions = "X-Remote-Permissions"
)

// HeaderResolver reads the actor from trusted proxy headers.
// X-Remote-Permissions is comma-separated.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (lifecycle.Actor, error) {
	user := strings.TrimSpace(r.Header.Get(HeaderUser))
	if user == "" {
		return lifecycle.Actor{}, ErrUnauthenticated
	}
	role, err := parseRole(r.Header.Get(HeaderRole))
	if err != nil {
		return lifecycle.Actor{}, err
	}
	var perms []string
	if h := r.Header.Get(HeaderPermissions); h != "" {
		perms = strings.Split(h, ",")
	}
	return lifecycle.Actor{
		ID:          user,
		Role:        role,
		Department:  strings.TrimSpace(r.Header.Get(HeaderDepartment)),
		Permissions: permissionSet(perms),
	}, nil
}
