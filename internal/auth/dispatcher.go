package auth

import (
	"net/http"
	"strings"
)

// IsAdminPath reports whether path belongs to the back office.
func IsAdminPath(path string) bool {
	for _, prefix := range []string{"/admin", "/api/admin"} {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// Dispatcher selects the admin or the shopper scheme by path prefix. The two
// sessions are mutually exclusive: logging in with one revokes the other.
type Dispatcher struct {
	Admin   Scheme
	Shopper Scheme
}

func (d *Dispatcher) SchemeFor(path string) Scheme {
	if IsAdminPath(path) {
		return d.Admin
	}
	return d.Shopper
}

func (d *Dispatcher) other(role Role) Scheme {
	if role == RoleAdmin {
		return d.Shopper
	}
	return d.Admin
}

// Middleware attaches the principal of the selected scheme, when valid.
// Anonymous requests pass through; Require decides what needs a session.
func (d *Dispatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := d.SchemeFor(r.URL.Path).Verify(r); err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// Login issues a session for p and clears any session of the other role.
func (d *Dispatcher) Login(w http.ResponseWriter, p Principal) error {
	s := d.Shopper
	if p.Role == RoleAdmin {
		s = d.Admin
	}
	if err := s.Issue(w, p); err != nil {
		return err
	}
	d.other(p.Role).Revoke(w)
	return nil
}

func (d *Dispatcher) Logout(w http.ResponseWriter, role Role) {
	if role == RoleAdmin {
		d.Admin.Revoke(w)
		return
	}
	d.Shopper.Revoke(w)
}

// Require rejects requests without a principal of the given role by calling deny.
func Require(role Role, deny http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || p.Role != role {
				deny.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
