package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/pkg/validator"
)

// DeniedPath is where the Edge Gate sends rejected requests
const DeniedPath = "/access-denied"

const invitePrefix = "/invite/"

// EdgeGate is a stateless structural pre-filter for invite and patient-room
// paths. It never consults the invitation store. The referrer check on
// patient rooms is a heuristic: the header is client-supplied and spoofable.
type EdgeGate struct {
	csp string
}

// NewEdgeGate builds the gate. videoURL and connectSrc are added to the
// connect-src directive of the content security policy.
func NewEdgeGate(videoURL string, connectSrc []string) *EdgeGate {
	return &EdgeGate{csp: contentSecurityPolicy(videoURL, connectSrc)}
}

// Handler applies the gate to every request and attaches the defensive
// headers to those it lets through.
func (g *EdgeGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason, denied := inspect(r); denied {
			redirectDenied(w, r, reason)
			return
		}

		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(self), microphone=(self), geolocation=()")
		h.Set("Content-Security-Policy", g.csp)

		next.ServeHTTP(w, r)
	})
}

// inspect returns the deny reason for a gated path
func inspect(r *http.Request) (invitation.Reason, bool) {
	path := r.URL.Path

	if path == "/invite" || strings.HasPrefix(path, invitePrefix) {
		token := strings.Trim(strings.TrimPrefix(strings.TrimPrefix(path, "/invite"), "/"), " ")
		if token == "" {
			return invitation.ReasonInvalidLink, true
		}
		if strings.Contains(token, "/") || !validator.HasJWTShape(token) {
			return invitation.ReasonInvalidToken, true
		}
		return "", false
	}

	if isPatientRoom(path) && !cameFromInvite(r.Referer()) {
		return invitation.ReasonDirectAccess, true
	}
	return "", false
}

// isPatientRoom matches /room/<id>/patient
func isPatientRoom(path string) bool {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return len(parts) == 3 && parts[0] == "room" && parts[1] != "" && parts[2] == "patient"
}

func cameFromInvite(referer string) bool {
	if referer == "" {
		return false
	}
	u, err := url.Parse(referer)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, invitePrefix)
}

func redirectDenied(w http.ResponseWriter, r *http.Request, reason invitation.Reason) {
	target := DeniedPath + "?reason=" + url.QueryEscape(string(reason))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func contentSecurityPolicy(videoURL string, connectSrc []string) string {
	connect := []string{"'self'"}
	if videoURL != "" {
		connect = append(connect, videoURL)
		// LiveKit signals over wss and fetches region info over https
		switch {
		case strings.HasPrefix(videoURL, "wss://"):
			connect = append(connect, "https://"+strings.TrimPrefix(videoURL, "wss://"))
		case strings.HasPrefix(videoURL, "https://"):
			connect = append(connect, "wss://"+strings.TrimPrefix(videoURL, "https://"))
		}
	}
	for _, src := range connectSrc {
		if src = strings.TrimSpace(src); src != "" {
			connect = append(connect, src)
		}
	}

	directives := []string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: blob:",
		"media-src 'self' blob: mediastream:",
		"connect-src " + strings.Join(connect, " "),
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	return strings.Join(directives, "; ")
}
