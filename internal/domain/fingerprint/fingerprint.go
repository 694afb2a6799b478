package fingerprint

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is the client-observable signal bundle collected by the browser
// before it calls validate.
type Fingerprint struct {
	UserAgent        string       `json:"userAgent"`
	Language         string       `json:"language"`
	Platform         string       `json:"platform"`
	ScreenResolution string       `json:"screenResolution"`
	Timezone         string       `json:"timezone"`
	CookieEnabled    bool         `json:"cookieEnabled"`
	DoNotTrack       string       `json:"doNotTrack"`
	Geolocation      *Geolocation `json:"geolocation,omitempty"`
}

// Geolocation is derived from the requester IP on the client side. It is an
// advisory signal and never part of the device hash.
type Geolocation struct {
	Country  string `json:"country"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	ISP      string `json:"isp,omitempty"`
}

// Pinned is the subset of a fingerprint persisted on an invitation after its
// first successful validation.
type Pinned struct {
	Hash          string `json:"hash"`
	BrowserFamily string `json:"browserFamily"`
	Country       string `json:"country,omitempty"`
}

// IsZero reports whether no signal at all was collected.
func (f Fingerprint) IsZero() bool {
	return f.UserAgent == "" && f.Language == "" && f.Platform == "" &&
		f.ScreenResolution == "" && f.Timezone == ""
}

// Canonical returns the normalized field set the hash is computed over.
// Fields are trimmed, lower-cased and joined in a fixed order.
func (f Fingerprint) Canonical() string {
	fields := []string{
		"ua=" + normalize(f.UserAgent),
		"lang=" + normalize(f.Language),
		"platform=" + normalize(f.Platform),
		"screen=" + normalize(f.ScreenResolution),
		"tz=" + normalize(f.Timezone),
		"cookie=" + strconv.FormatBool(f.CookieEnabled),
		"dnt=" + normalize(f.DoNotTrack),
	}
	return strings.Join(fields, "\n")
}

// Hash returns the hex BLAKE2b-256 digest of the canonical field set.
func (f Fingerprint) Hash() string {
	sum := blake2b.Sum256([]byte(f.Canonical()))
	return hex.EncodeToString(sum[:])
}

// Pin reduces the fingerprint to what gets stored on the invitation.
func (f Fingerprint) Pin() Pinned {
	p := Pinned{
		Hash:          f.Hash(),
		BrowserFamily: BrowserFamily(f.UserAgent),
	}
	if f.Geolocation != nil {
		p.Country = strings.ToUpper(strings.TrimSpace(f.Geolocation.Country))
	}
	return p
}

// Country returns the upper-cased presented country, or "" when absent.
func (f Fingerprint) Country() string {
	if f.Geolocation == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(f.Geolocation.Country))
}

// BrowserFamily maps a user agent to a coarse browser family. Order matters:
// Edge and Opera carry "Chrome" in their UA, Chrome carries "Safari".
func BrowserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios/"):
		return "firefox"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		return "chrome"
	case strings.Contains(ua, "safari/"):
		return "safari"
	default:
		return "other"
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
