// Package credentials handles username/secret pairs for remote
// repositories: embedding them in URLs, storing them, and the retry loop
// that asks for new ones when the remote refuses the current ones.
package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/url"
	"slices"
	"strings"
)

// Set is a username and secret for one remote. Secrets are kept as bytes
// so that Scrub can overwrite them.
type Set struct {
	Username string
	Secret   []byte
}

// NewSet copies secret into a new Set.
func NewSet(username, secret string) Set {
	return Set{Username: username, Secret: []byte(secret)}
}

// Empty reports whether there is nothing to embed.
func (s Set) Empty() bool {
	return s.Username == "" && len(s.Secret) == 0
}

// Equal compares two sets in constant time over the secret.
func (s Set) Equal(o Set) bool {
	return s.Username == o.Username && subtle.ConstantTimeCompare(s.Secret, o.Secret) == 1
}

// Clone returns a copy with its own secret buffer.
func (s Set) Clone() Set {
	return Set{Username: s.Username, Secret: slices.Clone(s.Secret)}
}

// Scrub zero-fills the secret and forgets the username.
func (s *Set) Scrub() {
	clear(s.Secret)
	s.Secret = nil
	s.Username = ""
}

// String never reveals the secret.
func (s Set) String() string {
	if s.Empty() {
		return "credentials(none)"
	}
	return "credentials(" + s.Username + ", redacted)"
}

func (s Set) GoString() string { return s.String() }

func (s Set) fingerprint() [32]byte {
	h := sha256.New()
	h.Write([]byte(s.Username))
	h.Write([]byte{0})
	h.Write(s.Secret)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// IsRemoteURL reports whether raw looks like a network URL.
func IsRemoteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ssh":
		return u.Host != ""
	}
	return false
}

// FromURL extracts the credentials embedded in raw.
func FromURL(raw string) Set {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return Set{}
	}
	pw, _ := u.User.Password()
	return NewSet(u.User.Username(), pw)
}

// StripURL removes user information from raw.
func StripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

// WithoutPassword keeps the username but drops the password.
func WithoutPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

// EmbedURL returns raw with s as its user information. An empty set leaves
// whatever raw already carries.
func EmbedURL(raw string, s Set) (string, error) {
	if s.Empty() {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(s.Secret) == 0 {
		u.User = url.User(s.Username)
	} else {
		u.User = url.UserPassword(s.Username, string(s.Secret))
	}
	return u.String(), nil
}

// Key normalizes raw into the lookup key used by stores: credentials
// removed, scheme and host lowercased, trailing slash dropped.
func Key(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
