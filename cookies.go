package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// storedCookie is the serialized form of one jar entry, keyed by
// (domain, path, name).
type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
	HostOnly bool      `json:"host_only,omitempty"`
}

func (c storedCookie) key() string {
	return c.Domain + ";" + c.Path + ";" + c.Name
}

// expired reports whether the entry is past its expiry. Session entries
// (zero expiry) never expire.
func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// cookieJar is an http.CookieJar whose entries can be enumerated for
// persistence. The transport writes into it on every response and the
// persistence layer reads it for the post-auth flush, so all access goes
// through the mutex.
type cookieJar struct {
	mu      sync.Mutex
	entries map[string]storedCookie
}

func newCookieJar() *cookieJar {
	return &cookieJar{entries: make(map[string]storedCookie)}
}

// SetCookies records the cookies of one response. Domain attributes are
// honored only when the request host sits inside the domain and the domain
// is not a bare public suffix.
func (j *cookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	host := strings.ToLower(u.Hostname())
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   host,
			Path:     defaultCookiePath(u.Path),
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			HostOnly: true,
		}
		if d := strings.TrimPrefix(strings.ToLower(c.Domain), "."); d != "" {
			if !domainMatch(host, d) {
				continue
			}
			if ps, _ := publicsuffix.PublicSuffix(d); ps == d && host != d {
				continue
			}
			sc.Domain = d
			sc.HostOnly = false
		}
		if strings.HasPrefix(c.Path, "/") {
			sc.Path = c.Path
		}
		switch {
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case c.MaxAge < 0:
			delete(j.entries, sc.key())
			continue
		case !c.Expires.IsZero():
			if !c.Expires.After(now) {
				delete(j.entries, sc.key())
				continue
			}
			sc.Expires = c.Expires
		}
		j.entries[sc.key()] = sc
	}
}

// Cookies returns the unexpired entries matching the request URL, longest
// path first so the header is deterministic.
func (j *cookieJar) Cookies(u *url.URL) []*http.Cookie {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	secure := u.Scheme == "https"
	path := u.Path
	if path == "" {
		path = "/"
	}
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()

	var selected []storedCookie
	for _, c := range j.entries {
		if c.expired(now) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if c.HostOnly {
			if host != c.Domain {
				continue
			}
		} else if !domainMatch(host, c.Domain) {
			continue
		}
		if !pathMatch(path, c.Path) {
			continue
		}
		selected = append(selected, c)
	}
	sort.Slice(selected, func(i, k int) bool {
		if len(selected[i].Path) != len(selected[k].Path) {
			return len(selected[i].Path) > len(selected[k].Path)
		}
		return selected[i].Name < selected[k].Name
	})
	out := make([]*http.Cookie, 0, len(selected))
	for _, c := range selected {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// domainMatch is the RFC 6265 domain-match over lowercase names.
func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// defaultCookiePath derives the cookie path from the request path when the
// Set-Cookie header carries none.
func defaultCookiePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// pathMatch is the RFC 6265 path-match.
func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
	}
	return false
}

// snapshot copies out the unexpired entries in stable order.
func (j *cookieJar) snapshot() []storedCookie {
	now := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]storedCookie, 0, len(j.entries))
	for _, c := range j.entries {
		if c.expired(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].key() < out[k].key() })
	return out
}

// save writes the unexpired entries to path, all or nothing: the payload
// lands in a temp file that replaces the target on success.
func (j *cookieJar) save(path string) error {
	b, err := json.MarshalIndent(j.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir cookie dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write temp cookie file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace cookie file: %w", err)
	}
	return nil
}

// loadCookieJar reads a previously saved jar. A missing file is an empty
// jar; a file that exists but cannot be read or parsed is an error.
func loadCookieJar(path string) (*cookieJar, error) {
	j := newCookieJar()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return j, nil
		}
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var entries []storedCookie
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	now := time.Now()
	for _, c := range entries {
		if c.Name == "" || c.Domain == "" || c.expired(now) {
			continue
		}
		if c.Path == "" {
			c.Path = "/"
		}
		j.entries[c.key()] = c
	}
	return j, nil
}
