package main

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustParseURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse url %q: %v", s, err)
	}
	return u
}

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}

func TestJarHostOnlyCookie(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	jar.SetCookies(mustParseURL(t, "http://codeforces.com/enter"), []*http.Cookie{
		{Name: "JSESSIONID", Value: "abc", Path: "/"},
	})

	got := jar.Cookies(mustParseURL(t, "http://codeforces.com/contest/1/submit"))
	if len(got) != 1 || got[0].Name != "JSESSIONID" || got[0].Value != "abc" {
		t.Fatalf("Cookies() = %v, want JSESSIONID=abc", got)
	}

	if got := jar.Cookies(mustParseURL(t, "http://m1.codeforces.com/")); len(got) != 0 {
		t.Errorf("host-only cookie leaked to subdomain: %v", cookieNames(got))
	}
}

func TestJarDomainCookie(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	jar.SetCookies(mustParseURL(t, "http://codeforces.com/"), []*http.Cookie{
		{Name: "39ce7", Value: "xyz", Domain: "codeforces.com", Path: "/"},
	})

	for _, site := range []string{"http://codeforces.com/", "http://m1.codeforces.com/contest/1/my"} {
		if got := jar.Cookies(mustParseURL(t, site)); len(got) != 1 {
			t.Errorf("Cookies(%s) = %v, want the domain cookie", site, cookieNames(got))
		}
	}
	if got := jar.Cookies(mustParseURL(t, "http://codeforces.org/")); len(got) != 0 {
		t.Errorf("domain cookie leaked to foreign host: %v", cookieNames(got))
	}
}

func TestJarRejectsBadDomains(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	u := mustParseURL(t, "http://example.com/")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "super", Value: "1", Domain: "com", Path: "/"},
		{Name: "foreign", Value: "1", Domain: "other.com", Path: "/"},
	})

	if got := jar.Cookies(u); len(got) != 0 {
		t.Errorf("Cookies() = %v, want public-suffix and foreign domains rejected", cookieNames(got))
	}

	// Multi-label public suffixes are rejected too; a registrable domain
	// one level below them is fine.
	uk := mustParseURL(t, "http://example.co.uk/")
	jar.SetCookies(uk, []*http.Cookie{
		{Name: "suffix", Value: "1", Domain: "co.uk", Path: "/"},
		{Name: "site", Value: "1", Domain: "example.co.uk", Path: "/"},
	})
	if got := cookieNames(jar.Cookies(uk)); len(got) != 1 || got[0] != "site" {
		t.Errorf("Cookies(co.uk) = %v, want only the registrable-domain cookie", got)
	}
}

func TestJarSecureCookie(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	jar.SetCookies(mustParseURL(t, "https://codeforces.com/"), []*http.Cookie{
		{Name: "X-User", Value: "s", Path: "/", Secure: true},
	})

	if got := jar.Cookies(mustParseURL(t, "http://codeforces.com/")); len(got) != 0 {
		t.Errorf("secure cookie sent over http: %v", cookieNames(got))
	}
	if got := jar.Cookies(mustParseURL(t, "https://codeforces.com/")); len(got) != 1 {
		t.Errorf("Cookies(https) = %v, want the secure cookie", cookieNames(got))
	}
}

func TestJarPathMatching(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	u := mustParseURL(t, "http://codeforces.com/contest/100/submit")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "root", Value: "1", Path: "/"},
		{Name: "scoped", Value: "1", Path: "/contest/100"},
		// No Path attribute: defaults to the request path's directory.
		{Name: "implicit", Value: "1"},
	})

	got := cookieNames(jar.Cookies(mustParseURL(t, "http://codeforces.com/contest/100/my")))
	want := []string{"implicit", "scoped", "root"} // longest path first
	if len(got) != len(want) {
		t.Fatalf("Cookies() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Cookies() = %v, want %v", got, want)
		}
	}

	if got := jar.Cookies(mustParseURL(t, "http://codeforces.com/enter")); len(got) != 1 || got[0].Name != "root" {
		t.Errorf("Cookies(/enter) = %v, want only the root-path cookie", cookieNames(got))
	}
}

func TestJarExpiry(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	u := mustParseURL(t, "http://codeforces.com/")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "keep", Value: "1", Path: "/", MaxAge: 3600},
		{Name: "gone", Value: "1", Path: "/", Expires: time.Now().Add(-time.Hour)},
	})

	if got := cookieNames(jar.Cookies(u)); len(got) != 1 || got[0] != "keep" {
		t.Fatalf("Cookies() = %v, want only the unexpired cookie", got)
	}

	// A negative Max-Age deletes the entry.
	jar.SetCookies(u, []*http.Cookie{{Name: "keep", Value: "", Path: "/", MaxAge: -1}})
	if got := jar.Cookies(u); len(got) != 0 {
		t.Errorf("Cookies() after deletion = %v, want none", cookieNames(got))
	}
}

func TestJarSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	u := mustParseURL(t, "https://codeforces.com/")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "JSESSIONID", Value: "abc", Path: "/"},
		{Name: "X-User", Value: "handle", Path: "/", MaxAge: 86400, Secure: true},
	})

	path := filepath.Join(t.TempDir(), "identy.json")
	if err := jar.save(path); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat cookie file: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("cookie file mode = %o, want 0600", fi.Mode().Perm())
	}

	loaded, err := loadCookieJar(path)
	if err != nil {
		t.Fatalf("loadCookieJar() error = %v", err)
	}
	got := cookieNames(loaded.Cookies(u))
	if len(got) != 2 {
		t.Fatalf("loaded Cookies() = %v, want both entries", got)
	}
}

func TestJarSaveSkipsExpired(t *testing.T) {
	t.Parallel()

	jar := newCookieJar()
	jar.entries["codeforces.com;/;stale"] = storedCookie{
		Name:    "stale",
		Value:   "1",
		Domain:  "codeforces.com",
		Path:    "/",
		Expires: time.Now().Add(-time.Minute),
	}
	jar.entries["codeforces.com;/;live"] = storedCookie{
		Name:   "live",
		Value:  "1",
		Domain: "codeforces.com",
		Path:   "/",
	}

	path := filepath.Join(t.TempDir(), "jar.json")
	if err := jar.save(path); err != nil {
		t.Fatalf("save() error = %v", err)
	}
	loaded, err := loadCookieJar(path)
	if err != nil {
		t.Fatalf("loadCookieJar() error = %v", err)
	}

	if _, ok := loaded.entries["codeforces.com;/;stale"]; ok {
		t.Error("expired entry survived the save")
	}
	if _, ok := loaded.entries["codeforces.com;/;live"]; !ok {
		t.Error("session entry lost in the save")
	}
}

func TestLoadCookieJarMissing(t *testing.T) {
	t.Parallel()

	jar, err := loadCookieJar(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("loadCookieJar() error = %v, want empty jar", err)
	}
	if len(jar.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(jar.entries))
	}
}

func TestLoadCookieJarCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCookieJar(path); err == nil {
		t.Fatal("loadCookieJar() expected error for corrupt file, got nil")
	}
}
