package main

import "regexp"

// csrfPattern matches the anti-forgery meta tag the site embeds in served
// pages, capturing the content attribute. Applied to raw text; the page is
// not assumed to be well-formed HTML.
var csrfPattern = regexp.MustCompile(`<meta name="X-Csrf-Token" content="(?P<token>[0-9a-f]+)"`)

// extractCSRF scans a document for the embedded CSRF token. Absence is a
// normal condition for some pages and is reported via ok, not an error;
// callers decide whether a missing token is fatal.
func extractCSRF(html string) (token string, ok bool) {
	m := csrfPattern.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}
