package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/klauspost/compress/gzip"
)

// responseKind tags the populated variant of a classified response.
type responseKind int

const (
	responseContent responseKind = iota
	responseRedirect
	responseOther
)

// response is the semantic outcome of one HTTP exchange: a 2xx body, a 3xx
// redirect target, or any other status. Exactly one variant is meaningful,
// selected by kind.
type response struct {
	kind   responseKind
	body   string   // responseContent
	target *url.URL // responseRedirect
	status int      // responseOther
}

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 * 1024 * 1024

// classifyResponse maps a completed HTTP response onto the response union.
// The body is consumed and closed here. A 3xx without an absolute Location
// is an error rather than a usable variant; retry and login-wall decisions
// belong to the caller.
func classifyResponse(resp *http.Response) (response, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := decodeBody(resp)
		if err != nil {
			return response{}, fmt.Errorf("read response body: %w", err)
		}
		return response{kind: responseContent, body: body}, nil
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return response{}, fmt.Errorf("status %d without a Location header", resp.StatusCode)
		}
		target, err := url.Parse(loc)
		if err != nil {
			return response{}, fmt.Errorf("parse redirect location %q: %w", loc, err)
		}
		if !target.IsAbs() || target.Host == "" {
			return response{}, fmt.Errorf("redirect location %q is not an absolute URL", loc)
		}
		return response{kind: responseRedirect, target: target}, nil
	}

	return response{kind: responseOther, status: resp.StatusCode}, nil
}

// decodeBody reads up to maxBodySize of the body. Requests advertise
// Accept-Encoding: gzip themselves, which turns off the transport's
// transparent decompression, so encoded bodies are inflated here.
func decodeBody(resp *http.Response) (string, error) {
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
