package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// References resolved against the contest URL. The data endpoints sit two
// path levels above the contest page, for /contest/<id>/ and /gym/<id>/
// alike.
var (
	submitRef        = &url.URL{Path: "submit"}
	mySubmissionsRef = &url.URL{Path: "my"}
	submitSourceRef  = &url.URL{Path: "../../data/submitSource"}
	judgeProtocolRef = &url.URL{Path: "../../data/judgeProtocol"}
)

// session drives one authenticated browsing session against the judge. It
// owns the server and contest URLs (mutable, both flip to https together on
// a scheme upgrade), the cookie jar shared with the transport, and the CSRF
// token last seen in a served page.
type session struct {
	serverURL  *url.URL
	contestURL *url.URL
	identy     string
	userAgent  string
	dialects   *dialectTable
	retryLimit int

	cookiePath string // empty disables persistence
	jar        *cookieJar

	// csrf caches the token extracted from the most recent content
	// response. It is cleared at the start of every request.
	csrf string

	// schemeUpgraded records that the one-time http→https transition has
	// fired.
	schemeUpgraded bool

	http *http.Client
	log  *logger
}

// newSession validates the merged configuration and builds a session from
// it. All configuration errors surface here, before any network activity.
func newSession(cfg appConfig, log *logger) (*session, error) {
	identy := strings.TrimSpace(cfg.Identy)
	if identy == "" {
		return nil, errors.New("identy is not set")
	}

	serverURL, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("can not parse server URL: %w", err)
	}
	switch serverURL.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("scheme %s is not implemented", serverURL.Scheme)
	}

	if cfg.ContestPath == "" {
		return nil, errors.New("contest path is not set")
	}
	// The trailing slash makes relative references resolve inside the
	// contest directory rather than next to it.
	contestURL, err := serverURL.Parse(strings.TrimRight(cfg.ContestPath, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("can not parse contest path into URL: %w", err)
	}

	dialects, err := newDialectTable(cfg.PreferCXX, cfg.PreferPy, cfg.PreferRust)
	if err != nil {
		return nil, fmt.Errorf("can not parse dialect setting: %w", err)
	}

	if cfg.RetryLimit < 0 {
		return nil, fmt.Errorf("retry_limit %d is negative", cfg.RetryLimit)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUA
	}

	cookiePath := resolveCookiePath(cfg, log)
	jar := newCookieJar()
	if cookiePath != "" {
		jar, err = loadCookieJar(cookiePath)
		if err != nil {
			return nil, fmt.Errorf("can not load cookie: %w", err)
		}
	}

	return &session{
		serverURL:  serverURL,
		contestURL: contestURL,
		identy:     identy,
		userAgent:  userAgent,
		dialects:   dialects,
		retryLimit: cfg.RetryLimit,
		cookiePath: cookiePath,
		jar:        jar,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			// Redirects are classified, not followed: the 3xx itself is
			// the login-wall signal, and the judge sets session cookies
			// on the redirect response.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}, nil
}

// resolveCookiePath picks where this identy's cookies live: an explicit
// cookie_file wins, otherwise a per-identy file under the user cache
// directory. Not finding a cache directory degrades to no persistence
// rather than aborting.
func resolveCookiePath(cfg appConfig, log *logger) string {
	if cfg.NoCookie {
		return ""
	}
	if cfg.CookieFile != "" {
		return cfg.CookieFile
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		log.warn("can not locate the user cache directory, cookie won't be saved unless cookie_file is set")
		return ""
	}
	return filepath.Join(dir, "cftool", "cookie", strings.TrimSpace(cfg.Identy)+".json")
}

// contestRef resolves ref against the contest URL and returns it as a
// server-relative path, so the request loop re-resolves it against the
// current server URL on every attempt.
func (s *session) contestRef(ref *url.URL) string {
	return s.contestURL.ResolveReference(ref).Path
}

// bodyFunc builds a request body and its content type. It runs once per
// attempt so a retry never reuses a consumed reader.
type bodyFunc func() (io.Reader, string, error)

// httpRequest sends one logical request and classifies the outcome.
//
// The URL is rebuilt from the current server URL on every attempt, so a
// scheme upgrade in the middle of the loop applies to the re-issued
// request. Only transport timeouts are retried, and only when allowRetry
// is set; a request that must not be replayed gets exactly one attempt.
func (s *session) httpRequest(ctx context.Context, method, ref string, newBody bodyFunc, allowRetry bool) (response, error) {
	s.csrf = ""

	remaining := 0
	if allowRetry {
		remaining = s.retryLimit
	}

	for {
		u, err := s.serverURL.Parse(ref)
		if err != nil {
			return response{}, fmt.Errorf("can not build a URL from the path: %w", err)
		}

		var body io.Reader
		contentType := ""
		if newBody != nil {
			if body, contentType, err = newBody(); err != nil {
				return response{}, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
		if err != nil {
			return response{}, fmt.Errorf("can not build the request: %w", err)
		}
		req.Header.Set("User-Agent", s.userAgent)
		// Advertising gzip ourselves matches what a browser sends; the
		// classifier inflates the body.
		req.Header.Set("Accept-Encoding", "gzip")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		s.log.debugf("%s %s", method, u)
		resp, err := s.http.Do(req)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && remaining > 0 {
				remaining--
				s.log.info("timeout, retrying")
				continue
			}
			return response{}, fmt.Errorf("http request failed: %w", err)
		}

		// Set-Cookie headers were persisted into the jar by the transport
		// before we got here, redirects included.
		r, err := classifyResponse(resp)
		if err != nil {
			return response{}, fmt.Errorf("%s %s: %w", method, u, err)
		}

		if r.kind == responseRedirect && s.upgradeScheme(r.target) {
			// Restart under the new scheme without spending a retry.
			continue
		}

		if r.kind == responseContent {
			if tok, ok := extractCSRF(r.body); ok {
				s.csrf = tok
			}
		}
		return r, nil
	}
}

// upgradeScheme flips the session to https when the judge answers an http
// request with a same-host secure redirect. Server and contest URLs move
// together so every later path resolves against the upgraded scheme. An
// ordinary redirect returns false.
func (s *session) upgradeScheme(target *url.URL) bool {
	if target.Scheme != "https" || s.serverURL.Scheme == "https" {
		return false
	}
	if target.Hostname() != s.serverURL.Hostname() {
		return false
	}
	s.serverURL.Scheme = "https"
	s.contestURL.Scheme = "https"
	s.schemeUpgraded = true
	s.log.debugf("following SSL redirection, server URL is now %s", s.serverURL)
	return true
}

func (s *session) httpGet(ctx context.Context, ref string) (response, error) {
	return s.httpRequest(ctx, http.MethodGet, ref, nil, true)
}

func (s *session) httpPostForm(ctx context.Context, ref string, form url.Values, allowRetry bool) (response, error) {
	encoded := form.Encode()
	newBody := func() (io.Reader, string, error) {
		return strings.NewReader(encoded), "application/x-www-form-urlencoded", nil
	}
	return s.httpRequest(ctx, http.MethodPost, ref, newBody, allowRetry)
}

// ensureCSRF returns the anti-forgery token a state-changing request must
// carry, fetching the server root when no token is cached from an earlier
// response. A page without a token is a protocol error.
func (s *session) ensureCSRF(ctx context.Context) (string, error) {
	if s.csrf != "" {
		return s.csrf, nil
	}
	r, err := s.httpGet(ctx, "/")
	if err != nil {
		return "", fmt.Errorf("can not get CSRF token: %w", err)
	}
	if r.kind != responseContent {
		return "", errors.New("can not get CSRF token: server root did not serve a page")
	}
	if s.csrf == "" {
		return "", errors.New("no CSRF token in the page served by the server root")
	}
	return s.csrf, nil
}

// probeLoginStatus reports whether the stored cookies still carry an
// authenticated session. The submit page is identity-gated: the judge
// serves it to a logged-in user and bounces everyone else to the login
// wall. A content response also primes the CSRF cache for a following
// submit.
func (s *session) probeLoginStatus(ctx context.Context) (bool, error) {
	r, err := s.httpGet(ctx, s.contestRef(submitRef))
	if err != nil {
		return false, err
	}
	switch r.kind {
	case responseContent:
		return true, nil
	case responseRedirect:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d from the submit page", r.status)
	}
}

// login performs the form-based authentication exchange. The POST is never
// retried: replaying credentials after an ambiguous timeout is worse than
// asking the user to rerun. Whether it actually worked is answered by a
// fresh probeLoginStatus, not by the response here.
func (s *session) login(ctx context.Context, password string) error {
	csrf, err := s.ensureCSRF(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("csrf_token", csrf)
	form.Set("action", "enter")
	form.Set("handleOrEmail", s.identy)
	form.Set("password", password)
	form.Set("remember", "on")

	r, err := s.httpPostForm(ctx, "/enter", form, false)
	if err != nil {
		return err
	}
	if r.kind == responseOther {
		return fmt.Errorf("login failed with status %d", r.status)
	}
	return nil
}

// submit uploads a solution for problem, resolving the program type id
// from the explicit dialect override when given, else from the source file
// extension. The multipart field order matches what the site's own form
// produces. The POST is never retried.
func (s *session) submit(ctx context.Context, problem, sourcePath, dialectOverride string) error {
	var d dialect
	var err error
	if dialectOverride != "" {
		d, err = parseDialect(dialectOverride)
	} else {
		ext := strings.TrimPrefix(filepath.Ext(sourcePath), ".")
		d, err = s.dialects.byExtension(ext)
	}
	if err != nil {
		return err
	}

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("can not read the source file: %w", err)
	}

	csrf, err := s.ensureCSRF(ctx)
	if err != nil {
		return err
	}

	s.log.debugf("submitting problem %s with programTypeId %s", problem, d.id())

	newBody := func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		fields := [...][2]string{
			{"csrf_token", csrf},
			{"action", "submitSolutionFormSubmitted"},
			{"submittedProblemIndex", problem},
			{"programTypeId", d.id()},
			{"tabSize", "4"},
			{"sourceCodeConfirmed", "true"},
		}
		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return nil, "", fmt.Errorf("can not encode form field %s: %w", f[0], err)
			}
		}
		part, err := w.CreateFormFile("sourceFile", filepath.Base(sourcePath))
		if err != nil {
			return nil, "", fmt.Errorf("can not encode the source file part: %w", err)
		}
		if _, err := part.Write(source); err != nil {
			return nil, "", fmt.Errorf("can not encode the source file part: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("can not finish the multipart form: %w", err)
		}
		return &buf, w.FormDataContentType(), nil
	}

	r, err := s.httpRequest(ctx, http.MethodPost, s.contestRef(submitRef), newBody, false)
	if err != nil {
		return err
	}

	switch r.kind {
	case responseRedirect:
		// The judge bounces an accepted submission to the status page.
		return nil
	case responseContent:
		return errors.New("the judge refused the code, maybe it duplicates an earlier submission, recheck it")
	default:
		return fmt.Errorf("submit failed with status %d", r.status)
	}
}

// lastSubmission returns the id of the newest submission in the contest,
// scraped from the submission list page.
func (s *session) lastSubmission(ctx context.Context) (string, error) {
	r, err := s.httpGet(ctx, s.contestRef(mySubmissionsRef))
	if err != nil {
		return "", err
	}
	switch r.kind {
	case responseContent:
	case responseRedirect:
		return "", errors.New("redirected away from the submission list, the session may have expired")
	default:
		return "", fmt.Errorf("unexpected status %d from the submission list", r.status)
	}

	v, err := parseVerdictHTML(r.body)
	if err != nil {
		return "", err
	}
	return v.id, nil
}

// getVerdict polls the XHR endpoint the status page itself uses.
func (s *session) getVerdict(ctx context.Context, id string) (verdict, error) {
	csrf, err := s.ensureCSRF(ctx)
	if err != nil {
		return verdict{}, err
	}

	form := url.Values{}
	form.Set("submissionId", id)
	form.Set("csrf_token", csrf)

	r, err := s.httpPostForm(ctx, s.contestRef(submitSourceRef), form, true)
	if err != nil {
		return verdict{}, err
	}
	if r.kind != responseContent {
		return verdict{}, errors.New("the verdict endpoint did not serve a body")
	}
	return parseVerdictJSON(r.body, id)
}

// judgementProtocol fetches the compile log for a submission. The body is
// a JSON-encoded string. Callers treat a failure here as advisory.
func (s *session) judgementProtocol(ctx context.Context, id string) (string, error) {
	csrf, err := s.ensureCSRF(ctx)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("submissionId", id)
	form.Set("csrf_token", csrf)

	r, err := s.httpPostForm(ctx, s.contestRef(judgeProtocolRef), form, true)
	if err != nil {
		return "", err
	}
	if r.kind != responseContent {
		return "", errors.New("the judgement protocol endpoint did not serve a body")
	}

	var out string
	if err := json.Unmarshal([]byte(r.body), &out); err != nil {
		return "", fmt.Errorf("can not parse XHR response: %w", err)
	}
	return out, nil
}

// saveCookies flushes the jar to disk. It returns the path written, or ""
// when persistence is disabled.
func (s *session) saveCookies() (string, error) {
	if s.cookiePath == "" {
		return "", nil
	}
	if err := s.jar.save(s.cookiePath); err != nil {
		return "", err
	}
	return s.cookiePath, nil
}
