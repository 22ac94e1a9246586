// Package main implements cftool, a command line client for submitting
// solutions to Codeforces and watching their verdicts.
//
// # Features
//
//   - Browser-style login with persistent cookies, never the API
//   - CSRF token handling for every form the judge serves
//   - Language dialect picked from config, file extension, or flag
//   - Verdict polling with the compile log shown on compilation errors
//   - Retry of timed-out requests and one-time upgrade to HTTPS when
//     the server redirects there
//
// # Usage
//
//	cftool -s a.cpp [-p A] [-l]
//	cftool -q [-l]
//	cftool -d
//
// # Configuration
//
// Configuration is merged from cftool.json in the user config directory
// and the working directory, a file given with --config, CFTOOL_*
// environment variables, and command line flags, in that order.
//
// See README.md for detailed configuration options.
package main
