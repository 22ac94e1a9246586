package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
)

// verdictCode classifies a judged (or still-running) submission.
type verdictCode int

const (
	verdictAccepted verdictCode = iota
	verdictRejected
	verdictWaiting
	verdictCompilationError
)

// verdict is one poll result: the submission it refers to, its
// classification, and the display message scraped alongside it. Produced
// fresh on every poll and never mutated.
type verdict struct {
	code verdictCode
	id   string
	msg  string
}

func (v verdict) isWaiting() bool          { return v.code == verdictWaiting }
func (v verdict) isCompilationError() bool { return v.code == verdictCompilationError }

// The row bearing the status-verdict-cell class looks the same in coach
// mode and normal mode, but the following line carrying the verdict does
// not, so the pattern anchors on the row and captures the next line whole.
var verdictRowPattern = regexp.MustCompile(`<td party[^>]* class=[^>]*status-verdict-cell.*submissionId=.(?P<id>[0-9]*).*\n(?P<line>.*)\n`)

// verdictSpanPattern covers the generic verdict markup; phrases whose CSS
// class differs are special-cased before it applies.
var verdictSpanPattern = regexp.MustCompile(`<span class='verdict-(?P<verdict>.*)'>(?P<message>.*)</`)

// markupPattern strips nested tags out of scraped messages.
var markupPattern = regexp.MustCompile(`<.[^>]*>`)

// parseVerdictHTML recovers the newest submission's id and verdict from a
// status page. Unknown verdict markers are an error, never a default.
func parseVerdictHTML(page string) (verdict, error) {
	m := verdictRowPattern.FindStringSubmatch(page)
	if m == nil {
		return verdict{}, errors.New("no submission row found in status page")
	}
	id, line := m[1], m[2]

	// These phrases are rendered with CSS classes the generic marker does
	// not use, so they are matched by text, in priority order.
	switch {
	case strings.Contains(line, "Compilation error"):
		return verdict{code: verdictCompilationError, id: id, msg: "Compilation error"}, nil
	case strings.Contains(line, "In queue"):
		return verdict{code: verdictWaiting, id: id, msg: "In queue"}, nil
	case strings.Contains(line, "Pending judgement"):
		return verdict{code: verdictWaiting, id: id, msg: "Pending judgement"}, nil
	case strings.Contains(line, "Partial"):
		return verdict{code: verdictRejected, id: id, msg: "Partial"}, nil
	case strings.Contains(line, "Skipped"):
		return verdict{code: verdictRejected, id: id, msg: "Skipped"}, nil
	}

	sm := verdictSpanPattern.FindStringSubmatch(line)
	if sm == nil {
		return verdict{}, fmt.Errorf("no verdict marker for submission %s", id)
	}
	msg := markupPattern.ReplaceAllString(sm[2], "")

	var code verdictCode
	switch sm[1] {
	case "accepted":
		code = verdictAccepted
	case "rejected", "failed":
		code = verdictRejected
	case "waiting":
		code = verdictWaiting
	default:
		return verdict{}, fmt.Errorf("unknown verdict %q", sm[1])
	}
	return verdict{code: code, id: id, msg: msg}, nil
}

// xhrVerdict is the JSON shape served by the polling endpoint.
type xhrVerdict struct {
	CompilationError bool   `json:"compilationError"`
	Waiting          bool   `json:"waiting"`
	Verdict          string `json:"verdict"`
}

// parseVerdictJSON classifies the XHR polling response for submission id.
// Priority: compilation error flag, waiting flag, accepted marker, else
// rejected.
func parseVerdictJSON(body, id string) (verdict, error) {
	var x xhrVerdict
	if err := json.Unmarshal([]byte(body), &x); err != nil {
		return verdict{}, fmt.Errorf("parse verdict response: %w", err)
	}
	msg := strings.TrimSpace(markupPattern.ReplaceAllString(x.Verdict, ""))

	switch {
	case x.CompilationError:
		return verdict{code: verdictCompilationError, id: id, msg: msg}, nil
	case x.Waiting:
		return verdict{code: verdictWaiting, id: id, msg: msg}, nil
	case strings.Contains(x.Verdict, "verdict-accepted"):
		return verdict{code: verdictAccepted, id: id, msg: msg}, nil
	default:
		return verdict{code: verdictRejected, id: id, msg: msg}, nil
	}
}

// render writes "<id> <message>" to w, green for accepted, red for
// rejected or compilation error, uncolored while waiting. The color
// package suppresses escapes itself when stdout is not a terminal or
// NO_COLOR is set.
func (v verdict) render(w io.Writer) {
	line := v.id + " " + v.msg
	switch v.code {
	case verdictAccepted:
		_, _ = color.New(color.FgGreen).Fprintln(w, line)
	case verdictRejected, verdictCompilationError:
		_, _ = color.New(color.FgRed).Fprintln(w, line)
	default:
		_, _ = fmt.Fprintln(w, line)
	}
}
