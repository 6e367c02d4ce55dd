// Package detector decides when a statically fetched directory or profile
// page must be re-rendered headlessly.
package detector

import (
	"strings"
)

// Reasons reported by Heuristic.Classify.
const (
	ReasonEmpty       = "empty"
	ReasonScriptShell = "script_shell"
	ReasonMarker      = "marker"
	ReasonNoScript    = "noscript_notice"
)

const defaultMinBodyBytes = 2048

// Heuristic flags markup that only becomes useful after client-side rendering.
type Heuristic struct {
	// MinBodyBytes is the size under which a script-heavy page is considered
	// an application shell.
	MinBodyBytes int
	markers      []string
}

// Framework mount points seen on faculty directories built as SPAs.
var spaMarkers = []string{
	"__next",
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"ng-version",
}

// Lower-cased notices printed by sites whose listings require JavaScript.
var noScriptNotices = []string{
	"please enable javascript",
	"javascript is required",
	"you need to enable javascript",
}

// NewHeuristic creates a detector. extraMarkers are site-specific fragments
// that only appear in markup awaiting client-side rendering, such as the
// placeholder class of an address that a script decodes in the browser.
func NewHeuristic(minBodyBytes int, extraMarkers ...string) *Heuristic {
	if minBodyBytes <= 0 {
		minBodyBytes = defaultMinBodyBytes
	}
	markers := append(append([]string(nil), spaMarkers...), extraMarkers...)
	return &Heuristic{MinBodyBytes: minBodyBytes, markers: markers}
}

// ShouldPromote reports whether html needs a browser.
func (h *Heuristic) ShouldPromote(html string) bool {
	return h.Classify(html) != ""
}

// Classify returns the reason html needs a browser, or "" when the static
// markup can be probed as is.
func (h *Heuristic) Classify(html string) string {
	if strings.TrimSpace(html) == "" {
		return ReasonEmpty
	}
	for _, marker := range h.markers {
		if strings.Contains(html, marker) {
			return ReasonMarker
		}
	}
	lower := strings.ToLower(html)
	if len(html) < h.MinBodyBytes && scriptShare(lower) >= 25 {
		return ReasonScriptShell
	}
	for _, notice := range noScriptNotices {
		if strings.Contains(lower, notice) {
			return ReasonNoScript
		}
	}
	return ""
}

// scriptShare returns the percentage of lower occupied by <script> elements.
// An unterminated script runs to the end of the document.
func scriptShare(lower string) int {
	total := len(lower)
	if total == 0 {
		return 0
	}
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], "<script")
		if rel == -1 {
			break
		}
		start := pos + rel
		end := total
		if gt := strings.IndexByte(lower[start:], '>'); gt != -1 {
			body := start + gt + 1
			if closing := strings.Index(lower[body:], "</script>"); closing != -1 {
				end = body + closing + len("</script>")
			}
		}
		covered += end - start
		if end == total {
			break
		}
		pos = end
	}
	return covered * 100 / total
}
