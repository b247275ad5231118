// Package botwall recognises anti-automation challenge pages and decides how
// to recover from them.
package botwall

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

// Decision tells the fetch gateway which recovery path to take.
type Decision string

const (
	DecisionReuseSession Decision = "reuse_session"
	DecisionManualSolve  Decision = "manual_solve"
)

// Detection reports a recognised bot wall. A nil *Detection means the page is
// clean.
type Detection struct {
	URL       string
	Signature string
	Decision  Decision
}

// SignatureEmptyResponse marks an empty or whitespace-only body, a shape many
// walls produce when they refuse to serve content at all.
const SignatureEmptyResponse = "empty_response"

// defaultSignatures are literal lowercase substrings of known challenge
// pages. Order matters: the first match is reported, so keep the most
// specific entries first.
var defaultSignatures = []string{
	"baxia-punish",
	"detected unusual traffic",
	`id="nocaptcha"`,
	"cf-challenge",
	"recaptcha/api.js",
	"verification required",
	"slide right to complete the puzzle",
	`id="cf-wrapper"`,
	`id="cmsg"`,
	"cf-error-code",
}

var suspectTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cf[- ]?error`),
	regexp.MustCompile(`(?i)verification required`),
	regexp.MustCompile(`(?i)attention required`),
}

var suspectTextKeywords = []string{
	"unusual traffic",
	"are you a robot",
	"verification required",
	"enable javascript",
	"checking your browser",
	"check your browser before accessing",
	"please wait while we",
	"security check",
}

var suspectSelectors = []string{
	"#cf-wrapper",
	"#cmsg",
	"#captcha",
	".g-recaptcha",
	"script[src*='cf/challenge']",
}

// smallResponseBytes is the size under which a response is suspicious when it
// has no visible text or a title that merely echoes the domain.
const smallResponseBytes = 4096

// Detector matches fetched HTML against wall signatures and decides between
// session reuse and a manual solve based on store state.
type Detector struct {
	signatures []string
	sessions   session.Store
}

// NewDetector builds a detector using the default signature list.
func NewDetector(sessions session.Store) *Detector {
	return &Detector{signatures: defaultSignatures, sessions: sessions}
}

// NewDetectorWithSignatures overrides the literal signature list. Order is
// preserved.
func NewDetectorWithSignatures(sessions session.Store, signatures []string) *Detector {
	return &Detector{signatures: signatures, sessions: sessions}
}

// Detect scans for known literal signatures, first match wins.
func (d *Detector) Detect(html string) string {
	lowered := strings.ToLower(html)
	for _, sig := range d.signatures {
		if strings.Contains(lowered, sig) {
			return sig
		}
	}
	return ""
}

// HeuristicDetect runs the soft-block heuristics. It is only consulted when
// Detect found nothing, so a known signature always outranks a heuristic.
func (d *Detector) HeuristicDetect(url, html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	text := strings.ToLower(strings.Join(strings.Fields(doc.Text()), " "))
	title := strings.TrimSpace(doc.Find("title").First().Text())
	domain := strings.TrimPrefix(session.Domain(url), "www.")
	titleNorm := strings.Replace(strings.ToLower(title), "www.", "", 1)

	if len(html) < smallResponseBytes {
		if strings.HasPrefix(titleNorm, domain) || text == "" {
			return "suspicious_small_response"
		}
	}

	for _, pat := range suspectTitlePatterns {
		if pat.MatchString(title) {
			return pat.String()
		}
	}

	for _, keyword := range suspectTextKeywords {
		if strings.Contains(text, keyword) {
			return "keyword_match"
		}
	}

	for _, selector := range suspectSelectors {
		if doc.Find(selector).Length() > 0 {
			return selector
		}
	}

	return ""
}

// Decide picks the recovery path for a URL purely from session-store state:
// reuse an existing snapshot when one exists, otherwise escalate to a manual
// solve.
func (d *Detector) Decide(url string) Decision {
	if d.sessions != nil && d.sessions.Has(session.Domain(url)) {
		return DecisionReuseSession
	}
	return DecisionManualSolve
}

// Inspect is the single checkpoint that judges bot-wall presence for a fetch.
// It returns a Detection when the body is empty or any signature fires, and
// nil when the page looks clean. Callers must not re-check on their own.
func (d *Detector) Inspect(url, html string) *Detection {
	if strings.TrimSpace(html) == "" {
		return &Detection{URL: url, Signature: SignatureEmptyResponse, Decision: DecisionManualSolve}
	}

	signature := d.Detect(html)
	if signature == "" {
		signature = d.HeuristicDetect(url, html)
	}
	if signature == "" {
		return nil
	}

	return &Detection{URL: url, Signature: signature, Decision: d.Decide(url)}
}
