package audit

import (
	"regexp"
	"strings"

	"github.com/partner-portal/backend/internal/models"
)

// Classification is the result of mapping one completed request onto the
// audit taxonomy.
type Classification struct {
	Category     models.Category
	Action       string
	ResourceType string
	ResourceID   string
}

type rule struct {
	method   string // HTTP verb or "*"
	pattern  *regexp.Regexp
	statuses []int // optional; empty means any status
}

func (r rule) matches(method, path string, status int) bool {
	if r.method != "*" && r.method != method {
		return false
	}
	if !r.pattern.MatchString(path) {
		return false
	}
	if len(r.statuses) > 0 {
		for _, s := range r.statuses {
			if s == status {
				return true
			}
		}
		return false
	}
	return true
}

// Rule tables are static. Order matters: within a tier the first match
// wins, and CRITICAL short-circuits the lower tiers entirely.
var criticalRules = []rule{
	{"POST", regexp.MustCompile(`^/api(?:/v1)?/auth(?:/partner)?/login$`), nil},
	{"POST", regexp.MustCompile(`^/api(?:/v1)?/auth(?:/partner)?/logout$`), nil},
	{"*", regexp.MustCompile(`^/api(?:/v1)?/auth(?:/partner)?/2fa(?:/|$)`), nil},
	{"*", regexp.MustCompile(`^/api(?:/v1)?/partner/registrations/[^/]+/status$`), nil},
	{"POST", regexp.MustCompile(`^/api(?:/v1)?/partner/payments/[^/]+/confirm$`), nil},
	{"POST", regexp.MustCompile(`^/api(?:/v1)?/partner/documents$`), nil},
	{"POST", regexp.MustCompile(`^/api(?:/v1)?/partner/(?:users|companies)$`), nil},
	{"PUT", regexp.MustCompile(`^/api(?:/v1)?/partner/(?:users|companies)/[^/]+$`), nil},
	{"POST", regexp.MustCompile(`^/api(?:/v1)?/audit/sweep$`), nil},
	{"DELETE", regexp.MustCompile(`^/api(?:/|$)`), nil},
}

var warningRules = []rule{
	{"*", regexp.MustCompile(`^/api(?:/|$)`), nil},
}

var infoRules = []rule{
	{"*", regexp.MustCompile(`^/api(?:/|$)`), nil},
}

// actionNames maps normalized "METHOD /cleaned/path" keys to stable action
// names. Paths not listed here get a synthesized name, so every request
// maps to exactly one action.
var actionNames = map[string]string{
	"POST /auth/partner/login":                   "LOGIN",
	"POST /auth/login":                           "LOGIN",
	"POST /auth/partner/logout":                  "LOGOUT",
	"POST /auth/logout":                          "LOGOUT",
	"POST /auth/partner/2fa/setup":               "SETUP_2FA",
	"POST /auth/partner/2fa/verify":              "VERIFY_2FA",
	"DELETE /auth/partner/2fa":                   "DISABLE_2FA",
	"POST /partner/companies":                    "CREATE_COMPANY",
	"PUT /partner/companies/:id":                 "UPDATE_COMPANY",
	"DELETE /partner/companies/:id":              "DELETE_COMPANY",
	"POST /partner/users":                        "CREATE_USER",
	"PUT /partner/users/:id":                     "UPDATE_USER",
	"DELETE /partner/users/:id":                  "DELETE_USER",
	"POST /partner/registrations":                "CREATE_REGISTRATION",
	"PATCH /partner/registrations/:id/status":    "UPDATE_REGISTRATION_STATUS",
	"PUT /partner/registrations/:id/status":      "UPDATE_REGISTRATION_STATUS",
	"DELETE /partner/registrations/:id":          "DELETE_REGISTRATION",
	"POST /partner/documents":                    "UPLOAD_DOCUMENT",
	"GET /partner/documents/:id/download":        "DOWNLOAD_DOCUMENT",
	"DELETE /partner/documents/:id":              "DELETE_DOCUMENT",
	"POST /partner/payments/:id/confirm":         "CONFIRM_PAYMENT",
	"GET /partner/payments":                      "LIST_PAYMENTS",
	"GET /audit/logs":                            "QUERY_AUDIT_LOGS",
	"GET /audit/logs/export":                     "EXPORT_AUDIT_LOGS",
	"POST /audit/sweep":                          "RUN_RETENTION_SWEEP",
}

type resourcePattern struct {
	resourceType string
	pattern      *regexp.Regexp // first capture group is the resource ID, if present
}

var resourcePatterns = []resourcePattern{
	{"registration", regexp.MustCompile(`^/api(?:/v1)?/partner/registrations/([0-9a-fA-F-]{8,})`)},
	{"company", regexp.MustCompile(`^/api(?:/v1)?/partner/companies/([0-9a-fA-F-]{8,})`)},
	{"user", regexp.MustCompile(`^/api(?:/v1)?/partner/users/([0-9a-fA-F-]{8,})`)},
	{"document", regexp.MustCompile(`^/api(?:/v1)?/partner/documents/([0-9a-fA-F-]{8,})`)},
	{"payment", regexp.MustCompile(`^/api(?:/v1)?/partner/payments/([0-9a-fA-F-]{8,})`)},
}

// idSegment matches path segments that are identifiers rather than
// structure: UUIDs, hex ids, or plain numbers.
var idSegment = regexp.MustCompile(`^(?:[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9a-fA-F]{16,}|\d+)$`)

var nonWord = regexp.MustCompile(`[^A-Z0-9]+`)

// Classifier maps (method, path, status) onto the audit taxonomy. It is
// pure and lock-free: rule tables are fixed at construction and only read
// on the request-completion hot path.
type Classifier struct {
	captureInfo bool
}

func NewClassifier(captureInfo bool) *Classifier {
	return &Classifier{captureInfo: captureInfo}
}

// Classify returns the classification for a completed request, or
// ok=false when the request is dropped from the audit stream. CRITICAL
// rules are checked first and short-circuit; WARNING rules fire only for
// failed requests; INFO rules fire only when info capture is enabled.
func (c *Classifier) Classify(method, path string, status int) (Classification, bool) {
	category, ok := c.categorize(method, path, status)
	if !ok {
		return Classification{}, false
	}

	cls := Classification{
		Category: category,
		Action:   deriveAction(method, path),
	}
	cls.ResourceType, cls.ResourceID = extractResource(path)
	return cls, true
}

func (c *Classifier) categorize(method, path string, status int) (models.Category, bool) {
	for _, r := range criticalRules {
		if r.matches(method, path, status) {
			return models.CategoryCritical, true
		}
	}
	if status >= 400 {
		for _, r := range warningRules {
			if r.matches(method, path, status) {
				return models.CategoryWarning, true
			}
		}
	}
	if c.captureInfo {
		for _, r := range infoRules {
			if r.matches(method, path, status) {
				return models.CategoryInfo, true
			}
		}
	}
	return "", false
}

// deriveAction produces a stable action name for a method+path pair:
// normalize the path, look it up, and synthesize on miss.
func deriveAction(method, path string) string {
	cleaned := normalizePath(path)
	if name, ok := actionNames[method+" "+cleaned]; ok {
		return name
	}
	return synthesizeAction(method, cleaned)
}

// normalizePath strips the API prefix and collapses identifier segments
// to ":id" so request paths with embedded ids share one action key.
func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimPrefix(path, "/api/v1")
	path = strings.TrimPrefix(path, "/api")
	if path == "" {
		path = "/"
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if idSegment.MatchString(seg) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func synthesizeAction(method, cleaned string) string {
	name := strings.ToUpper(method + " " + strings.ReplaceAll(cleaned, ":id", "id"))
	name = nonWord.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

func extractResource(path string) (resourceType, resourceID string) {
	for _, rp := range resourcePatterns {
		if m := rp.pattern.FindStringSubmatch(path); m != nil {
			return rp.resourceType, m[1]
		}
	}
	return "", ""
}
