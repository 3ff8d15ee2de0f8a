package httpserver

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-release-gate/pkg/textx"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// analyzeRequest is the wire shape of POST /api/v1/analyze.
type analyzeRequest struct {
	RepoName      string `json:"repo_name" validate:"required,max=200"`
	CommitHash    string `json:"commit_hash" validate:"required,max=64"`
	CommitMessage string `json:"commit_message" validate:"required,max=5000"`
	Diff          string `json:"diff" validate:"required"`
	Branch        string `json:"branch" validate:"omitempty,max=200"`
	Author        string `json:"author" validate:"required,max=200"`
}

// validationDetails flattens validator errors into a field->tag map for the
// error envelope.
func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

// sanitize strips control characters from the metadata fields. Everything
// except the commit message is single-line, so line breaks are dropped there
// too. The diff is left byte-for-byte intact since analyzers parse it
// literally; it is only checked for being text.
func (a *analyzeRequest) sanitize() {
	a.RepoName = textx.SanitizeLine(a.RepoName)
	a.CommitHash = textx.SanitizeLine(a.CommitHash)
	a.CommitMessage = textx.SanitizeText(a.CommitMessage)
	a.Branch = textx.SanitizeLine(a.Branch)
	a.Author = textx.SanitizeLine(a.Author)
}

// diffIsText sniffs the diff content. Anything that does not look like a
// textual payload (binary blobs, invalid UTF-8) is rejected before it can
// reach the bus.
func diffIsText(diff string) bool {
	if !utf8.ValidString(diff) {
		return false
	}
	m := mimetype.Detect([]byte(diff))
	for mt := m; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}
