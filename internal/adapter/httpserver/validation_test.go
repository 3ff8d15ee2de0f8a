package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffIsText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		diff string
		want bool
	}{
		{name: "unified_diff", diff: "+++ b/main.go\n--- a/main.go\n+func main() {}\n", want: true},
		{name: "plain_ascii", diff: "hello", want: true},
		{name: "utf8_multibyte", diff: "+// comentário das alterações\n", want: true},
		{name: "nul_bytes", diff: "\x00\x01\x02binary blob", want: false},
		{name: "invalid_utf8", diff: string([]byte{0xff, 0xfe, 0x41}), want: false},
		{name: "png_header", diff: "\x89PNG\r\n\x1a\n", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, diffIsText(tc.diff))
		})
	}
}

func TestAnalyzeRequest_Sanitize(t *testing.T) {
	t.Parallel()
	req := analyzeRequest{
		RepoName:      "  acme/payments\x00  ",
		CommitHash:    "3f9a2b7\x07",
		CommitMessage: "fix:\tkeep tabs\nand newlines",
		Diff:          "+++ b/a.go\n+\x00raw\n",
		Branch:        " main ",
		Author:        "dev\n@acme.test\x1b",
	}
	req.sanitize()

	assert.Equal(t, "acme/payments", req.RepoName)
	assert.Equal(t, "3f9a2b7", req.CommitHash)
	assert.Equal(t, "fix:\tkeep tabs\nand newlines", req.CommitMessage)
	assert.Equal(t, "main", req.Branch)
	assert.Equal(t, "dev@acme.test", req.Author)
	// Diff bytes are never rewritten, only sniffed.
	assert.Equal(t, "+++ b/a.go\n+\x00raw\n", req.Diff)
}

func TestValidationDetails(t *testing.T) {
	t.Parallel()
	err := getValidator().Struct(analyzeRequest{Branch: "main"})
	require.Error(t, err)
	details := validationDetails(err)

	assert.Equal(t, "required", details["reponame"])
	assert.Equal(t, "required", details["commithash"])
	assert.Equal(t, "required", details["commitmessage"])
	assert.Equal(t, "required", details["diff"])
	assert.Equal(t, "required", details["author"])
	assert.NotContains(t, details, "branch")
}

func TestValidationDetails_MaxTag(t *testing.T) {
	t.Parallel()
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	req := analyzeRequest{
		RepoName:      string(long),
		CommitHash:    "3f9a2b7",
		CommitMessage: "m",
		Diff:          "+x",
		Author:        "a",
	}
	err := getValidator().Struct(req)
	require.Error(t, err)
	assert.Equal(t, "max", validationDetails(err)["reponame"])
}
