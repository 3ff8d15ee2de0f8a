package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const docsOnlyDiff = `--- a/README.md
+++ b/README.md
@@ -1 +1,2 @@
 # Release Gate
+Adds a usage section.
`

const migrationDiff = `--- a/db/migrations/0002_add_author.sql
+++ b/db/migrations/0002_add_author.sql
@@ -0,0 +1 @@
+ALTER TABLE jobs ADD COLUMN author TEXT;
--- a/internal/store.go
+++ b/internal/store.go
@@ -10,6 +10,7 @@
 func scan() {
+	var author string
 }
`

func manyFilesDiff(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "--- a/pkg/f%d.go\n+++ b/pkg/f%d.go\n@@ -1 +1,2 @@\n+var x%d int\n", i, i, i)
	}
	return b.String()
}

func TestDiffAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		diff           string
		wantVerdict    domain.Verdict
		wantConfidence float64
		wantRisk       string
		wantTypes      []string
	}{
		{
			name:           "docs_only_is_low_risk",
			diff:           docsOnlyDiff,
			wantVerdict:    domain.VerdictApprove,
			wantConfidence: 0.85,
			wantRisk:       riskLow,
			wantTypes:      []string{changeDocs},
		},
		{
			name:           "migration_plus_code_is_critical",
			diff:           migrationDiff,
			wantVerdict:    domain.VerdictWarn,
			wantConfidence: 0.85,
			wantRisk:       riskCritical,
			wantTypes:      []string{changeDB},
		},
		{
			name:           "empty_diff_low_confidence",
			diff:           "",
			wantVerdict:    domain.VerdictApprove,
			wantConfidence: 0.3,
			wantRisk:       riskMedium,
			wantTypes:      []string{changeOther},
		},
		{
			name:           "dependency_bump_is_high_risk",
			diff:           "--- a/go.mod\n+++ b/go.mod\n@@ -1 +1 @@\n+require example.com/lib v1.2.0\n",
			wantVerdict:    domain.VerdictWarn,
			wantConfidence: 0.85,
			wantRisk:       riskHigh,
			wantTypes:      []string{changeDependency},
		},
		{
			name:           "massive_change_drops_confidence",
			diff:           manyFilesDiff(21),
			wantVerdict:    domain.VerdictWarn,
			wantConfidence: 0.65,
			wantRisk:       riskCritical,
			wantTypes:      []string{changeOther},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			an := NewDiffAnalyzer()
			verdict, confidence, payload, err := an.Analyze(context.Background(), domain.CodeAnalysisRequestedEvent{JobID: "j", Diff: tt.diff})
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, verdict)
			assert.Equal(t, tt.wantConfidence, confidence)
			assert.Equal(t, tt.wantRisk, payload["risk_level"])
			assert.Equal(t, tt.wantTypes, payload["change_types"])
		})
	}
}

func TestDiffAnalyzer_PayloadCounts(t *testing.T) {
	t.Parallel()

	an := NewDiffAnalyzer()
	_, _, payload, err := an.Analyze(context.Background(), domain.CodeAnalysisRequestedEvent{JobID: "j", Diff: migrationDiff})
	require.NoError(t, err)

	assert.Equal(t, 2, payload["files_changed"])
	assert.Equal(t, 2, payload["lines_added"])
	assert.Equal(t, 0, payload["lines_deleted"])
	assert.Equal(t, []string{"db", "internal"}, payload["affected_modules"])
}

func TestClassifyChanges_MultipleCategoriesPerFile(t *testing.T) {
	t.Parallel()

	types := classifyChanges([]string{"api/config.yaml"})
	assert.Equal(t, []string{changeAPI, changeConfig}, types)
}

func TestCountLines_IgnoresFileHeaders(t *testing.T) {
	t.Parallel()

	added, deleted := countLines("--- a/x\n+++ b/x\n@@\n+one\n+two\n-old\n")
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, deleted)
}

func TestRiskLevel_TestOnlyChangeIsLow(t *testing.T) {
	t.Parallel()

	assert.Equal(t, riskLow, riskLevel(1, 10, []string{changeTest}))
	assert.Equal(t, riskMedium, riskLevel(1, 10, []string{changeTest, changeDocs}))
}
