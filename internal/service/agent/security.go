package agent

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const securitySystemPrompt = `You are a security expert analyzing code changes for potential security issues.

Focus on:
1. Authentication/authorization issues
2. Insecure configurations
3. Data exposure risks
4. Injection vulnerabilities
5. Cryptographic issues

Return findings in this format:
ISSUES: [Number of issues found]
FINDINGS:
- [Issue description]
- [Issue description]
(Or "None" if no issues)`

const securityUserPrompt = "Analyze these code changes for security issues:\n\n```diff\n%s\n```\n\nWhat security concerns do you see?"

const securityDiffCap = 3000

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var secretPatterns = []namedPattern{
	{"AWS Key", regexp.MustCompile(`(?i)AKIA[0-9A-Z]{16}`)},
	{"Generic API Key", regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[a-zA-Z0-9]{20,}`)},
	{"Private Key", regexp.MustCompile(`(?i)-----BEGIN (?:RSA|OPENSSH|DSA|EC) PRIVATE KEY-----`)},
	{"Password in Code", regexp.MustCompile(`(?i)password["\s:=]+["'][^"']{8,}["']`)},
	{"JWT Token", regexp.MustCompile(`(?i)eyJ[A-Za-z0-9-_=]+\.eyJ[A-Za-z0-9-_=]+\.?[A-Za-z0-9-_.+/=]*`)},
	{"GitHub Token", regexp.MustCompile(`(?i)gh[pousr]_[A-Za-z0-9]{36}`)},
	{"Slack Token", regexp.MustCompile(`(?i)xox[baprs]-[0-9]{10,12}-[0-9]{10,12}-[a-zA-Z0-9]{24,}`)},
}

var vulnerabilityPatterns = []namedPattern{
	{"SQL Injection Risk", regexp.MustCompile(`(?i)execute\([^)]*\+[^)]*\)|"SELECT.*" \+ |'SELECT.*' \+ `)},
	{"Command Injection", regexp.MustCompile(`(?i)os\.system\(|subprocess\.call\([^)]*\+|exec\(`)},
	{"Hardcoded Secret", regexp.MustCompile(`(?i)secret[_-]?key\s*=\s*["'][^"']+["']`)},
	{"Insecure Random", regexp.MustCompile(`(?i)random\.random\(\)|Math\.random\(\)`)},
	{"Eval Usage", regexp.MustCompile(`(?i)\beval\(|\bexec\(`)},
}

// securityIssue is one finding. Line is the 1-based diff position for regex
// hits and the string "unknown" for LLM findings, mirroring the payload
// contract consumers already parse.
type securityIssue struct {
	Type    string
	Line    any
	Details string
}

// SecurityAnalyzer hunts for leaked secrets and vulnerable constructs in
// added lines, then asks the LLM for a second opinion. A dead LLM never
// blocks the verdict; the pattern findings stand on their own.
type SecurityAnalyzer struct {
	llm domain.LLMClient
}

func NewSecurityAnalyzer(llm domain.LLMClient) *SecurityAnalyzer { return &SecurityAnalyzer{llm: llm} }

func (a *SecurityAnalyzer) Name() string { return domain.AgentSecurity }

func (a *SecurityAnalyzer) Analyze(ctx domain.Context, req domain.CodeAnalysisRequestedEvent) (domain.Verdict, float64, map[string]any, error) {
	secretIssues := scanPatterns(req.Diff, secretPatterns, "Secret Exposure", "%s detected in code")
	vulns := scanPatterns(req.Diff, vulnerabilityPatterns, "Vulnerability", "Potential %s")
	llmIssues := a.llmFindings(ctx, req.Diff)

	secretsDetected := len(secretIssues) > 0
	all := make([]securityIssue, 0, len(secretIssues)+len(vulns)+len(llmIssues))
	all = append(all, secretIssues...)
	all = append(all, vulns...)
	all = append(all, llmIssues...)

	vulnerabilities := make([]map[string]any, 0, len(all))
	issues := make([]string, 0, len(all))
	for _, i := range all {
		vulnerabilities = append(vulnerabilities, map[string]any{"type": i.Type, "line": i.Line, "details": i.Details})
		issues = append(issues, i.Details)
	}

	payload := map[string]any{
		"secrets_detected": secretsDetected,
		"vulnerabilities":  vulnerabilities,
		"security_score":   securityScore(secretsDetected, len(vulns), len(llmIssues)),
		"issues":           issues,
	}
	return securityVerdict(secretsDetected, all), securityConfidence(secretsDetected, all), payload, nil
}

func scanPatterns(diff string, patterns []namedPattern, issueType, detailFormat string) []securityIssue {
	var issues []securityIssue
	for _, dl := range addedLines(diff) {
		for _, p := range patterns {
			if p.re.MatchString(dl.text) {
				issues = append(issues, securityIssue{
					Type:    issueType,
					Line:    dl.num,
					Details: fmt.Sprintf(detailFormat, p.name),
				})
			}
		}
	}
	return issues
}

func (a *SecurityAnalyzer) llmFindings(ctx domain.Context, diff string) []securityIssue {
	out, err := a.llm.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: securitySystemPrompt,
		Prompt:       fmt.Sprintf(securityUserPrompt, truncateDiff(diff, securityDiffCap)),
		Temperature:  0.2,
		MaxTokens:    800,
	})
	if err != nil {
		slog.Error("security llm analysis failed, keeping pattern findings only", slog.Any("error", err))
		return nil
	}
	return parseSecurityFindings(out)
}

// parseSecurityFindings pulls the dashed entries under FINDINGS: out of the
// model's reply. Anything outside that block is ignored.
func parseSecurityFindings(response string) []securityIssue {
	var issues []securityIssue
	inFindings := false
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "FINDINGS:") {
			inFindings = true
			continue
		}
		if !inFindings || !strings.HasPrefix(line, "-") {
			continue
		}
		finding := strings.TrimSpace(strings.TrimLeft(line, "- "))
		if strings.EqualFold(finding, "none") {
			continue
		}
		issues = append(issues, securityIssue{Type: "Security Concern (LLM)", Line: "unknown", Details: finding})
	}
	return issues
}

// securityScore grades the change from 1.0 (clean) down. Secrets cost half
// the score outright; everything else chips away.
func securityScore(secrets bool, vulns, llmIssues int) float64 {
	score := 1.0
	if secrets {
		score -= 0.5
	}
	score -= float64(vulns) * 0.1
	score -= float64(llmIssues) * 0.05
	return math.Max(0, score)
}

func securityVerdict(secrets bool, all []securityIssue) domain.Verdict {
	if secrets {
		return domain.VerdictReject
	}
	for _, i := range all {
		d := strings.ToLower(i.Details)
		if strings.Contains(d, "injection") || strings.Contains(d, "eval") || strings.Contains(d, "exec") {
			return domain.VerdictReject
		}
	}
	if len(all) > 0 {
		return domain.VerdictWarn
	}
	return domain.VerdictApprove
}

func securityConfidence(secrets bool, all []securityIssue) float64 {
	if secrets {
		return 0.95
	}
	for _, i := range all {
		if strings.Contains(strings.ToLower(i.Details), "injection") {
			return 0.90
		}
	}
	if len(all) > 0 {
		return 0.75
	}
	return 0.85
}
