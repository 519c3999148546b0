package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/devbench/internal/cli/config"
	clitest "github.com/leapstack-labs/devbench/internal/cli/testutil"
	"github.com/leapstack-labs/devbench/internal/testutil"
	"github.com/leapstack-labs/devbench/pkg/core"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name     string
		checks   []HealthCheck
		expected int
	}{
		{
			name:     "no checks returns 100",
			checks:   nil,
			expected: 100,
		},
		{
			name: "passing and skipped checks return 100",
			checks: []HealthCheck{
				{RuleID: "CF01", Status: statusPass},
				{RuleID: "ST02", Status: statusSkip},
			},
			expected: 100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{RuleID: "CF01", Status: statusPass},
				{RuleID: "RF01", Status: statusWarn, IssueCount: 2},
			},
			expected: 90,
		},
		{
			name: "errors reduce score more",
			checks: []HealthCheck{
				{RuleID: "ST01", Status: statusError, IssueCount: 1},
			},
			expected: 80,
		},
		{
			name: "many issues clamp to 0",
			checks: []HealthCheck{
				{RuleID: "CF01", Status: statusError, IssueCount: 5},
				{RuleID: "AR01", Status: statusWarn, IssueCount: 1},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateHealthScore(tt.checks))
		})
	}
}

func TestGetRecommendation(t *testing.T) {
	tests := []struct {
		ruleID   string
		expected bool // whether a recommendation is returned
	}{
		{"CF01", true},
		{"CF02", true},
		{"WB01", true},
		{"AR01", true},
		{"AR02", true},
		{"ST01", true},
		{"ST02", true},
		{"RF01", true},
		{"UNKNOWN", false},
	}

	for _, tt := range tests {
		t.Run(tt.ruleID, func(t *testing.T) {
			rec := getRecommendation(tt.ruleID)
			if tt.expected {
				assert.NotEmpty(t, rec, "expected recommendation for %s", tt.ruleID)
			} else {
				assert.Empty(t, rec, "expected no recommendation for %s", tt.ruleID)
			}
		})
	}
}

func TestGenerateRecommendations(t *testing.T) {
	checks := []HealthCheck{
		{RuleID: "AR01", Status: statusWarn, IssueCount: 1},
		{RuleID: "AR02", Status: statusWarn, IssueCount: 2},
		{RuleID: "RF01", Status: statusWarn, IssueCount: 1},
		{RuleID: "CF01", Status: statusPass},
	}

	recommendations := generateRecommendations(checks)

	// AR01 and AR02 share one recommendation
	require.Len(t, recommendations, 2)
	assert.Contains(t, recommendations[0], "devbench etl")
	assert.Contains(t, recommendations[1], "参照項目")
}

func findCheck(t *testing.T, out *DoctorOutput, id string) HealthCheck {
	t.Helper()
	for _, c := range out.HealthChecks {
		if c.RuleID == id {
			return c
		}
	}
	t.Fatalf("no health check %s", id)
	return HealthCheck{}
}

func TestDiagnose(t *testing.T) {
	dir := clitest.SetupTestProject(t)
	cc := &CommandContext{
		Cfg: &config.Config{
			Workbook:     filepath.Join(dir, "metrics.xlsx"),
			ReferenceDir: filepath.Join(dir, "reference"),
			Target:       config.TargetConfig{Type: config.DefaultTarget},
		},
		Logger:   testutil.NewTestLogger(t),
		Renderer: clitest.NewTestRendererMarkdown().Renderer,
	}
	ctx := context.Background()
	phases := len(core.Phases())

	before := diagnose(ctx, cc)
	assert.Equal(t, statusPass, findCheck(t, before, "CF01").Status)
	assert.Equal(t, statusPass, findCheck(t, before, "WB01").Status)
	assert.Equal(t, phases, before.Summary.Sheets)
	assert.Equal(t, phases, findCheck(t, before, "AR01").IssueCount)
	assert.Equal(t, statusError, findCheck(t, before, "ST01").Status)
	assert.Equal(t, statusSkip, findCheck(t, before, "ST02").Status)
	assert.Equal(t, phases-1, findCheck(t, before, "RF01").IssueCount)
	assert.NoFileExists(t, filepath.Join(dir, "metrics.sqlite3"))

	p, err := cc.Pipeline()
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.NoError(t, err)

	after := diagnose(ctx, cc)
	for _, id := range []string{"CF01", "CF02", "WB01", "AR01", "AR02", "ST01", "ST02"} {
		assert.Equal(t, statusPass, findCheck(t, after, id).Status, id)
	}
	assert.Equal(t, statusWarn, findCheck(t, after, "RF01").Status)
	assert.Equal(t, 4*phases, after.Summary.Records)
	assert.Equal(t, phases, after.Summary.Schemas)
	assert.Equal(t, 1, after.Summary.References)
	assert.Equal(t, 100-5*(phases-1), after.Score)
	assert.Equal(t, []string{getRecommendation("RF01")}, after.Recommendations)

	// Health checks come sorted by group.
	assert.Equal(t, "artifacts", after.HealthChecks[0].Group)
}

func TestRenderDoctorMarkdown(t *testing.T) {
	out := &DoctorOutput{
		Summary: ProjectSummary{Workbook: "metrics.xlsx", Target: "sqlite", Records: 24},
		HealthChecks: []HealthCheck{
			{RuleID: "RF01", Name: "reference-documents", Group: "reference", Status: statusWarn, IssueCount: 1,
				Details: []string{"ST: reference/ST_参照項目.json is missing"}},
		},
		Score:           95,
		Recommendations: []string{getRecommendation("RF01")},
		IssueCount:      1,
	}

	tr := clitest.NewTestRendererMarkdown()
	require.NoError(t, renderDoctorMarkdown(tr.Renderer, out))
	md := tr.Output()
	clitest.AssertValidMarkdown(t, md)
	assert.Contains(t, md, "- **Workbook**: metrics.xlsx")
	assert.Contains(t, md, "### Reference")
	assert.Contains(t, md, "- **[WARN]** RF01: reference-documents (1 issues)")
	assert.Contains(t, md, "**95/100**")

	tr = clitest.NewTestRendererText()
	require.NoError(t, renderDoctorText(tr.Renderer, out))
	assert.Contains(t, tr.Output(), "RF01: reference-documents")
}
