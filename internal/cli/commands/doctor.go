package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/devbench/internal/cli/output"
	"github.com/leapstack-labs/devbench/internal/pipeline"
	"github.com/leapstack-labs/devbench/internal/sheet"
	"github.com/leapstack-labs/devbench/internal/store"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// Health check statuses.
const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
	statusSkip  = "skip"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the project setup and the state of the ETL",
		Long: `Check a devbench project for problems before querying it.

The doctor command reports, per phase:
- Config: whether the workbook and the store target are usable
- Workbook: whether every phase sheet can be read and flattened
- Artifacts: whether the CSV and schema files exist
- Store: whether the database opens and every phase has been loaded
- Reference: whether the reference documents exist

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  devbench doctor

  # Output as JSON
  devbench doctor -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	Workbook   string `json:"workbook,omitempty"`
	DataDir    string `json:"data_dir,omitempty"`
	Target     string `json:"target"`
	Sheets     int    `json:"sheets"`
	Schemas    int    `json:"schemas"`
	Records    int    `json:"records"`
	Systems    int    `json:"systems"`
	References int    `json:"references"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error", "skip"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

func (h *HealthCheck) fail(status, detail string) {
	if h.Status != statusError {
		h.Status = status
	}
	h.IssueCount++
	h.Details = append(h.Details, detail)
}

func newCheck(id, name, group string) *HealthCheck {
	return &HealthCheck{RuleID: id, Name: name, Group: group, Status: statusPass}
}

func runDoctor(cmd *cobra.Command) error {
	cc := NewCommandContext(cmd)
	out := diagnose(cmd.Context(), cc)

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

// diagnose runs every check. Checks whose prerequisites failed are skipped.
func diagnose(ctx context.Context, cc *CommandContext) *DoctorOutput {
	var checks []*HealthCheck
	add := func(h *HealthCheck) *HealthCheck {
		checks = append(checks, h)
		return h
	}
	summary := ProjectSummary{Workbook: cc.Cfg.Workbook, Target: cc.Cfg.Target.Type}

	// Config
	wbCheck := add(newCheck("CF01", "workbook", "config"))
	if err := pipeline.ValidateWorkbook(cc.Cfg.Workbook); err != nil {
		wbCheck.fail(statusError, err.Error())
	}
	targetCheck := add(newCheck("CF02", "store-target", "config"))
	target, err := cc.Target()
	if err != nil {
		targetCheck.fail(statusError, err.Error())
	}
	if _, err := store.Lookup(target.Type); err != nil && targetCheck.Status == statusPass {
		targetCheck.fail(statusError, err.Error())
	}
	summary.Target = target.Type

	// Workbook
	sheets := add(newCheck("WB01", "phase-sheets", "workbook"))
	if wbCheck.Status != statusPass {
		sheets.Status = statusSkip
	} else {
		summary.Sheets = checkSheets(cc.Cfg.Workbook, sheets)
	}

	// Artifacts
	csvCheck := add(newCheck("AR01", "csv-files", "artifacts"))
	schemaCheck := add(newCheck("AR02", "schema-files", "artifacts"))
	layout, err := cc.Layout()
	if err != nil {
		csvCheck.fail(statusError, err.Error())
		schemaCheck.Status = statusSkip
	} else {
		summary.DataDir = layout.Root
		for _, p := range core.Phases() {
			if !fileExists(layout.CSVPath(p)) {
				csvCheck.fail(statusWarn, fmt.Sprintf("%s: %s is missing", p.Short(), layout.CSVPath(p)))
			}
			if fileExists(layout.SchemaPath(p)) {
				summary.Schemas++
			} else {
				schemaCheck.fail(statusWarn, fmt.Sprintf("%s: %s is missing", p.Short(), layout.SchemaPath(p)))
			}
		}
	}

	// Store
	opens := add(newCheck("ST01", "store-opens", "store"))
	loaded := add(newCheck("ST02", "phases-loaded", "store"))
	if targetCheck.Status != statusPass {
		opens.Status = statusSkip
		loaded.Status = statusSkip
	} else {
		summary.Records, summary.Systems = checkStore(ctx, target, opens, loaded)
	}

	// Reference
	refs := add(newCheck("RF01", "reference-documents", "reference"))
	lib := cc.References()
	available := make(map[core.Phase]bool)
	for _, p := range lib.Available() {
		available[p] = true
	}
	summary.References = len(available)
	for _, p := range core.Phases() {
		if !available[p] {
			refs.fail(statusWarn, fmt.Sprintf("%s: %s is missing", p.Short(), lib.Path(p)))
		}
	}

	return buildDoctorOutput(summary, checks)
}

func checkSheets(path string, h *HealthCheck) int {
	wb, err := sheet.OpenWorkbook(path)
	if err != nil {
		h.fail(statusError, err.Error())
		return 0
	}
	defer func() { _ = wb.Close() }()

	n := 0
	for _, p := range core.Phases() {
		if _, err := wb.Phase(p); err != nil {
			h.fail(statusWarn, fmt.Sprintf("%s: %v", p.Short(), err))
			continue
		}
		n++
	}
	return n
}

// checkStore opens an existing store. A single-file database that does not
// exist yet is reported instead of created.
func checkStore(ctx context.Context, target store.Config, opens, loaded *HealthCheck) (records, systems int) {
	if target.Type != store.Postgres && target.DSN != "" && target.DSN != ":memory:" && !fileExists(target.DSN) {
		opens.fail(statusError, fmt.Sprintf("%s does not exist", target.DSN))
		loaded.Status = statusSkip
		return 0, 0
	}

	st, err := store.Open(ctx, target)
	if err != nil {
		opens.fail(statusError, err.Error())
		loaded.Status = statusSkip
		return 0, 0
	}
	defer func() { _ = st.Close() }()

	for _, p := range core.Phases() {
		n, err := st.Count(ctx, p)
		switch {
		case err != nil:
			loaded.fail(statusWarn, fmt.Sprintf("%s: not loaded", p.Short()))
		case n == 0:
			loaded.fail(statusWarn, fmt.Sprintf("%s: no records", p.Short()))
		default:
			records += n
		}
	}
	if names, err := st.Systems(ctx); err == nil {
		systems = len(names)
	}
	return records, systems
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func buildDoctorOutput(summary ProjectSummary, checks []*HealthCheck) *DoctorOutput {
	healthChecks := make([]HealthCheck, 0, len(checks))
	issues := 0
	for _, c := range checks {
		healthChecks = append(healthChecks, *c)
		issues += c.IssueCount
	}

	// Sort health checks by group then by rule ID
	sort.SliceStable(healthChecks, func(i, j int) bool {
		if healthChecks[i].Group != healthChecks[j].Group {
			return healthChecks[i].Group < healthChecks[j].Group
		}
		return healthChecks[i].RuleID < healthChecks[j].RuleID
	})

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    healthChecks,
		Score:           calculateHealthScore(healthChecks),
		Recommendations: generateRecommendations(healthChecks),
		IssueCount:      issues,
	}
}

// calculateHealthScore computes a health score from 0-100. Each warning
// costs 5 points and each error 20.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100
	for _, check := range checks {
		switch check.Status {
		case statusError:
			score -= check.IssueCount * 20
		case statusWarn:
			score -= check.IssueCount * 5
		}
	}
	return max(0, min(100, score))
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		rec := getRecommendation(check.RuleID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	// Limit to top 5 recommendations
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "CF01":
		return "Point --workbook, devbench.yaml or RAG_TAB_PATH at an existing .xlsx file"
	case "CF02":
		return "Set target.type to sqlite, duckdb or postgres, and target.dsn for postgres"
	case "WB01":
		return "Name one sheet per phase after its label and keep three header rows under the title row"
	case "AR01", "AR02":
		return "Run 'devbench etl' to regenerate the CSV and schema files"
	case "ST01", "ST02":
		return "Run 'devbench etl' or 'devbench load' to rebuild the store"
	case "RF01":
		return "Add <phase>_参照項目.json files to the reference directory"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("devbench Project Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Project Summary"))
	r.Printf("   Workbook: %s\n", styles.Path.Render(out.Summary.Workbook))
	r.Printf("   Target: %s | Sheets: %d | Schemas: %d\n", out.Summary.Target, out.Summary.Sheets, out.Summary.Schemas)
	r.Printf("   Records: %d | Systems: %d | References: %d\n", out.Summary.Records, out.Summary.Systems, out.Summary.References)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCase(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.String()
		switch check.Status {
		case statusWarn:
			icon = styles.Warning.Render("!")
		case statusError:
			icon = styles.StatusFailed.String()
		case statusSkip:
			icon = styles.StatusSkipped.String()
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		// Show first 3 details for issues
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}
	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# devbench Project Health Report")
	r.Println("")

	r.Println("## Project Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Workbook", out.Summary.Workbook))
	r.Println(output.FormatKeyValue("Target", out.Summary.Target))
	r.Printf("- **Sheets**: %d\n", out.Summary.Sheets)
	r.Printf("- **Schemas**: %d\n", out.Summary.Schemas)
	r.Printf("- **Records**: %d\n", out.Summary.Records)
	r.Printf("- **Systems**: %d\n", out.Summary.Systems)
	r.Printf("- **References**: %d\n", out.Summary.References)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCase(currentGroup))
			r.Println("")
		}

		status := strings.ToUpper(check.Status)
		r.Printf("- **[%s]** %s: %s", status, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}
	return nil
}
