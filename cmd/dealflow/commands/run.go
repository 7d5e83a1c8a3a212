package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/intake"
	"github.com/teranos/dealflow/pipeline"
	"github.com/teranos/dealflow/sym"
)

// RunCmd analyzes one case in the foreground
var RunCmd = &cobra.Command{
	Use:   "run [deck]",
	Short: sym.Run + " Analyze one deck now",
	Long: sym.Run + ` run - Analyze one deck in the foreground.

The deck may be a local path or anything go-getter understands (https URL,
s3:: or gcs:: address). Supported formats: .pdf .pptx .txt .md. A case that
was already extracted elsewhere can start from a JSON extraction instead.

Examples:
  dealflow run ./acme.pdf
  dealflow run https://example.com/decks/acme.pptx --website acme.io
  dealflow run --extraction acme.json --report acme.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCase,
}

var (
	runWebsite    string
	runCaseID     string
	runExtraction string
	runReportOut  string
	runJSON       bool
	runDBPath     string
)

func init() {
	RunCmd.Flags().StringVar(&runWebsite, "website", "", "Company website (overrides the deck)")
	RunCmd.Flags().StringVar(&runCaseID, "case-id", "", "Case ID (generated when empty)")
	RunCmd.Flags().StringVar(&runExtraction, "extraction", "", "Start from an extraction JSON file instead of a deck")
	RunCmd.Flags().StringVar(&runReportOut, "report", "", "Write the memo as Markdown to this file")
	RunCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
	RunCmd.Flags().StringVar(&runDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runCase(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && runExtraction == "" {
		return errors.New("give a deck or --extraction")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, runDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	svc, err := newServices(cfg, database)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := deal.Input{CaseID: runCaseID, Source: "cli", Website: runWebsite}
	var artifact pipeline.Artifact
	if runExtraction != "" {
		extraction, err := readExtraction(runExtraction)
		if err != nil {
			return err
		}
		in.Extraction = extraction
	}
	if len(args) == 1 {
		deck, name, err := intake.Fetch(ctx, args[0], cfg.Intake.SpoolDir)
		if err != nil {
			return err
		}
		in.FileName = name
		artifact = deck
	}
	if in.CaseID == "" {
		in.CaseID = caseIDFor(in)
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("%s Analyzing case %s", sym.Run, in.CaseID))
	progress := pipeline.ProgressFunc(func(_ context.Context, e pipeline.ProgressEvent) error {
		spinner.UpdateText(fmt.Sprintf("%s [%3d%%] %s", sym.ForState(string(e.State)), e.Percentage, e.Stage))
		return nil
	})

	res := svc.deal.Analyze(ctx, in, artifact, progress)
	if res.Succeeded() {
		spinner.Success(fmt.Sprintf("Case %s completed", in.CaseID))
	} else {
		spinner.Fail(fmt.Sprintf("Case %s failed: %s", in.CaseID, res.Error))
	}

	if runJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode result")
		}
		fmt.Println(string(out))
	} else {
		printStages(res.Stages)
		printOutcome(res)
	}

	if runReportOut != "" && res.Report != nil {
		if err := os.WriteFile(runReportOut, []byte(res.Report.Markdown), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", runReportOut)
		}
		pterm.Info.Printf("Memo written to %s\n", runReportOut)
	}
	return res.Err()
}

func readExtraction(path string) (*casefile.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	var extraction casefile.Extraction
	if err := json.Unmarshal(data, &extraction); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := extraction.Validate(); err != nil {
		return nil, errors.Wrapf(err, "extraction %s", path)
	}
	return &extraction, nil
}

// caseIDFor derives a readable case ID from the company or deck name.
func caseIDFor(in deal.Input) string {
	name := in.FileName
	if in.Extraction != nil && in.Extraction.Company.Name != "" {
		name = in.Extraction.Company.Name
	}
	slug := strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSuffix(name, filepath.Ext(name))), "-")
	if slug == "" {
		slug = "case"
	}
	return fmt.Sprintf("%s-%s", slug, uuid.NewString()[:8])
}

func printStages(stages []pipeline.StageStatus) {
	data := pterm.TableData{{"#", "Stage", "Status", "Tasks", "OK", "Failed", "N/A"}}
	for _, s := range stages {
		data = append(data, []string{
			fmt.Sprint(s.Index + 1),
			s.Name,
			s.Status,
			fmt.Sprint(s.Tasks),
			fmt.Sprint(s.Succeeded),
			fmt.Sprint(s.Failed),
			fmt.Sprint(s.NotApplicable),
		})
	}
	pterm.Println()
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printOutcome(res *deal.Result) {
	if res.Score != nil {
		pterm.Println()
		pterm.Info.Printf("%s Score %.1f/100 · %s · confidence %s · %s\n",
			sym.Score, res.Score.Total, res.Score.TierLabel, res.Score.Confidence, res.Score.Thesis.Recommendation)
	}
	if res.Report != nil {
		pterm.Info.Printf("%s Memo: %s (%d sections)\n", sym.Report, res.Report.Title, len(res.Report.Sections))
	}
	if res.Insights != nil {
		pterm.Info.Printf("%s Insights: %d strengths, %d risks, %d questions (data %.1f%% complete)\n",
			sym.Report, len(res.Insights.Strengths), len(res.Insights.Risks), len(res.Insights.Questions),
			res.Insights.DataCompleteness)
	}
	if missing := res.Unavailable(); len(missing) > 0 {
		pterm.Warning.Printf("Not available: %s\n", strings.Join(missing, ", "))
	}
}
