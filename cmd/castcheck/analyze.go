package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/pipeline"
	"github.com/codefionn/castcheck/internal/report"
	"github.com/codefionn/castcheck/internal/transcript"
)

var (
	analyzeMode        string
	analyzeCriticLoops int
	analyzeOutputDir   string
	analyzeRender      bool
	analyzeSample      string
	analyzeVerbose     bool
	analyzeCriticTools bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze a transcript file",
	Long: `Analyze a transcript and write JSON and Markdown reports.

The file may be plain text or JSON (an object with "transcript" or a list of
segments). Use "-" to read text from stdin, or --sample to run a bundled
transcript.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "graph", "Orchestration: graph or supervisor")
	analyzeCmd.Flags().IntVar(&analyzeCriticLoops, "critic-loops", 0, "Fact-check/critique rounds (0 uses the config)")
	analyzeCmd.Flags().StringVar(&analyzeOutputDir, "output-dir", "", "Report directory (defaults to app.output_dir)")
	analyzeCmd.Flags().BoolVar(&analyzeRender, "render", false, "Render the Markdown report in the terminal")
	analyzeCmd.Flags().StringVar(&analyzeSample, "sample", "", "Analyze a bundled sample instead of a file")
	analyzeCmd.Flags().BoolVarP(&analyzeVerbose, "verbose", "v", false, "Print every search call")
	analyzeCmd.Flags().BoolVar(&analyzeCriticTools, "critic-search", false, "Let the critic run its own searches")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := pipeline.ParseMode(analyzeMode)
	if err != nil {
		return err
	}
	if analyzeCriticLoops < 0 {
		return fmt.Errorf("--critic-loops must not be negative")
	}

	in, err := readInput(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRun(ctx, "")

	printer := newProgressPrinter(analyzeVerbose)
	factory := pipeline.NewRuntimeFactory()
	factory.CriticTools = analyzeCriticTools
	rt, err := factory.Create(ctx, cfg, printer.Print)
	if err != nil {
		return err
	}

	out, err := (&pipeline.Runner{Runtime: rt}).Run(ctx, pipeline.Request{
		Transcript:  in.Normalize(),
		Metadata:    in.Metadata,
		Mode:        mode,
		CriticLoops: analyzeCriticLoops,
		Debug:       debugMode,
	})
	if err != nil {
		return err
	}

	dir := analyzeOutputDir
	if dir == "" {
		dir = cfg.App.OutputDir
	}
	jsonPath, mdPath, err := report.WriteAll(out, dir, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n%s %s\n",
		color.GreenString("JSON report:"), jsonPath,
		color.GreenString("Markdown report:"), mdPath)

	return printResult(cmd.OutOrStdout(), out)
}

// readInput loads the transcript from --sample, stdin or a file.
func readInput(args []string) (*transcript.Input, error) {
	switch {
	case analyzeSample != "":
		if len(args) > 0 {
			return nil, fmt.Errorf("pass either a file or --sample, not both")
		}
		return transcript.LoadSample(analyzeSample)
	case len(args) == 0:
		return nil, fmt.Errorf("no transcript given (pass a file, \"-\" or --sample)")
	case args[0] == "-":
		return transcript.ReadFile("stdin.txt", os.Stdin)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return transcript.ReadFile(filepath.Base(args[0]), f)
}

// printResult writes the rendered report, or a wrapped plain summary.
func printResult(w io.Writer, out *pipeline.FinalOutput) error {
	width := terminalWidth()
	if analyzeRender {
		rendered, err := report.RenderTerminal(report.Markdown(out), width)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, rendered)
		return err
	}

	wrap := width
	if wrap > 100 {
		wrap = 100
	}
	fmt.Fprintln(w, color.CyanString("=== Summary ==="))
	if out.Summary != nil {
		fmt.Fprintln(w, wordwrap.String(out.Summary.FinalSummary, wrap))
	}
	fmt.Fprintf(w, "\nConfidence: %.1f%%  Critic iterations: %d\n", out.ConfidenceInAnalysis*100, out.CriticIterations)
	if out.FactCheck != nil {
		fmt.Fprintln(w, "\n"+color.CyanString("=== Claims ==="))
		for _, c := range out.FactCheck.VerifiedClaims {
			fmt.Fprintf(w, "%s %s\n", statusLabel(c.VerificationStatus), wordwrap.String(c.Claim, wrap))
		}
	}
	return nil
}

func statusLabel(status string) string {
	switch status {
	case "fact-checked":
		return color.GreenString("[%s]", status)
	case "declined":
		return color.RedString("[%s]", status)
	default:
		return color.YellowString("[%s]", status)
	}
}

