package main

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"defect-dashboard/config"
	"defect-dashboard/dashboard"
	"defect-dashboard/gemini"
	"defect-dashboard/notify"
	"defect-dashboard/printer"
	"defect-dashboard/services"
	"defect-dashboard/storage"
	"defect-dashboard/utils"
)

const programName = "defect-dashboard"

var rootFlags struct {
	runDate    string
	configPath string
	offsetDays int
	model      string
	noComments bool
}

var rootCmd = &cobra.Command{
	Use:   programName,
	Short: "Build the daily defect dashboard from inspection and defect records",
	Long: `Joins the run date's inspected lots with their defect tallies, adds
3-year trend context and AI comments, and writes an HTML dashboard named
after the run date to the output directory.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDashboard,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&rootFlags.runDate, "run-date", "", "Run date YYYY-MM-DD (default: today plus the configured offset)")
	f.StringVar(&rootFlags.configPath, "config", "", "JSON file overriding source locations and output directory")
	f.IntVar(&rootFlags.offsetDays, "offset-days", -1, "Run date offset from today when --run-date is not given")
	f.StringVar(&rootFlags.model, "model", "", "Gemini model tried before the configured one")
	f.BoolVar(&rootFlags.noComments, "no-comments", false, "Skip AI comment generation")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

func runDashboard(cmd *cobra.Command, _ []string) (err error) {
	cfg := config.Load()
	runID := uuid.NewString()
	logger := utils.NewLogger().With("run_id", runID)
	defer logger.Sync()

	// cfg is read when the deferred handler runs, after --config has been applied.
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
			logger.Error("Unhandled panic: %v", r)
			notifyFailure(logger, cfg, runID, fmt.Errorf("panic: %v", r), detail)
			panic(r)
		}
		if err != nil {
			logger.Error("Dashboard generation failed: %v", err)
			notifyFailure(logger, cfg, runID, err, "")
		}
	}()

	if rootFlags.configPath != "" {
		if err := cfg.LoadFile(rootFlags.configPath); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("offset-days") {
		cfg.RunDateOffsetDays = rootFlags.offsetDays
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runDate, err := resolveRunDate(rootFlags.runDate, cfg.RunDateOffsetDays, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Defect dashboard starting ===")
	logger.Info("Config: driver %s | inspections %s | defects %s | output %s | run date %s",
		cfg.SourceDriver, cfg.InspectionTable, cfg.DefectTable, cfg.OutputDir, runDate.Format("2006-01-02"))

	res, err := generate(ctx, cmd, cfg, logger, runDate)
	if err != nil {
		return err
	}

	logger.Info("=== Done: %s ===", res.HTMLPath)
	return nil
}

func generate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *utils.Logger, runDate time.Time) (*dashboard.Result, error) {
	inspections, err := storage.OpenSQLSource(ctx, cfg.SourceDriver, cfg.InspectionDSN, logger)
	if err != nil {
		return nil, err
	}
	defer inspections.Close()

	defects, err := storage.OpenSQLSource(ctx, cfg.SourceDriver, cfg.DefectDSN, logger)
	if err != nil {
		return nil, err
	}
	defer defects.Close()

	writer, err := storage.NewReportWriter(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	deps := dashboard.Deps{
		Inspections: inspections,
		Defects:     defects,
		Writer:      writer,
		Registry:    services.DefaultWorstRegistry(),
		Terms:       services.NewTermResolver(),
		Out:         cmd.OutOrStdout(),
		NewGenerator: func(ctx context.Context) (services.CommentGenerator, error) {
			if cfg.GeminiAPIKey == "" {
				return nil, nil
			}
			client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
	if cfg.ExportPDF {
		deps.PDF = printer.NewPDFExporter(cfg.ChromeBin, logger)
		deps.PDFPath = printer.PDFPath
	}

	gen, err := dashboard.NewGenerator(deps, dashboard.Options{
		InspectionTable: cfg.InspectionTable,
		DefectTable:     cfg.DefectTable,
		ProductTable:    cfg.ProductMasterTable,
		LogoText:        cfg.LogoText,
		TemplatePath:    cfg.TemplatePath,
		WriteCSV:        cfg.WriteBreakdownCSV,
		NoComments:      rootFlags.noComments,
		Comment: services.CommentOptions{
			Models:  services.CandidateModels(rootFlags.model, cfg.GeminiModel),
			Delay:   cfg.CommentDelay,
			Timeout: cfg.CommentTimeout,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, runDate)
}

// resolveRunDate parses explicit as YYYY-MM-DD, or applies offsetDays to now.
func resolveRunDate(explicit string, offsetDays int, now time.Time) (time.Time, error) {
	if explicit != "" {
		d, err := time.ParseInLocation("2006-01-02", explicit, time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --run-date %q: want YYYY-MM-DD", explicit)
		}
		return d, nil
	}
	d := now.AddDate(0, 0, offsetDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.Local), nil
}

// sendMail is the SMTP transport used for failure mail.
var sendMail notify.SendFunc = smtp.SendMail

// notifyFailure mails the failure using the mail settings in cfg. Mail
// problems are logged and never replace the original error.
func notifyFailure(logger *utils.Logger, cfg *config.Config, runID string, runErr error, detail string) {
	if !cfg.MailEnabled() {
		logger.Warn("Failure mail not configured; skipping notification")
		return
	}
	programPath, _ := os.Executable()
	mailer := notify.NewMailer(notify.MailConfig{
		Server:    cfg.SMTPServer,
		Port:      cfg.SMTPPort,
		Sender:    cfg.EmailSender,
		Password:  cfg.EmailPassword,
		Receivers: cfg.EmailReceivers,
	}, programName, programPath, runID).WithSendFunc(sendMail)
	if err := mailer.NotifyFailure(runErr, detail); err != nil {
		logger.Error("Failure mail could not be sent: %v", err)
		return
	}
	logger.Info("Failure mail sent via %s", cfg.SMTPAddr())
}
