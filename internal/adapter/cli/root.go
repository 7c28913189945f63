package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/verify"
)

// ErrVersionRequested indicates the user requested the CLI version and no further work should be done.
var ErrVersionRequested = errors.New("version requested")

// Verifier defines the dependency required to run the verify command.
type Verifier interface {
	VerifyReport(ctx context.Context, reportID string) (verify.Outcome, error)
}

// Server blocks serving jobs and HTTP requests until the context is cancelled.
type Server interface {
	Serve(ctx context.Context) error
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Verifier Verifier
	Server   Server
	Args     Arguments
	Version  string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "verifier",
		Short: "Citizen report trust-scoring daemon and CLI",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(verifyCommand(deps.Verifier))
	root.AddCommand(serveCommand(deps.Server))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.PreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func verifyCommand(verifier Verifier) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <report-id>",
		Short: "Run the verification pipeline for a single report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verifier == nil {
				return fmt.Errorf("verifier not configured")
			}
			reportID := args[0]

			outcome, err := verifier.VerifyReport(cmd.Context(), reportID)
			if err != nil {
				return fmt.Errorf("verify report %s: %w", reportID, err)
			}

			printOutcome(cmd.OutOrStdout(), reportID, outcome)
			return nil
		},
	}
	return cmd
}

func serveCommand(server Server) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume verification jobs and serve the operational HTTP surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == nil {
				return fmt.Errorf("server not configured")
			}
			return server.Serve(cmd.Context())
		},
	}
}

func printOutcome(w io.Writer, reportID string, outcome verify.Outcome) {
	_, _ = fmt.Fprintf(w, "report:  %s\n", reportID)
	_, _ = fmt.Fprintf(w, "status:  %s\n", colorStatus(outcome.Status))

	result := outcome.Result
	if result == nil {
		return
	}

	_, _ = fmt.Fprintf(w, "tier:    %s\n", result.Tier)
	_, _ = fmt.Fprintf(w, "score:   %d/%d\n", result.Score, result.MaxScore)
	for _, lvl := range result.Levels {
		_, _ = fmt.Fprintf(w, "  %-20s %3d/%3d\n", lvl.Label, lvl.Score, lvl.MaxScore)
		for _, note := range lvl.Notes {
			_, _ = fmt.Fprintf(w, "    - %s\n", note)
		}
	}
	for _, note := range result.Notes {
		_, _ = fmt.Fprintf(w, "note:    %s\n", note)
	}
}

// colorStatus wraps the status in ANSI color when stdout is a terminal.
func colorStatus(status domain.Status) string {
	if !IsOutputTerminal() {
		return string(status)
	}
	switch status {
	case domain.StatusVerified:
		return "\033[32m" + string(status) + "\033[0m"
	case domain.StatusRejected, domain.StatusFailed:
		return "\033[31m" + string(status) + "\033[0m"
	case domain.StatusPending:
		return "\033[33m" + string(status) + "\033[0m"
	default:
		return string(status)
	}
}
