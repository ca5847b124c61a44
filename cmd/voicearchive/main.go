package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VoiceArchive/internal/app"
	"github.com/dharsanguruparan/VoiceArchive/internal/config"
	"github.com/dharsanguruparan/VoiceArchive/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voicearchive: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voicearchive",
		Short: "VoiceArchive development CLI",
		Long: `VoiceArchive CLI serves the archive in-process, prints the resolved configuration,
runs the test suite and launches the binaries directly.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

// serveOverrides are flag values applied on top of the environment.
type serveOverrides struct {
	address       string
	uploadDelay   time.Duration
	successWindow time.Duration
	sessionTTL    time.Duration
	logFile       string
}

func (o serveOverrides) apply(cfg *config.Config) {
	if o.address != "" {
		cfg.Address = o.address
	}
	if o.uploadDelay > 0 {
		cfg.UploadDelay = o.uploadDelay
	}
	if o.successWindow > 0 {
		cfg.SuccessWindow = o.successWindow
	}
	if o.sessionTTL > 0 {
		cfg.SessionTTL = o.sessionTTL
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
}

func newServeCmd() *cobra.Command {
	var o serveOverrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the archive server in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			o.apply(cfg)
			zlog := logger.New(cfg.LogFile, cfg.IsProduction())
			defer zlog.Sync()
			zap.ReplaceGlobals(zlog)

			srv, err := app.Build(cfg, zlog)
			if err != nil {
				return err
			}
			color.Green("VoiceArchive listening on %s", cfg.Address)
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&o.address, "addr", "", "Listen address (overrides VOICEARCHIVE_ADDRESS)")
	cmd.Flags().DurationVar(&o.uploadDelay, "upload-delay", 0, "Simulated upload latency")
	cmd.Flags().DurationVar(&o.successWindow, "success-window", 0, "How long the success banner stays visible")
	cmd.Flags().DurationVar(&o.sessionTTL, "session-ttl", 0, "Idle time before a session and its recordings are dropped")
	cmd.Flags().StringVar(&o.logFile, "log-file", "", "Rotated JSON log file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the configuration resolved from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	key := color.New(color.FgCyan).SprintFunc()
	rows := [][2]string{
		{"address", cfg.Address},
		{"environment", cfg.Environment},
		{"log file", cfg.LogFile},
		{"upload delay", cfg.UploadDelay.String()},
		{"success window", cfg.SuccessWindow.String()},
		{"max upload bytes", fmt.Sprintf("%d", cfg.MaxUploadBytes)},
		{"supported formats", strings.Join(cfg.SupportedFormats, ", ")},
		{"session ttl", cfg.SessionTTL.String()},
		{"signing secret", fmt.Sprintf("(%d bytes)", len(cfg.SigningSecret))},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%-18s %s\n", key(row[0]), row[1])
	}
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(ctx, "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			goArgs := []string{"run", path}
			goArgs = append(goArgs, args...)
			return runCommand(ctx, "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
