package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zerocat/extension-mirror/cmd/mirror/command"
	"github.com/zerocat/extension-mirror/config"
	"github.com/zerocat/extension-mirror/internal/terminal"
	"github.com/zerocat/extension-mirror/util/common/printer"
)

// version is set via ldflags during build
var version = "dev"

func main() {
	if err := execute(newRootCmd()); err != nil {
		if terminal.Detect(config.Global.NoColor, config.Global.Format).ColorEnabled {
			pterm.Error.WithWriter(os.Stderr).Println(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// execute runs the command tree and flushes any profile afterwards. Cobra
// skips post-run hooks when a command fails, so the flush happens here.
func execute(rootCmd *cobra.Command) error {
	err := rootCmd.Execute()
	if flushErr := flushProfiling(); flushErr != nil {
		log.Warn().Err(flushErr).Msg("Failed to write profile")
	}
	return err
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "extmirror",
		Short:         "Mirror Scratch extensions into ZeroCat",
		SilenceUsage:  true,
		SilenceErrors: true, //prevent duplicate printing of errors
		Long: heredoc.Doc(`
			extmirror keeps ZeroCat projects in step with third-party Scratch
			extension catalogs and checkouts.

			Run 'extmirror list <source>' to preview a selection and
			'extmirror sync <source>' to mirror it.
		`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			termInfo := terminal.Detect(config.Global.NoColor, config.Global.Format)
			termInfo.Apply()

			switch config.Global.Format {
			case printer.FormatTable, printer.FormatJSON, printer.FormatYAML:
			default:
				return fmt.Errorf("unsupported format %q, must be one of table, json, yaml", config.Global.Format)
			}

			// Set up logging based on verbose flag
			if config.Global.Verbose {
				logWriter := zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339,
					NoColor:    !termInfo.StderrIsTerminal || config.Global.NoColor,
				}
				log.Logger = log.Output(logWriter)
			} else {
				// Disable logging when verbose is not enabled
				log.Logger = zerolog.Nop()
			}

			return initProfiling()
		},
	}

	// Persistent flags available to all commands - bind them directly to global config
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&config.Global.ConfigPath, "config", "c", "",
		"Path to a YAML or TOML configuration file (built-in sources when empty)")
	flags.StringVar(&config.Global.EnvFile, "env-file", "",
		"Path to an env file with ZEROCAT_* variables (default .env when present)")
	flags.StringVar(&config.Global.APIBaseURL, "api-url", "",
		"ZeroCat backend URL (overrides ZEROCAT_BACKEND and the config file)")
	flags.StringVar(&config.Global.AuthToken, "token", "",
		"Backend token for the selected source (overrides the configured token)")
	flags.StringVar(&config.Global.Format, "format", printer.FormatTable, "Format of the result (table, json, yaml)")
	flags.BoolVarP(&config.Global.Verbose, "verbose", "v", false, "Enable verbose logging to console")
	flags.BoolVar(&config.Global.NoColor, "no-color", false,
		"Disable colour output (also respects NO_COLOR env)")
	addProfilingFlags(flags)

	rootCmd.AddCommand(command.NewSyncCmd())
	rootCmd.AddCommand(command.NewListCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// versionCmd returns the version command
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of extmirror",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "extmirror version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Built with %s\n", runtime.Version())
		},
	}
}
