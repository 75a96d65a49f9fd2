package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zerocat/extension-mirror/config"
	"github.com/zerocat/extension-mirror/internal/terminal"
	"github.com/zerocat/extension-mirror/module/mirror"
	"github.com/zerocat/extension-mirror/module/mirror/source/directory"
	"github.com/zerocat/extension-mirror/util/common/progress"
)

// NewSyncCmd wires up:
//
//	extmirror sync <source>
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <source>",
		Short: "Mirror extensions from a source into ZeroCat",
		Long: heredoc.Doc(`
			Mirrors the selected extensions of a source into ZeroCat projects.

			Every extension gets a project named after its id. A new version is
			committed only when the extension content differs byte for byte from
			the latest version, unless --force is given. Extensions are processed
			one at a time with a fixed delay between them.

			Without --config the built-in sources are used:
			  40code      the 40code catalog, selected by author
			  sharkpools  a SharkPools-Extensions checkout in the working directory

			The backend and tokens are read from the environment or an env file:
			  ZEROCAT_BACKEND, ZEROCAT_TOKEN_40CODE, ZEROCAT_TOKEN_SHARKPOOL

			The command exits with status 1 when any extension failed.
		`),
		Example: heredoc.Doc(`
			extmirror sync 40code
			extmirror sync 40code --id 123 --id 456 --force
			extmirror sync sharkpools --watch
			extmirror sync local --config mirror.yaml --format json
		`),
		Args: cobra.ExactArgs(1),
		RunE: runSync,
	}

	addSelectionFlags(cmd.Flags())
	cmd.Flags().BoolVar(&config.Global.Mirror.Force, "force", false,
		"Commit a new version even when the content is unchanged")
	cmd.Flags().BoolVar(&config.Global.Mirror.Watch, "watch", false,
		"Keep running and sync extension files as they change (directory sources)")
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := config.LoadMirrorConfig(config.Global, name)
	if err != nil {
		return err
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)
	go func() {
		select {
		case <-signalChan:
			pterm.Warning.Println("Received interrupt signal, stopping after the current extension...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var reporter progress.Reporter = progress.NewConsoleReporter()
	if terminal.Detect(config.Global.NoColor, config.Global.Format).Plain {
		reporter = progress.NewNopReporter()
	}

	svc, err := mirror.NewMirrorService(ctx, cfg, name,
		mirror.WithReporter(reporter),
		mirror.WithOutput(config.Global.Format, cmd.OutOrStdout()))
	if err != nil {
		return err
	}

	summary, err := svc.Sync(ctx, selection(), config.Global.Mirror.Force)
	if err != nil {
		return err
	}
	failure := fmt.Errorf("%d of %d extensions failed to sync", summary.Fail, summary.Fail+summary.Success)

	if config.Global.Mirror.Watch {
		if summary.Failed() {
			pterm.Warning.Println(failure.Error())
		}
		pterm.Info.Println("Watching for changes, press Ctrl+C to stop")
		return svc.Watch(ctx, selection(), config.Global.Mirror.Force, directory.DefaultSettle)
	}
	if summary.Failed() {
		return failure
	}
	return nil
}
