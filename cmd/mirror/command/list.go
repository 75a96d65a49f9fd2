package command

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/zerocat/extension-mirror/config"
	"github.com/zerocat/extension-mirror/module/mirror"
)

// NewListCmd wires up:
//
//	extmirror list <source>
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <source>",
		Short: "List the extensions a sync would mirror",
		Long: heredoc.Doc(`
			Lists the extensions offered by a source after the selection is
			applied. Nothing is written to the backend and no token is needed.
		`),
		Example: heredoc.Doc(`
			extmirror list 40code
			extmirror list 40code --author TigerCoder --format json
			extmirror list sharkpools --config mirror.yaml
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadMirrorConfig(config.Global, args[0])
			if err != nil {
				return err
			}
			svc, err := mirror.NewMirrorService(cmd.Context(), cfg, args[0],
				mirror.WithOutput(config.Global.Format, cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			_, err = svc.Preview(cmd.Context(), selection())
			return err
		},
	}
	addSelectionFlags(cmd.Flags())
	return cmd
}
