package command

import (
	"github.com/spf13/pflag"

	"github.com/zerocat/extension-mirror/config"
	"github.com/zerocat/extension-mirror/module/mirror"
)

func addSelectionFlags(flags *pflag.FlagSet) {
	flags.StringSliceVar(&config.Global.Mirror.IDs, "id", nil,
		"Extension id to mirror (repeatable, overrides the configured selection)")
	flags.StringSliceVar(&config.Global.Mirror.Authors, "author", nil,
		"Author whose extensions are mirrored (repeatable, overrides the configured selection)")
	flags.BoolVar(&config.Global.Mirror.All, "all", false,
		"Mirror every extension the source lists")
}

func selection() mirror.Selection {
	return mirror.Selection{
		IDs:     config.Global.Mirror.IDs,
		Authors: config.Global.Mirror.Authors,
		All:     config.Global.Mirror.All,
	}
}
