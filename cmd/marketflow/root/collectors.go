package root

import (
	"github.com/spf13/cobra"
)

var collectorsCmd = &cobra.Command{
	Use:   "collectors [id]",
	Short: "Show the configured fleet with budget and health state",
	Long: `Collectors prints the capability, quota, and health view of the
configured fleet. With an id argument only that collector is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollectors,
}

func runCollectors(cmd *cobra.Command, args []string) error {
	f, err := buildFleet(cfgPath)
	if err != nil {
		return err
	}
	defer f.close()

	if len(args) == 1 {
		info, err := f.router.CollectorInfoByID(args[0])
		if err != nil {
			return err
		}
		return printJSON(info)
	}
	return printJSON(f.router.CollectorInfo())
}
