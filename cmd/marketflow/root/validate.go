package root

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Dry-run a request against the configured fleet",
	Long: `Validate checks request criteria without spending quota or touching
any upstream: it reports warnings, recommendations, and the collectors a
real route would consider.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringSliceVarP(&routeSymbols, "symbols", "s", nil, "Ticker symbols, e.g. AAPL,MSFT")
	validateCmd.Flags().StringSliceVarP(&routeTypes, "types", "t", nil, "Data types, e.g. fundamentals,filings")
	validateCmd.Flags().StringVar(&routeSector, "sector", "", "Sector filter")
	validateCmd.Flags().StringVar(&routeAnalysis, "analysis", "", "Analysis hint")
}

func runValidate(cmd *cobra.Command, args []string) error {
	f, err := buildFleet(cfgPath)
	if err != nil {
		return err
	}
	defer f.close()

	return printJSON(f.router.ValidateRequest(criteriaFromFlags()))
}
