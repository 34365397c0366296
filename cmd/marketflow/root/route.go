package root

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketflow/marketflow/pkg/collectors"
	"github.com/marketflow/marketflow/pkg/domain"
)

var (
	routeSymbols  []string
	routeTypes    []string
	routeSector   string
	routeAnalysis string
	routeExecute  bool
	routeTimeout  time.Duration
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Plan (and optionally execute) collection for a request",
	Long: `Route builds the collection plan for a request: which collectors
activate, in what order, which ones are skipped and why. With --execute the
planned collectors are called concurrently and the results are published to
NATS when the publisher is enabled.`,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringSliceVarP(&routeSymbols, "symbols", "s", nil, "Ticker symbols, e.g. AAPL,MSFT")
	routeCmd.Flags().StringSliceVarP(&routeTypes, "types", "t", nil, "Data types, e.g. fundamentals,filings")
	routeCmd.Flags().StringVar(&routeSector, "sector", "", "Sector filter")
	routeCmd.Flags().StringVar(&routeAnalysis, "analysis", "", "Analysis hint: fundamental, technical, smart_money, sentiment")
	routeCmd.Flags().BoolVar(&routeExecute, "execute", false, "Call the planned collectors instead of only planning")
	routeCmd.Flags().DurationVar(&routeTimeout, "timeout", 60*time.Second, "Overall deadline for --execute")
}

// plannedView is the JSON shape of one activated collector.
type plannedView struct {
	CollectorID string `json:"collector_id"`
	Priority    int    `json:"priority"`
	Reliability int    `json:"reliability"`
}

type planView struct {
	RequestID  string                        `json:"request_id"`
	Collectors []plannedView                 `json:"collectors"`
	Skipped    []collectors.SkippedCollector `json:"skipped,omitempty"`
	Fallbacks  []collectors.ProtocolFallback `json:"fallbacks,omitempty"`
	Results    []resultView                  `json:"results,omitempty"`
}

type resultView struct {
	CollectorID string `json:"collector_id"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
	Bytes       int    `json:"bytes,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms,omitempty"`
}

func runRoute(cmd *cobra.Command, args []string) error {
	f, err := buildFleet(cfgPath)
	if err != nil {
		return err
	}
	defer f.close()

	ctx, cancel := context.WithTimeout(context.Background(), routeTimeout)
	defer cancel()

	criteria := criteriaFromFlags()
	plan := f.router.RouteRequest(ctx, criteria)

	view := planView{
		RequestID: plan.RequestID,
		Skipped:   plan.Skipped,
		Fallbacks: plan.Fallbacks,
	}
	for _, pc := range plan.Collectors {
		view.Collectors = append(view.Collectors, plannedView{
			CollectorID: pc.Decision.CollectorID,
			Priority:    pc.Decision.Priority,
			Reliability: pc.Decision.Reliability,
		})
	}

	if routeExecute {
		results, err := executePlan(ctx, f, plan, criteria)
		if err != nil {
			return err
		}
		view.Results = results
	}

	return printJSON(view)
}

func executePlan(ctx context.Context, f *fleet, plan *collectors.RoutePlan, criteria domain.RequestCriteria) ([]resultView, error) {
	pub, err := f.publisher()
	if err != nil {
		return nil, err
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				f.logger.Warn("publisher close failed", zap.Error(err))
			}
		}()
	}

	exec := collectors.NewExecutor(f.logger.Named("executor"))
	results := exec.Execute(ctx, plan, domain.FiltersFrom(criteria))

	views := make([]resultView, 0, len(results))
	for _, res := range results {
		v := resultView{CollectorID: res.CollectorID, Attempts: res.Attempts}
		if res.Err != nil {
			v.Error = res.Err.Error()
		} else if res.Result != nil {
			v.Bytes = len(res.Result.Payload)
			v.ElapsedMS = res.Result.Elapsed.Milliseconds()
			if pub != nil {
				if err := pub.Publish(ctx, res.Result); err != nil {
					f.logger.Warn("result publish failed",
						zap.String("collector", res.CollectorID), zap.Error(err))
				}
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func criteriaFromFlags() domain.RequestCriteria {
	types := make([]domain.UseCase, len(routeTypes))
	for i, t := range routeTypes {
		types[i] = domain.UseCase(t)
	}
	return domain.RequestCriteria{
		Symbols:      routeSymbols,
		DataTypes:    types,
		Sector:       routeSector,
		AnalysisType: domain.AnalysisType(routeAnalysis),
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
