package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"foresight/pkg/foresight"
)

const version = "0.1.0"

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: foresight-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status     Show foresight-server status\n")
		fmt.Fprintf(os.Stderr, "  whatif     Backtest a lump-sum purchase\n")
		fmt.Fprintf(os.Stderr, "  dca        Backtest a recurring purchase\n")
		fmt.Fprintf(os.Stderr, "  forecast   Short-term Monte-Carlo forecast\n")
		fmt.Fprintf(os.Stderr, "  scenario   Long-term P10/P50/P90 scenario\n")
		fmt.Fprintf(os.Stderr, "  holdings   List stored holdings\n")
		fmt.Fprintf(os.Stderr, "\nThe server URL is read from FORESIGHT_URL (default http://localhost:8080).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := foresight.NewClient(serverURL())
	if u := os.Getenv("FORESIGHT_USER"); u != "" {
		client = client.WithUser(u)
	}
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("foresight-cli %s\n", version)
	case "status":
		err = runStatus(ctx, client)
	case "whatif":
		err = runWhatIf(ctx, client, args)
	case "dca":
		err = runDCA(ctx, client, args)
	case "forecast":
		err = runForecast(ctx, client, args)
	case "scenario":
		err = runScenario(ctx, client, args)
	case "holdings":
		err = runHoldings(ctx, client)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serverURL() string {
	if u := os.Getenv("FORESIGHT_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func runStatus(ctx context.Context, c *foresight.Client) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("server: %s\nok: %v\ntime: %s\n", serverURL(), h.OK, h.Time)
	return nil
}

func runWhatIf(ctx context.Context, c *foresight.Client, args []string) error {
	fs := flag.NewFlagSet("whatif", flag.ExitOnError)
	asset := fs.String("asset", "bitcoin", "asset id (coin id or stock:TICKER)")
	amount := fs.Float64("amount", 500, "amount invested, USD")
	date := fs.String("date", "2021-01-01", "purchase date (YYYY-MM-DD)")
	ccy := fs.String("ccy", "", "output currency")
	fs.Parse(args)

	d, err := time.Parse(time.DateOnly, *date)
	if err != nil {
		return fmt.Errorf("parsing -date: %w", err)
	}
	res, err := c.WhatIf(ctx, foresight.WhatIfRequest{Asset: *asset, Amount: *amount, Date: d, Currency: *ccy})
	if err != nil {
		return err
	}
	printBacktest(res)
	return nil
}

func runDCA(ctx context.Context, c *foresight.Client, args []string) error {
	fs := flag.NewFlagSet("dca", flag.ExitOnError)
	asset := fs.String("asset", "bitcoin", "asset id (coin id or stock:TICKER)")
	amount := fs.Float64("amount", 50, "amount per contribution, USD")
	start := fs.String("start", "2021-01-01", "first contribution date (YYYY-MM-DD)")
	freq := fs.String("freq", "weekly", "contribution frequency: weekly or monthly")
	ccy := fs.String("ccy", "", "output currency")
	fs.Parse(args)

	d, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("parsing -start: %w", err)
	}
	res, err := c.DCA(ctx, foresight.DCARequest{Asset: *asset, Amount: *amount, Start: d, Frequency: *freq, Currency: *ccy})
	if err != nil {
		return err
	}
	printBacktest(res)
	if res.LumpSum != nil {
		fmt.Printf("lump-sum value:  %.2f (roi %s)\n", res.LumpSum.CurrentValue, pct(res.LumpSum.ROIPct))
	}
	return nil
}

func runForecast(ctx context.Context, c *foresight.Client, args []string) error {
	fs := flag.NewFlagSet("forecast", flag.ExitOnError)
	asset := fs.String("asset", "bitcoin", "asset id (coin id or stock:TICKER)")
	amount := fs.Float64("amount", 0, "amount invested today, USD (0 projects one unit)")
	horizon := fs.Int("h", 90, "horizon in days")
	paths := fs.Int("n", 0, "number of simulated paths")
	ccy := fs.String("ccy", "", "output currency")
	fs.Parse(args)

	res, err := c.Forecast(ctx, foresight.ForecastRequest{Asset: *asset, Amount: *amount, Horizon: *horizon, Paths: *paths, Currency: *ccy})
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s forecast, %d paths, %s", res.Asset, res.Paths, res.Currency)))
	fmt.Println(colHeaderStyle.Render(fmt.Sprintf("%-12s %14s %14s %14s", "date", "low", "p50", "high")))
	for i, p := range res.Series {
		if i%10 != 0 && i != len(res.Series)-1 {
			continue
		}
		fmt.Printf("%-12s %14.2f %14.2f %14.2f\n", p.Time().Format(time.DateOnly), at(res.Bands.Low, i), p.Value(), at(res.Bands.High, i))
	}
	return nil
}

func runScenario(ctx context.Context, c *foresight.Client, args []string) error {
	fs := flag.NewFlagSet("scenario", flag.ExitOnError)
	asset := fs.String("asset", "bitcoin", "asset id (coin id or stock:TICKER)")
	amount := fs.Float64("amount", 0, "amount invested today, USD (0 projects one unit)")
	years := fs.Float64("years", 10, "horizon in years")
	paths := fs.Int("n", 0, "number of simulated paths")
	ccy := fs.String("ccy", "", "output currency")
	fs.Parse(args)

	res, err := c.Scenario(ctx, foresight.ScenarioRequest{Asset: *asset, Amount: *amount, Years: *years, Paths: *paths, Currency: *ccy})
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s scenario, %.1f years, %d paths, %s", res.Asset, res.Years, res.Paths, res.Currency)))
	fmt.Println(colHeaderStyle.Render(fmt.Sprintf("%-12s %14s %14s %14s", "date", "p10", "p50", "p90")))
	for i, p := range res.P50 {
		fmt.Printf("%-12s %14.2f %14.2f %14.2f\n", p.Time().Format(time.DateOnly), at(res.P10, i), p.Value(), at(res.P90, i))
	}
	return nil
}

func runHoldings(ctx context.Context, c *foresight.Client) error {
	hs, err := c.Holdings(ctx)
	if err != nil {
		return err
	}
	if len(hs) == 0 {
		fmt.Println(dimStyle.Render("no holdings"))
		return nil
	}
	fmt.Println(colHeaderStyle.Render(fmt.Sprintf("%-38s %-16s %14s %14s %s", "id", "asset", "quantity", "buy price", "ccy")))
	for _, h := range hs {
		fmt.Printf("%-38s %-16s %14.6f %14.2f %s\n", h.ID, h.Asset, h.Quantity, h.BuyPrice, h.Currency)
	}
	return nil
}

func printBacktest(b *foresight.Backtest) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s %s from %s (%s)", b.Asset, b.Strategy, b.StartDate, strings.ToUpper(b.Currency))))
	fmt.Printf("invested:        %.2f over %d contribution(s)\n", b.Invested, b.Contributions)
	fmt.Printf("shares:          %.6f\n", b.Shares)
	fmt.Printf("price:           %.2f -> %.2f\n", b.StartPrice, b.CurrentPrice)
	fmt.Printf("current value:   %.2f\n", b.CurrentValue)
	fmt.Printf("roi:             %s\n", pct(b.ROIPct))
	fmt.Printf("cagr:            %s\n", pct(b.CAGRPct))
	fmt.Printf("max drawdown:    %.2f%%\n", b.MaxDrawdownPct)
}

func pct(v *float64) string {
	switch {
	case v == nil:
		return dimStyle.Render("n/a")
	case *v < 0:
		return lossStyle.Render(fmt.Sprintf("%.2f%%", *v))
	default:
		return gainStyle.Render(fmt.Sprintf("%.2f%%", *v))
	}
}

func at(ps []foresight.Point, i int) float64 {
	if i < len(ps) {
		return ps[i].Value()
	}
	return 0
}
