package domain

import "time"

// ResultKind discriminates the SimulationResult variants.
type ResultKind string

const (
	KindBacktest  ResultKind = "backtest"
	KindShortTerm ResultKind = "short_term"
	KindLongTerm  ResultKind = "long_term"
)

// SimulationResult is the output of one engine operation. The concrete type is
// one of *BacktestResult, *ShortTermResult or *LongTermResult.
type SimulationResult interface {
	Kind() ResultKind
	simulationResult()
}

// Compile-time interface checks.
var (
	_ SimulationResult = (*BacktestResult)(nil)
	_ SimulationResult = (*ShortTermResult)(nil)
	_ SimulationResult = (*LongTermResult)(nil)
)

// Comparison summarises an alternative way of investing the same total.
type Comparison struct {
	Invested   float64
	Shares     float64
	FinalValue float64
	ROIPct     *float64
}

// BacktestResult is the realized outcome of replaying purchases over history.
// ROIPct and CAGRPct are nil when undefined.
type BacktestResult struct {
	AssetID        string
	Strategy       string
	Start          time.Time
	Invested       float64
	FinalValue     float64
	ROIPct         *float64
	CAGRPct        *float64
	MaxDrawdownPct float64
	Contributions  int
	Shares         float64
	StartPrice     float64
	CurrentPrice   float64
	ValueSeries    []Point

	// LumpSum is set for scheduled strategies: the same invested total bought
	// at the start price.
	LumpSum *Comparison
}

func (*BacktestResult) Kind() ResultKind { return KindBacktest }
func (*BacktestResult) simulationResult() {}

// ShortTermResult is a forecast band per forward step.
type ShortTermResult struct {
	AssetID       string
	Shares        float64
	Paths         int
	Invested      float64
	CentralSeries []Point
	LowBand       []Point
	HighBand      []Point
}

func (*ShortTermResult) Kind() ResultKind { return KindShortTerm }
func (*ShortTermResult) simulationResult() {}

// LongTermResult is a percentile fan over a multi-year horizon.
type LongTermResult struct {
	AssetID      string
	HorizonYears float64
	Shares       float64
	Paths        int
	Invested     float64
	P10Series    []Point
	P50Series    []Point
	P90Series    []Point
}

func (*LongTermResult) Kind() ResultKind { return KindLongTerm }
func (*LongTermResult) simulationResult() {}

// Float returns a pointer to v, for optional metrics.
func Float(v float64) *float64 { return &v }
