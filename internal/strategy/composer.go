package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/logging"
	"options-lab/internal/models"
)

// Metrics receives strategy events.
type Metrics interface {
	RecordStrategy(name string)
}

type nopMetrics struct{}

func (nopMetrics) RecordStrategy(string) {}

// Request describes a strategy to build. Strikes are interpreted per strategy:
// one strike for covered call, protective put and straddle; put then call
// strike for a collar; three for a butterfly and four for an iron condor.
type Request struct {
	Name       string      `json:"name" validate:"required"`
	Market     Market      `json:"market"`
	Strikes    []float64   `json:"strikes" validate:"required,min=1,dive,gt=0"`
	Shares     int         `json:"shares" default:"100"`
	OptionKind models.Kind `json:"option_kind" default:"call"`
}

// Info describes a buildable strategy.
type Info struct {
	Name        string `json:"name"`
	Strikes     int    `json:"strikes"`
	UsesShares  bool   `json:"uses_shares"`
	Description string `json:"description"`
}

// Catalog lists the strategies Build understands.
func Catalog() []Info {
	return []Info{
		{CoveredCallName, 1, true, "Long stock, short one call per 100 shares"},
		{ProtectivePutName, 1, true, "Long stock, long one put per 100 shares"},
		{LongStraddleName, 1, false, "Long call and long put at the same strike"},
		{IronCondorName, 4, false, "Short put spread K1/K2 and short call spread K3/K4"},
		{ButterflyName, 3, false, "Long K1, two short K2, long K3 of one option kind"},
		{CollarName, 2, true, "Long stock, long put, short call"},
	}
}

// Lookup returns the catalog entry of name or one of its aliases.
func Lookup(name string) (Info, bool) {
	n := normalizeName(name)
	for _, info := range Catalog() {
		if info.Name == n {
			return info, true
		}
	}
	return Info{}, false
}

// Composer builds strategies and records what it builds.
type Composer struct {
	logger  zerolog.Logger
	metrics Metrics
	shares  int
}

// NewComposer creates a composer. defaultShares is used when a request leaves
// Shares at zero; a nil metrics disables instrumentation.
func NewComposer(logger zerolog.Logger, metrics Metrics, defaultShares int) *Composer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if defaultShares <= 0 {
		defaultShares = models.ContractMultiplier
	}
	return &Composer{
		logger:  logger.With().Str("component", "strategy").Logger(),
		metrics: metrics,
		shares:  defaultShares,
	}
}

// Build constructs the named strategy.
func (c *Composer) Build(req Request) (*models.Strategy, error) {
	shares := req.Shares
	if shares == 0 {
		shares = c.shares
	}
	info, ok := Lookup(req.Name)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownStrategy, "%q", req.Name)
	}
	name, need := info.Name, info.Strikes
	if len(req.Strikes) < need {
		return nil, apperrors.NewStrategyError(name, fmt.Sprintf("needs %d strike(s), got %d", need, len(req.Strikes)), apperrors.ErrInsufficientStrikes)
	}

	k := req.Strikes
	var (
		s   *models.Strategy
		err error
	)
	switch name {
	case CoveredCallName:
		s, err = CoveredCall(req.Market, k[0], shares)
	case ProtectivePutName:
		s, err = ProtectivePut(req.Market, k[0], shares)
	case LongStraddleName:
		s, err = LongStraddle(req.Market, k[0])
	case IronCondorName:
		s, err = IronCondor(req.Market, k[0], k[1], k[2], k[3])
	case ButterflyName:
		kind := req.OptionKind
		if _, named := parseName(req.Name); named != "" {
			kind = named
		}
		if kind == "" {
			kind = models.KindCall
		}
		s, err = Butterfly(req.Market, k[0], k[1], k[2], kind)
	case CollarName:
		s, err = Collar(req.Market, k[0], k[1], shares)
	}
	if err != nil {
		return nil, err
	}

	c.metrics.RecordStrategy(s.Name)
	logging.LogStrategy(c.logger, s)
	return s, nil
}

func normalizeName(name string) string {
	n, _ := parseName(name)
	return n
}

// parseName resolves aliases to a catalog name. Aliases that fix the option
// kind, such as butterfly_put, also return it.
func parseName(name string) (string, models.Kind) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	switch n {
	case "straddle":
		return LongStraddleName, ""
	case "butterfly_call":
		return ButterflyName, models.KindCall
	case "butterfly_put":
		return ButterflyName, models.KindPut
	case "butterfly_spread":
		return ButterflyName, ""
	case "condor":
		return IronCondorName, ""
	}
	return n, ""
}

// Named pairs a batch key with its strategy.
type Named struct {
	Key      string           `json:"key"`
	Strategy *models.Strategy `json:"strategy"`
}

// AnalyzeAll builds the standard strategy set over a strike ladder. With no
// strikes it uses 95%, 100% and 105% of spot. Every strike gets a covered call
// and a protective put; three strikes add a straddle on the second strike, a
// call butterfly and a collar on the outer strikes; four add an iron condor.
func (c *Composer) AnalyzeAll(m Market, strikes []float64) ([]Named, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(strikes) == 0 {
		strikes = []float64{m.Spot * 0.95, m.Spot, m.Spot * 1.05}
	}
	strikes = sortedUnique(strikes)

	out := make([]Named, 0, 2*len(strikes)+4)
	add := func(key string, s *models.Strategy, err error) error {
		if err != nil {
			return apperrors.Wrapf(err, "building %s", key)
		}
		c.metrics.RecordStrategy(s.Name)
		out = append(out, Named{Key: key, Strategy: s})
		return nil
	}

	for _, k := range strikes {
		cc, err := CoveredCall(m, k, c.shares)
		if err := add(fmt.Sprintf("%s_%.2f", CoveredCallName, k), cc, err); err != nil {
			return nil, err
		}
		pp, err := ProtectivePut(m, k, c.shares)
		if err := add(fmt.Sprintf("%s_%.2f", ProtectivePutName, k), pp, err); err != nil {
			return nil, err
		}
	}

	if len(strikes) >= 3 {
		st, err := LongStraddle(m, strikes[1])
		if err := add(LongStraddleName, st, err); err != nil {
			return nil, err
		}
		bf, err := Butterfly(m, strikes[0], strikes[1], strikes[2], models.KindCall)
		if err := add("butterfly_call", bf, err); err != nil {
			return nil, err
		}
		co, err := Collar(m, strikes[0], strikes[2], c.shares)
		if err := add(CollarName, co, err); err != nil {
			return nil, err
		}
	}

	if len(strikes) >= 4 {
		ic, err := IronCondor(m, strikes[0], strikes[1], strikes[2], strikes[3])
		if err := add(IronCondorName, ic, err); err != nil {
			return nil, err
		}
	}

	c.logger.Debug().Int("strategies", len(out)).Int("strikes", len(strikes)).Msg("Analyzed strategy set")
	return out, nil
}

func sortedUnique(in []float64) []float64 {
	out := append([]float64(nil), in...)
	sort.Float64s(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

// StrikeLadder returns n strikes spread evenly over spot·(1 ± rangePct),
// rounded to cents.
func StrikeLadder(spot float64, n int, rangePct float64) ([]float64, error) {
	if spot <= 0 {
		return nil, apperrors.NewValidationError("spot", spot, "must be positive")
	}
	if n < 2 {
		return nil, apperrors.NewValidationError("num_strikes", n, "must be at least 2")
	}
	if rangePct <= 0 || rangePct >= 1 {
		return nil, apperrors.NewValidationError("range_pct", rangePct, "must be in (0, 1)")
	}
	step := 2 * rangePct / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round(spot*(1-rangePct+float64(i)*step)*100) / 100
	}
	return out, nil
}
