package strategy

import (
	"sort"
	"strings"

	apperrors "options-lab/internal/errors"
	"options-lab/internal/models"
)

// Ranking criteria.
const (
	CriterionRiskReward  = "risk_reward"
	CriterionProbability = "probability"
	CriterionMaxProfit   = "max_profit"
)

// Criteria lists the accepted ranking criteria.
func Criteria() []string {
	return []string{CriterionRiskReward, CriterionProbability, CriterionMaxProfit}
}

// Ranked is a strategy with the score it was ordered by.
type Ranked struct {
	Key      string           `json:"key"`
	Strategy *models.Strategy `json:"strategy"`
	Score    models.Bound     `json:"score"`
}

// Rank orders strategies by criterion, best first. Ties keep their input
// order. An unbounded maximum profit ranks above every finite score.
func Rank(strategies []Named, criterion string) ([]Ranked, error) {
	score, err := scorer(criterion)
	if err != nil {
		return nil, err
	}
	out := make([]Ranked, 0, len(strategies))
	for _, n := range strategies {
		if n.Strategy == nil {
			continue
		}
		out = append(out, Ranked{Key: n.Key, Strategy: n.Strategy, Score: score(n.Strategy)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].Score.Less(out[i].Score)
	})
	return out, nil
}

func scorer(criterion string) (func(*models.Strategy) models.Bound, error) {
	switch strings.ToLower(strings.TrimSpace(criterion)) {
	case CriterionRiskReward, "":
		return RiskReward, nil
	case CriterionProbability:
		return func(s *models.Strategy) models.Bound {
			return models.Finite(s.ProbabilityOfProfit)
		}, nil
	case CriterionMaxProfit:
		return func(s *models.Strategy) models.Bound {
			return s.MaxProfit
		}, nil
	}
	return nil, apperrors.Wrapf(apperrors.ErrUnknownCriterion, "%q", criterion)
}

// RiskReward is max profit over the magnitude of max loss. A strategy with
// no finite loss to risk scores zero; unbounded profit scores unbounded.
func RiskReward(s *models.Strategy) models.Bound {
	if s.MaxProfit.Unbounded {
		return s.MaxProfit
	}
	if s.MaxLoss.Unbounded || s.MaxLoss.Value <= 0 {
		return models.Finite(0)
	}
	return models.Finite(s.MaxProfit.Value / s.MaxLoss.Value)
}
