package service

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/noah-isme/sma-warning-api/internal/models"
)

type metricComputer interface {
	Compute(ctx context.Context, studentID, metric string, windowDays int) (float64, bool, error)
}

// EvaluateCondition reports whether a present metric value satisfies the condition.
func EvaluateCondition(value float64, cond models.Condition) bool {
	return cond.Operator.Evaluate(value, cond.Value)
}

// evaluateRule walks the rule's conditions in declared order and returns the trigger of the first
// condition whose metric is present and satisfied. A nil trigger with nil error means no match.
func evaluateRule(ctx context.Context, metrics metricComputer, studentID string, rule models.WarningRule) (*models.TriggerData, error) {
	for _, cond := range rule.Conditions {
		value, ok, err := metrics.Compute(ctx, studentID, cond.Metric, cond.WindowDays())
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", cond.Metric, err)
		}
		if !ok || !EvaluateCondition(value, cond) {
			continue
		}
		return &models.TriggerData{
			Metric:      cond.Metric,
			Value:       value,
			Threshold:   cond.Value,
			Operator:    cond.Operator,
			Timeframe:   cond.WindowDays(),
			Description: describeTrigger(cond, value),
		}, nil
	}
	return nil, nil
}

func describeTrigger(cond models.Condition, value float64) string {
	return fmt.Sprintf("%s is %s (%s %s over the last %d days)",
		cond.Metric, formatNumber(value), cond.Operator, formatNumber(cond.Value), cond.WindowDays())
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
