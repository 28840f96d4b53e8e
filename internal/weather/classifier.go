package weather

import (
	"math"

	"weatheringest/internal/types"
)

// Anomaly thresholds. These values and the rule order below are part of the
// stored anomaly text contract.
const (
	highTemperatureAbove = 80.0
	lowTemperatureBelow  = 10.0
	largeDepartureAbove  = 15.0
	heavyRainAbove       = 1.0
	heavySnowAbove       = 3.0
)

type anomalyRule struct {
	label   types.AnomalyLabel
	matches func(types.Observation) bool
}

var anomalyRules = []anomalyRule{
	{types.AnomalyHighTemperature, func(o types.Observation) bool { return o.TempMax > highTemperatureAbove }},
	{types.AnomalyLowTemperature, func(o types.Observation) bool { return o.TempMin < lowTemperatureBelow }},
	{types.AnomalyLargeDeparture, func(o types.Observation) bool { return math.Abs(o.Departure) > largeDepartureAbove }},
	{types.AnomalyHeavyRain, func(o types.Observation) bool { return o.PrecipitationValue > heavyRainAbove }},
	{types.AnomalyHeavySnow, func(o types.Observation) bool { return o.NewSnow > heavySnowAbove }},
}

// Classify evaluates every anomaly rule against obs and returns the matched
// labels in rule order. A nil result means the observation is Normal.
func Classify(obs types.Observation) []types.AnomalyLabel {
	var labels []types.AnomalyLabel
	for _, rule := range anomalyRules {
		if rule.matches(obs) {
			labels = append(labels, rule.label)
		}
	}
	return labels
}

// Evaluate parses a row and attaches its anomaly labels.
func Evaluate(row RawRow) (types.Observation, error) {
	obs, err := ParseObservation(row)
	if err != nil {
		return types.Observation{}, err
	}
	obs.Anomalies = Classify(obs)
	return obs, nil
}
