package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidResponse = errors.New("received invalid response format from AI service")

var validate = validator.New()

type BiggestMove struct {
	SKUChannel       string   `json:"sku_channel" validate:"required"`
	PercentChangeMoM *float64 `json:"percent_change_mom" validate:"required"`
	Direction        string   `json:"direction" validate:"required"`
	LikelyDrivers    []string `json:"likely_drivers" validate:"required"`
	Explanation      string   `json:"explanation" validate:"required"`
	PlannerAction    string   `json:"planner_action" validate:"required"`
}

type SteadyTrend struct {
	SKUChannel    string   `json:"sku_channel" validate:"required"`
	CAGR6P        *float64 `json:"cagr_6p" validate:"required"`
	Trend         string   `json:"trend" validate:"required"`
	LikelyDrivers []string `json:"likely_drivers" validate:"required"`
	Explanation   string   `json:"explanation" validate:"required"`
	PlannerAction string   `json:"planner_action" validate:"required"`
}

type HistoricalAnomaly struct {
	SKUChannel    string `json:"sku_channel" validate:"required"`
	Pattern       string `json:"pattern" validate:"required"`
	PossibleCause string `json:"possible_cause" validate:"required"`
	Explanation   string `json:"explanation" validate:"required"`
	PlannerAction string `json:"planner_action" validate:"required"`
}

// Report is the insight document produced per chunk and after merging.
type Report struct {
	BiggestMoves        []BiggestMove       `json:"biggest_moves" validate:"required,dive"`
	SteadyTrends        []SteadyTrend       `json:"steady_trends" validate:"required,dive"`
	HistoricalAnomalies []HistoricalAnomaly `json:"historical_anomalies" validate:"required,dive"`
}

// DecodeReport parses a model response and checks every required field.
func DecodeReport(text string) (*Report, error) {
	var report Report
	if err := json.Unmarshal([]byte(stripFences(text)), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := validate.Struct(&report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &report, nil
}

// Append concatenates other's findings onto r.
func (r *Report) Append(other *Report) {
	r.BiggestMoves = append(r.BiggestMoves, other.BiggestMoves...)
	r.SteadyTrends = append(r.SteadyTrends, other.SteadyTrends...)
	r.HistoricalAnomalies = append(r.HistoricalAnomalies, other.HistoricalAnomalies...)
}

// Empty returns a report with non-nil, zero-length sections.
func Empty() *Report {
	return &Report{
		BiggestMoves:        []BiggestMove{},
		SteadyTrends:        []SteadyTrend{},
		HistoricalAnomalies: []HistoricalAnomaly{},
	}
}

func (r *Report) Findings() int {
	return len(r.BiggestMoves) + len(r.SteadyTrends) + len(r.HistoricalAnomalies)
}

// SKUGroupInsights is the compact per-group summary.
type SKUGroupInsights struct {
	SKUGroup string `json:"skuGroup" validate:"required"`
	Insights []struct {
		Trend       string `json:"trend" validate:"required"`
		Explanation string `json:"explanation" validate:"required"`
	} `json:"insights" validate:"required,dive"`
}

func DecodeSKUGroupInsights(text string) (*SKUGroupInsights, error) {
	var out SKUGroupInsights
	if err := json.Unmarshal([]byte(stripFences(text)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := validate.Struct(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &out, nil
}

// stripFences drops a ```json fence some models wrap around JSON output.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
