// Package costs provides per-call cost metering, monthly log aggregation and
// budget enforcement for metered external-service usage.
package costs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceLocal is the pseudo-service for on-host model execution; its usage
// is always free.
const ServiceLocal = "local"

// ModelPricing holds USD rates per 1000 tokens.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Table maps service → model → pricing.
type Table map[string]map[string]ModelPricing

// DefaultTable returns the built-in pricing table. Deployments that need
// fresher rates point pricing.path at a YAML file instead of rebuilding.
func DefaultTable() Table {
	return Table{
		"openai": {
			"gpt-4":         {InputPer1K: 0.03, OutputPer1K: 0.06},
			"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
			"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
			"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
		},
		"gemini": {
			"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
			"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
		},
	}
}

// LoadTable reads a pricing table from a YAML file of the form:
//
//	openai:
//	  gpt-4:
//	    input_per_1k: 0.03
//	    output_per_1k: 0.06
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("pricing file %s defines no services", path)
	}
	return table, nil
}

// Cost computes the USD cost of a call. The second return is false when the
// (service, model) pair is not priced; local service calls are always priced
// at zero.
func (t Table) Cost(service, model string, tokensIn, tokensOut int) (float64, bool) {
	if service == ServiceLocal {
		return 0, true
	}
	models, ok := t[service]
	if !ok {
		return 0, false
	}
	pricing, ok := models[model]
	if !ok {
		return 0, false
	}
	return float64(tokensIn)/1000*pricing.InputPer1K + float64(tokensOut)/1000*pricing.OutputPer1K, true
}

// Estimate projects the cost of totalTokens using the mean of the input and
// output rates. Unknown pairs estimate to zero.
func (t Table) Estimate(service, model string, totalTokens int) float64 {
	if service == ServiceLocal {
		return 0
	}
	models, ok := t[service]
	if !ok {
		return 0
	}
	pricing, ok := models[model]
	if !ok {
		return 0
	}
	mean := (pricing.InputPer1K + pricing.OutputPer1K) / 2
	return float64(totalTokens) / 1000 * mean
}
