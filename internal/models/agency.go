package models

import (
	"encoding/json"

	"github.com/jmoiron/sqlx/types"
)

// Agency owns requests and issues their sequence numbers.
type Agency struct {
	EIN               string         `db:"ein" json:"ein"`
	Name              string         `db:"name" json:"name"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	NextRequestNumber int            `db:"next_request_number" json:"next_request_number"`
	CounterYear       int            `db:"counter_year" json:"counter_year"`
	Features          types.JSONText `db:"agency_features" json:"agency_features,omitempty"`
}

// FeatureEnabled reads a boolean toggle from the agency feature document.
func (a *Agency) FeatureEnabled(name string) bool {
	if a == nil || len(a.Features) == 0 {
		return false
	}
	var toggles map[string]interface{}
	if err := json.Unmarshal(a.Features, &toggles); err != nil {
		return false
	}
	enabled, _ := toggles[name].(bool)
	return enabled
}
