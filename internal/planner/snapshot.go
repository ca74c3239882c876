package planner

import (
	"encoding/json"
	"fmt"
)

// Snapshot serializes the plan for the run log: references, modes, and
// token costs, without fragment text. Field order is fixed by the struct
// definitions, so identical plans snapshot to identical bytes.
func (p *Plan) Snapshot() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("snapshot plan: %w", err)
	}
	return string(data), nil
}

// MustSnapshot is Snapshot for contexts where plan marshalling cannot fail
// (plans contain only strings and ints).
func (p *Plan) MustSnapshot() string {
	s, err := p.Snapshot()
	if err != nil {
		panic(err)
	}
	return s
}
