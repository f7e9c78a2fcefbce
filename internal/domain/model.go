package domain

import "time"

// Model is an installed model as reported by the runner's list command.
type Model struct {
	Name     string `json:"name"`
	ID       string `json:"id,omitempty"`
	Size     string `json:"size"`
	Modified string `json:"modified,omitempty"`
}

// ResourceUsage is a point-in-time sample of host utilisation in percent.
type ResourceUsage struct {
	CPU       float64   `json:"cpu"`
	Memory    float64   `json:"memory"`
	GPU       float64   `json:"gpu"`
	SampledAt time.Time `json:"sampled_at"`
}
