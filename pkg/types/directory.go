package types

import "time"

type Vendor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	Website      string    `json:"website,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Building struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Requirement is one coverage rule a certificate must satisfy. Limits are
// whole US dollars; zero means the limit is not checked.
type Requirement struct {
	PolicyType        string `json:"policyType" yaml:"policy_type"`
	MinEachOccurrence int64  `json:"minEachOccurrence,omitempty" yaml:"min_each_occurrence"`
	MinAggregate      int64  `json:"minAggregate,omitempty" yaml:"min_aggregate"`
}

type Template struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Requirements []Requirement `json:"requirements"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (t Template) Clone() Template {
	out := t
	if t.Requirements != nil {
		out.Requirements = append([]Requirement(nil), t.Requirements...)
	}
	return out
}
