package types

import "time"

type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationExpired  VerificationStatus = "expired"
	VerificationPartial  VerificationStatus = "partial"
	VerificationError    VerificationStatus = "error"
)

type Party struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type Policy struct {
	Type           string    `json:"type"`
	Carrier        string    `json:"carrier"`
	PolicyNumber   string    `json:"policyNumber"`
	EffectiveDate  time.Time `json:"effectiveDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	EachOccurrence int64     `json:"eachOccurrence,omitempty"`
	Aggregate      int64     `json:"aggregate,omitempty"`
	Confidence     float64   `json:"confidence"`
}

// VerificationPayload is what a verifier extracts from a certificate.
type VerificationPayload struct {
	Status            VerificationStatus `json:"status"`
	Producer          Party              `json:"producer"`
	Insured           Party              `json:"insured"`
	CertificateHolder Party              `json:"certificateHolder"`
	Policies          []Policy           `json:"policies"`
}
