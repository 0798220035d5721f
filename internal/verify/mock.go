package verify

import (
	"context"
	"time"

	"github.com/davidahmann/coitrack/pkg/types"
)

const DefaultMockDelay = 2500 * time.Millisecond

// Mock answers after a fixed delay with one of two canned certificates. An
// even-length file name yields a clean certificate, an odd one yields a
// partial certificate with an under-limit auto policy that expires soon.
type Mock struct {
	Delay time.Duration
	Now   func() time.Time
}

func NewMock(delay time.Duration) *Mock {
	return &Mock{Delay: delay, Now: time.Now}
}

func (m *Mock) Verify(ctx context.Context, sub Submission) (types.VerificationPayload, error) {
	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return types.VerificationPayload{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return types.VerificationPayload{}, err
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	today := now().UTC().Truncate(24 * time.Hour)

	if len(sub.FileName)%2 == 0 {
		return compliantCertificate(sub.VendorName, today), nil
	}
	return partialCertificate(sub.VendorName, today), nil
}

func compliantCertificate(vendor string, today time.Time) types.VerificationPayload {
	effective := today.AddDate(0, -2, 0)
	expires := today.AddDate(1, 0, 0)
	return types.VerificationPayload{
		Status:            types.VerificationVerified,
		Producer:          types.Party{Name: "Northbridge Insurance Brokers", Address: "200 Harbor Way, Boston, MA"},
		Insured:           types.Party{Name: vendor},
		CertificateHolder: types.Party{Name: "Property Management Co."},
		Policies: []types.Policy{
			{Type: "general_liability", Carrier: "Hartwell Mutual", PolicyNumber: "GL-4410021", EffectiveDate: effective, ExpirationDate: expires, EachOccurrence: 1_000_000, Aggregate: 2_000_000, Confidence: 0.97},
			{Type: "auto_liability", Carrier: "Hartwell Mutual", PolicyNumber: "AU-4410022", EffectiveDate: effective, ExpirationDate: expires, EachOccurrence: 1_000_000, Confidence: 0.95},
			{Type: "workers_compensation", Carrier: "Keystone Casualty", PolicyNumber: "WC-880731", EffectiveDate: effective, ExpirationDate: expires.AddDate(0, 2, 0), Confidence: 0.93},
		},
	}
}

func partialCertificate(vendor string, today time.Time) types.VerificationPayload {
	effective := today.AddDate(-1, 0, 20)
	return types.VerificationPayload{
		Status:            types.VerificationPartial,
		Producer:          types.Party{Name: "Summit Risk Partners", Address: "14 Commerce St, Hartford, CT"},
		Insured:           types.Party{Name: vendor},
		CertificateHolder: types.Party{Name: "Property Management Co."},
		Policies: []types.Policy{
			{Type: "general_liability", Carrier: "Granite State Indemnity", PolicyNumber: "GL-2290410", EffectiveDate: effective, ExpirationDate: today.AddDate(0, 0, 20), EachOccurrence: 1_000_000, Aggregate: 2_000_000, Confidence: 0.88},
			{Type: "auto_liability", Carrier: "Granite State Indemnity", PolicyNumber: "AU-2290411", EffectiveDate: effective, ExpirationDate: today.AddDate(0, 3, 0), EachOccurrence: 500_000, Confidence: 0.64},
		},
	}
}
