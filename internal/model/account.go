package model

import "time"

// Coin reward step: every full CoinHoursStep approved hours earns CoinsPerStep coins.
const (
	CoinHoursStep = 30
	CoinsPerStep  = 10
)

// CoinsFor derives the coin balance from a total of approved hours:
// floor(total/30) * 10. Negative totals earn nothing.
func CoinsFor(totalApprovedHours int) int {
	if totalApprovedHours <= 0 {
		return 0
	}
	return (totalApprovedHours / CoinHoursStep) * CoinsPerStep
}

// Account holds the cached reward state of a user. Both numeric fields are
// derived from the hour-request ledger and overwritten on every recompute
// that finds them stale.
type Account struct {
	UserID        string    `json:"userId"`
	Coins         int       `json:"coins"`
	ApprovedHours int       `json:"approvedHours"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Progress is the derived view of a user's service record.
type Progress struct {
	UserID            string          `json:"userId"`
	PerEvent          map[string]int  `json:"perEvent"`
	Total             int             `json:"total"`
	Coins             int             `json:"coins"`
	EventCertificates map[string]bool `json:"eventCertificates"`
	GlobalCertificate bool            `json:"globalCertificate"`
}

// Thresholds are the approved-hour counts that unlock certificates.
type Thresholds struct {
	EventCertificateHours  int
	GlobalCertificateHours int
}

// DefaultThresholds returns the standard certificate thresholds: 100 hours
// for an event certificate, 500 hours overall.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EventCertificateHours:  100,
		GlobalCertificateHours: 500,
	}
}

// EventCertificate reports whether hours for a single event unlock its certificate.
func (t Thresholds) EventCertificate(hours int) bool {
	return hours >= t.EventCertificateHours
}

// GlobalCertificate reports whether a total unlocks the global certificate.
func (t Thresholds) GlobalCertificate(total int) bool {
	return total >= t.GlobalCertificateHours
}

// CertificateUnlock records the first time a user crossed a certificate
// threshold. EventID is empty for the global certificate. Records are never
// removed, so an unlock is announced once even if hours later drop.
type CertificateUnlock struct {
	UserID     string    `json:"userId"`
	EventID    string    `json:"eventId,omitempty"`
	Hours      int       `json:"hours"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

func (c CertificateUnlock) Global() bool { return c.EventID == "" }
