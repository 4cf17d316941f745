package model

import "time"

// AlertType is the closed set of anti-gaming detector findings.
type AlertType string

const (
	AlertWashTrading        AlertType = "WASH_TRADING"
	AlertSybilCluster       AlertType = "SYBIL_CLUSTER"
	AlertStatisticalAnomaly AlertType = "STATISTICAL_ANOMALY"
	AlertCollusion          AlertType = "COLLUSION"
	AlertTimingManipulation AlertType = "TIMING_MANIPULATION"
)

// Severity is a closed set of alert severities.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// AlertStatus tracks an alert through its review lifecycle.
type AlertStatus string

const (
	AlertPending       AlertStatus = "pending"
	AlertInvestigating AlertStatus = "investigating"
	AlertConfirmed     AlertStatus = "confirmed"
	AlertDismissed     AlertStatus = "dismissed"
)

// GamingAlert is one anti-gaming detector finding. Its Wallets set is
// non-empty by construction (NewGamingAlert enforces it) and
// CreatedAt is immutable once set.
type GamingAlert struct {
	ID                string                 `json:"id"`
	Type              AlertType              `json:"type"`
	Severity          Severity               `json:"severity"`
	Wallets           []string               `json:"wallets"`
	Evidence          map[string]interface{} `json:"evidence"`
	RecommendedAction string                 `json:"recommendedAction"`

	Status   AlertStatus `json:"status"`
	Reviewer string      `json:"reviewer,omitempty"`
	Notes    string      `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewGamingAlert constructs an alert, rejecting an empty wallet set.
func NewGamingAlert(id string, typ AlertType, sev Severity, wallets []string, evidence map[string]interface{}, action string, createdAt time.Time) (*GamingAlert, error) {
	if len(wallets) == 0 {
		return nil, errEmptyWallets
	}
	return &GamingAlert{
		ID:                id,
		Type:              typ,
		Severity:          sev,
		Wallets:           wallets,
		Evidence:          evidence,
		RecommendedAction: action,
		Status:            AlertPending,
		CreatedAt:         createdAt,
	}, nil
}

var errEmptyWallets = &InvariantError{Msg: "gaming alert requires a non-empty wallet set"}

// InvariantError signals a violated data-model invariant, a programmer
// error rather than a client input error.
type InvariantError struct{ Msg string }

func (e *InvariantError) Error() string { return e.Msg }

// InvolvesWallet reports whether addr (already lower-cased) is implicated.
func (a GamingAlert) InvolvesWallet(addr string) bool {
	for _, w := range a.Wallets {
		if w == addr {
			return true
		}
	}
	return false
}
