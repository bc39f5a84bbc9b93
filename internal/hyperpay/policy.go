package hyperpay

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/zeitlabs/payments-hyperpay/internal/obs"
)

// PaymentStatus is the tri-state outcome of classifying a vendor result code.
type PaymentStatus int

const (
	// StatusSuccess means the payment is confirmed by the processor.
	StatusSuccess PaymentStatus = iota
	// StatusPending means the outcome may still change soon; poll again.
	StatusPending
	// StatusFailure means the payment is rejected or treated as such.
	StatusFailure
)

func (s PaymentStatus) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusPending:
		return "PENDING"
	case StatusFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Rule pairs a result-code pattern with the outcome applied on a match.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Outcome PaymentStatus
}

// DefaultPolicy returns the ordered classification rules. The patterns
// overlap by construction and the order encodes business policy: a
// changeable pending beats a stuck pending beats success beats
// success-pending-manual-review. Do not reorder.
//
// Manual-review success codes are treated as FAILURE until the upstream
// policy question is settled; flip the Outcome of that single rule to
// change the behaviour everywhere.
func DefaultPolicy() []Rule {
	return []Rule{
		{
			Name:    "pending_changeable_soon",
			Pattern: regexp.MustCompile(`^(000\.200)`),
			Outcome: StatusPending,
		},
		{
			// Resolves only after a multi-day settlement delay; treated
			// as a failure rather than left pending indefinitely.
			Name:    "pending_not_changeable_soon",
			Pattern: regexp.MustCompile(`^(800\.400\.5|100\.400\.500)`),
			Outcome: StatusFailure,
		},
		{
			Name:    "success",
			Pattern: regexp.MustCompile(`^(000\.000\.|000\.100\.1|000\.[36])`),
			Outcome: StatusSuccess,
		},
		{
			Name:    "success_manual_review",
			Pattern: regexp.MustCompile(`^(000\.400\.0[^3]|000\.400\.[0-1]{2}0)`),
			Outcome: StatusFailure,
		},
	}
}

// Classifier maps vendor result codes to a PaymentStatus using an ordered,
// first-match-wins rule table. Unmatched codes are failures: the vendor code
// space is not trusted to be enumerable, so the default denies.
type Classifier struct {
	Rules  []Rule
	Logger zerolog.Logger
}

// NewClassifier returns a classifier with the default policy table.
func NewClassifier(logger zerolog.Logger) Classifier {
	return Classifier{Rules: DefaultPolicy(), Logger: logger}
}

// Classify evaluates the rule table against the result code. The matched rule
// name is returned alongside the outcome for telemetry. An empty result code
// or transaction id fails with ErrBadResponse.
func (c Classifier) Classify(resultCode, transactionID string) (PaymentStatus, string, error) {
	if resultCode == "" || transactionID == "" {
		c.Logger.Warn().
			Str("result_code", resultCode).
			Str("transaction_id", transactionID).
			Msg("notification missing result code or transaction id")
		return StatusFailure, "", fmt.Errorf("%w: missing result code %q or transaction id %q",
			ErrBadResponse, resultCode, transactionID)
	}

	rules := c.Rules
	if len(rules) == 0 {
		rules = DefaultPolicy()
	}
	for _, rule := range rules {
		if !rule.Pattern.MatchString(resultCode) {
			continue
		}
		c.logMatch(rule, resultCode, transactionID)
		countClassification(rule.Name, rule.Outcome)
		return rule.Outcome, rule.Name, nil
	}

	c.Logger.Error().
		Str("result_code", resultCode).
		Str("transaction_id", transactionID).
		Msg("rejection status code")
	countClassification("default_deny", StatusFailure)
	return StatusFailure, "default_deny", nil
}

func (c Classifier) logMatch(rule Rule, resultCode, transactionID string) {
	evt := c.Logger.Info()
	switch rule.Name {
	case "pending_changeable_soon":
		evt = c.Logger.Warn()
	case "pending_not_changeable_soon":
		// Can change after several days; treated as a failure.
		evt = c.Logger.Warn()
	case "success_manual_review":
		evt = c.Logger.Error()
	}
	evt.Str("rule", rule.Name).
		Str("result_code", resultCode).
		Str("transaction_id", transactionID).
		Str("outcome", rule.Outcome.String()).
		Msg("classified vendor result code")
}

func countClassification(rule string, outcome PaymentStatus) {
	if obs.ClassificationsTotal == nil {
		return
	}
	obs.ClassificationsTotal.WithLabelValues(rule, outcome.String()).Inc()
}
