// Package scenario selects canned provider outcomes deterministically
// from an applicant identifier.
package scenario

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/idhash"
)

// Selector picks one entry of an immutable table per identifier.
// It is safe for concurrent use.
type Selector[T any] struct {
	table        []T
	defaultIndex int
}

// NewSelector binds a selector to a copy of table. Empty identifiers
// select table[defaultIndex].
func NewSelector[T any](table []T, defaultIndex int) (*Selector[T], error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("scenario table is empty")
	}
	if defaultIndex < 0 || defaultIndex >= len(table) {
		return nil, fmt.Errorf("default index %d out of range [0,%d)", defaultIndex, len(table))
	}
	return &Selector[T]{
		table:        append([]T(nil), table...),
		defaultIndex: defaultIndex,
	}, nil
}

// Select returns the entry for identifier.
func (s *Selector[T]) Select(identifier string) T {
	return s.table[s.Index(identifier)]
}

// Index returns the table position chosen for identifier.
func (s *Selector[T]) Index(identifier string) int {
	if identifier == "" {
		return s.defaultIndex
	}
	return idhash.Bucket(identifier, len(s.table))
}

// Len returns the table size.
func (s *Selector[T]) Len() int {
	return len(s.table)
}

// Decisions is a selector over canned decision outcomes.
type Decisions = Selector[domain.OutcomeRecord]

// Incomes is a selector over canned income profiles.
type Incomes = Selector[domain.IncomeProfile]

// NewDecisions returns a selector over DecisionTable, defaulting to
// APPROVED_GOOD_CREDIT.
func NewDecisions() *Decisions {
	s, _ := NewSelector(DecisionTable(), DefaultDecisionIndex)
	return s
}

// NewIncomes returns a selector over IncomeTable, defaulting to MEDIUM.
func NewIncomes() *Incomes {
	s, _ := NewSelector(IncomeTable(), DefaultIncomeIndex)
	return s
}

// CreditGrade maps a credit score to a letter grade.
func CreditGrade(score float64) string {
	switch {
	case score >= 750:
		return "A"
	case score >= 700:
		return "B"
	case score >= 650:
		return "C"
	case score >= 600:
		return "D"
	default:
		return "E"
	}
}

// CreditFactors returns the bureau narrative for a credit score.
func CreditFactors(score int) []string {
	switch {
	case score >= 750:
		return []string{"Excellent payment history", "Low credit utilization", "Long credit history"}
	case score >= 680:
		return []string{"Good payment history", "Moderate credit utilization"}
	default:
		return []string{"Fair payment history", "Some recent inquiries"}
	}
}

// CreditEvaluation builds the bureau view of a canned outcome.
func CreditEvaluation(rec domain.OutcomeRecord, scoreDate string) domain.CreditEvaluation {
	return domain.CreditEvaluation{
		CreditScore: rec.CreditScore,
		CreditGrade: rec.CreditGrade,
		RiskLevel:   rec.RiskLevel,
		Bureau:      "Experian",
		ScoreDate:   scoreDate,
		Factors:     CreditFactors(rec.CreditScore),
	}
}
