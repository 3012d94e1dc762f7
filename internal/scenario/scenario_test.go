package scenario

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestDecisions_Select(t *testing.T) {
	s := NewDecisions()
	require.Equal(t, 8, s.Len())

	tests := []struct {
		id   string
		want string
	}{
		{"", ApprovedGoodCredit},
		{"polygenelubricants", ApprovedExcellentCredit},
		{"a", ApprovedGoodCredit},
		{"abc", ApprovedWithConditions},
		{"APP-001", DeniedLowCredit},
		{"APP-002", ApprovedWithConditions},
		{"LOAN-2024-000123", PendingDocumentReview},
		{"a0018000001", ErrorScenario},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Select(tt.id).Scenario)
		})
	}
}

func TestDecisions_Idempotent(t *testing.T) {
	s := NewDecisions()
	for _, id := range []string{"APP-001", "123-45-6789", "a0018000001"} {
		first := s.Select(id)
		for i := 0; i < 50; i++ {
			assert.Equal(t, first, s.Select(id))
		}
	}
}

func TestDecisions_ConcurrentSelect(t *testing.T) {
	s := NewDecisions()
	ids := []string{"APP-001", "APP-002", "abc", "LOAN-2024-000123"}
	want := make([]string, len(ids))
	for i, id := range ids {
		want[i] = s.Select(id).Scenario
	}

	const goroutines = 16
	got := make([][]string, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				got[g] = append(got[g], s.Select(id).Scenario)
			}
		}()
	}
	wg.Wait()

	for _, seen := range got {
		assert.Equal(t, want, seen)
	}
}

func TestDecisionTable_Records(t *testing.T) {
	table := DecisionTable()
	require.Len(t, table, 8)

	errRec := table[7]
	assert.True(t, errRec.Error)
	assert.Equal(t, "DECISION_ENGINE_ERROR", errRec.ErrorCode)

	pending := table[6]
	assert.Equal(t, domain.DecisionPendingReview, pending.Decision)
	assert.Len(t, pending.PendingItems, 3)

	for _, rec := range table[:7] {
		assert.False(t, rec.Error, rec.Scenario)
		assert.NotEmpty(t, rec.ReasonCodes, rec.Scenario)
		if rec.Decision == domain.DecisionDenied {
			assert.Zero(t, rec.ApprovedAmount, rec.Scenario)
			assert.NotEmpty(t, rec.DenialReasons, rec.Scenario)
		}
	}
}

func TestDecisionTable_FreshCopy(t *testing.T) {
	a := DecisionTable()
	a[0].CreditScore = 1
	a[0].ReasonCodes[0] = "MUTATED"

	b := DecisionTable()
	assert.Equal(t, 780, b[0].CreditScore)
	assert.Equal(t, "EXCELLENT_CREDIT", b[0].ReasonCodes[0])
}

func TestIncomes_Select(t *testing.T) {
	s := NewIncomes()
	require.Equal(t, 4, s.Len())

	tests := []struct {
		id   string
		want string
	}{
		{"", IncomeMedium},
		{"polygenelubricants", IncomeHigh},
		{"a", IncomeMedium},
		{"abc", IncomeLow},
		{"APP-001", IncomeUnverifiable},
		{"LOAN-2024-000123", IncomeLow},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.id, func(t *testing.T) {
			got := s.Select(tt.id)
			assert.Equal(t, tt.want, got.Profile)
		})
	}

	unverifiable := s.Select("APP-001")
	assert.False(t, unverifiable.Verified())
	assert.Len(t, unverifiable.Errors, 2)
	assert.True(t, s.Select("").Verified())
}

func TestNewSelector_AlternateTable(t *testing.T) {
	s, err := NewSelector([]string{"red", "green", "blue"}, 2)
	require.NoError(t, err)

	assert.Equal(t, "blue", s.Select(""))
	// "polygenelubricants" hashes to math.MinInt32: 2147483648 % 3 == 2
	assert.Equal(t, "blue", s.Select("polygenelubricants"))
	assert.Equal(t, "green", s.Select("a"))
}

func TestNewSelector_Errors(t *testing.T) {
	_, err := NewSelector([]int{}, 0)
	assert.Error(t, err)

	_, err = NewSelector([]int{1, 2}, 2)
	assert.Error(t, err)

	_, err = NewSelector([]int{1, 2}, -1)
	assert.Error(t, err)
}

func TestNewSelector_CopiesTable(t *testing.T) {
	table := []string{"x", "y"}
	s, err := NewSelector(table, 0)
	require.NoError(t, err)

	table[0] = "mutated"
	assert.Equal(t, "x", s.Select(""))
}

func TestCreditGrade(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{850, "A"}, {750, "A"}, {749, "B"}, {700, "B"},
		{699, "C"}, {650, "C"}, {649, "D"}, {600, "D"}, {599, "E"}, {300, "E"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CreditGrade(tt.score), "score %v", tt.score)
	}
}

func TestCreditEvaluation(t *testing.T) {
	table := DecisionTable()

	ce := CreditEvaluation(table[0], "2026-01-02")
	assert.Equal(t, 780, ce.CreditScore)
	assert.Equal(t, "Experian", ce.Bureau)
	assert.Equal(t, "2026-01-02", ce.ScoreDate)
	assert.Len(t, ce.Factors, 3)

	assert.Equal(t, []string{"Good payment history", "Moderate credit utilization"}, CreditFactors(680))
	assert.Equal(t, []string{"Fair payment history", "Some recent inquiries"}, CreditFactors(650))
}
