//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel lending decision engine.
//
// These tests verify the COMPLETE underwriting pipeline against a running server:
//
//	Application → Validation → Logistic Model → Pricing → Policy Rules → Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. APPLICATION: Credit score, income, loan amount, employment, DTI and prior defaults.
//
// 2. MODEL: Features are normalized to [0,1] and combined by a fixed logistic
// regression into an approval probability.
//
// 3. DECISION: The probability is bucketed:
//   - p >= 0.75 → APPROVED
//   - p >= 0.50 → APPROVED_WITH_CONDITIONS
//   - p >= 0.30 → PENDING_REVIEW
//   - otherwise → DENIED
//
// 4. POLICY RULES: CEL expressions with bands layered on top of the model.
// A .review or .fail outcome sets manualReview and adds policyReasons; the
// model decision is never rewritten.
//
// The server must start with seed_defaults enabled (the default) so the
// builtin rules below are present:
//
// | Rule ID              | What It Checks                      | Review/Fail When         |
// |----------------------|-------------------------------------|--------------------------|
// | max-dti              | Debt-to-income ratio                | dti >= 0.43              |
// | application-velocity | Applications per applicant per day  | count >= 4               |
// | default-exposure     | Prior defaults with large exposure  | loan > 30% of income     |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// ScoreRequest is the application sent to POST /v1/applications/score
type ScoreRequest struct {
	ApplicationID   string   `json:"applicationId,omitempty"`
	ApplicantID     string   `json:"applicantId,omitempty"`
	CreditScore     float64  `json:"creditScore"`
	AnnualIncome    float64  `json:"annualIncome"`
	LoanAmount      float64  `json:"loanAmount"`
	EmploymentYears *float64 `json:"employmentYears,omitempty"`
	DTIRatio        *float64 `json:"dtiRatio,omitempty"`
	PriorDefaults   bool     `json:"previousDefaults"`
}

// Envelope wraps every /v1 response
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorCode"`
	Metadata  *struct {
		RequestID    string `json:"requestId"`
		ModelVersion string `json:"modelVersion"`
	} `json:"metadata"`
}

// ScoreResponse is the decision inside the envelope
type ScoreResponse struct {
	EvaluationID        string   `json:"evaluationId"`
	ApplicationID       string   `json:"applicationId"`
	Decision            string   `json:"decision"`
	ApprovalProbability float64  `json:"approvalProbability"`
	ApprovedAmount      float64  `json:"approvedAmount"`
	InterestRate        float64  `json:"interestRate"`
	Term                int      `json:"term"`
	MonthlyPayment      float64  `json:"monthlyPayment"`
	RiskLevel           string   `json:"riskLevel"`
	Conditions          []string `json:"conditions"`
	DenialReasons       []string `json:"denialReasons"`
	ManualReview        bool     `json:"manualReview"`
	PolicyReasons       []string `json:"policyReasons"`
	Metadata            struct {
		TraceID        string `json:"traceId"`
		RulesEvaluated int    `json:"rulesEvaluated"`
		EngineVersion  string `json:"engineVersion"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func f64(v float64) *float64 { return &v }

// uniqueApplicant keeps repeated runs clear of the velocity rule.
func uniqueApplicant(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func call(t *testing.T, config TestConfig, method, path, tenantID string, body any) (int, Envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		httpReq.Header.Set("X-Tenant-ID", tenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}
	return resp.StatusCode, env
}

func score(t *testing.T, config TestConfig, req ScoreRequest) ScoreResponse {
	t.Helper()

	status, env := call(t, config, http.MethodPost, "/v1/applications/score", config.TenantID, req)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s (%s)", status, env.ErrorCode, env.Message)
	}

	var result ScoreResponse
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("Failed to unmarshal decision: %v", err)
	}
	return result
}

// ============================================================================
// SCENARIO 1: Strong Applicant (Clean Approval)
// ============================================================================

func TestStrongApplicant_Approved(t *testing.T) {
	/*
	   SCENARIO: 780 credit, $120k income, $20k loan, 8 years employed, 20% DTI

	   EXPECTED BEHAVIOR:
	   - high probability → APPROVED, LOW risk, full amount
	   - no policy rule above .pass
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		ApplicantID:     uniqueApplicant("strong"),
		CreditScore:     780,
		AnnualIncome:    120000,
		LoanAmount:      20000,
		EmploymentYears: f64(8),
		DTIRatio:        f64(0.2),
	})

	if result.Decision != "APPROVED" {
		t.Errorf("Expected APPROVED, got %s", result.Decision)
	}
	if result.RiskLevel != "LOW" {
		t.Errorf("Expected LOW risk, got %s", result.RiskLevel)
	}
	if result.ApprovedAmount != 20000 {
		t.Errorf("Expected full amount approved, got %.2f", result.ApprovedAmount)
	}
	if result.ManualReview {
		t.Errorf("Expected no manual review, got %v", result.PolicyReasons)
	}
	if result.Metadata.RulesEvaluated != 3 {
		t.Errorf("Expected the 3 builtin rules, got %d", result.Metadata.RulesEvaluated)
	}

	t.Logf("Strong applicant approved: p=%.4f rate=%.2f payment=%.2f",
		result.ApprovalProbability, result.InterestRate, result.MonthlyPayment)
}

// ============================================================================
// SCENARIO 2: Weak Applicant (Denied With Reasons)
// ============================================================================

func TestWeakApplicant_DeniedWithReasons(t *testing.T) {
	/*
	   SCENARIO: 580 credit, prior defaults, 55% DTI, six months employed

	   EXPECTED BEHAVIOR:
	   - model denies, nothing is approved
	   - denial reasons name the low credit score and the prior defaults
	   - max-dti fails (dti >= 0.5) → manual review flagged alongside
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		ApplicantID:     uniqueApplicant("weak"),
		CreditScore:     580,
		AnnualIncome:    40000,
		LoanAmount:      30000,
		EmploymentYears: f64(0.5),
		DTIRatio:        f64(0.55),
		PriorDefaults:   true,
	})

	if result.Decision != "DENIED" {
		t.Fatalf("Expected DENIED, got %s", result.Decision)
	}
	if result.ApprovedAmount != 0 || result.MonthlyPayment != 0 {
		t.Errorf("Expected nothing approved, got %.2f / %.2f", result.ApprovedAmount, result.MonthlyPayment)
	}
	if len(result.DenialReasons) == 0 {
		t.Error("Expected denial reasons")
	}
	if !result.ManualReview {
		t.Error("Expected max-dti to flag manual review")
	}
}

// ============================================================================
// SCENARIO 3: Policy Review Without Changing The Decision
// ============================================================================

func TestHighDTI_PolicyReview(t *testing.T) {
	/*
	   SCENARIO: Strong applicant at 45% DTI

	   EXPECTED BEHAVIOR:
	   - the model still approves (DTI weight is small)
	   - max-dti lands in the .review band → manualReview with "DTI above 43%"
	*/
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		ApplicantID:     uniqueApplicant("dti"),
		CreditScore:     780,
		AnnualIncome:    120000,
		LoanAmount:      20000,
		EmploymentYears: f64(8),
		DTIRatio:        f64(0.45),
	})

	if result.Decision != "APPROVED" {
		t.Errorf("Expected model decision to stay APPROVED, got %s", result.Decision)
	}
	if !result.ManualReview {
		t.Fatal("Expected manual review")
	}
	found := false
	for _, r := range result.PolicyReasons {
		if r == "DTI above 43%" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected DTI policy reason, got %v", result.PolicyReasons)
	}
}

// ============================================================================
// SCENARIO 4: Application Velocity
// ============================================================================

func TestRepeatedApplications_VelocityReview(t *testing.T) {
	/*
	   SCENARIO: The same applicant applies five times in a row

	   EXPECTED BEHAVIOR:
	   - the velocity rule counts stored applications in the last 24h
	   - once 4 prior applications exist, the rule lands in .review
	*/
	config := getTestConfig()
	applicant := uniqueApplicant("velocity")

	var last ScoreResponse
	for i := 0; i < 5; i++ {
		last = score(t, config, ScoreRequest{
			ApplicantID:     applicant,
			CreditScore:     780,
			AnnualIncome:    120000,
			LoanAmount:      20000,
			EmploymentYears: f64(8),
			DTIRatio:        f64(0.2),
		})
	}

	if !last.ManualReview {
		t.Errorf("Expected velocity review on the fifth application, got %+v", last)
	}
}

// ============================================================================
// SCENARIO 5: Evaluation Retrieval And Tenant Isolation
// ============================================================================

func TestEvaluationRetrieval_TenantIsolated(t *testing.T) {
	config := getTestConfig()

	result := score(t, config, ScoreRequest{
		ApplicantID:     uniqueApplicant("lookup"),
		CreditScore:     700,
		AnnualIncome:    60000,
		LoanAmount:      15000,
		EmploymentYears: f64(3),
	})

	status, env := call(t, config, http.MethodGet, "/v1/evaluations/"+result.EvaluationID, config.TenantID, nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("Expected stored evaluation, got %d: %s", status, env.Message)
	}

	status, env = call(t, config, http.MethodGet, "/v1/evaluations/"+result.EvaluationID, "other-tenant", nil)
	if status != http.StatusNotFound || env.ErrorCode != "NOT_FOUND" {
		t.Errorf("Expected 404 NOT_FOUND for another tenant, got %d %s", status, env.ErrorCode)
	}
}

// ============================================================================
// SCENARIO 6: Validation Errors
// ============================================================================

func TestMissingLoanAmount_Error(t *testing.T) {
	config := getTestConfig()

	status, env := call(t, config, http.MethodPost, "/v1/applications/score", config.TenantID, ScoreRequest{
		CreditScore:  700,
		AnnualIncome: 50000,
	})

	if status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", status)
	}
	if env.Success || env.ErrorCode != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %+v", env)
	}
}

func TestCreditScoreOutOfRange_Error(t *testing.T) {
	config := getTestConfig()

	status, env := call(t, config, http.MethodPost, "/v1/applications/score", config.TenantID, ScoreRequest{
		CreditScore:  900,
		AnnualIncome: 50000,
		LoanAmount:   10000,
	})

	if status != http.StatusBadRequest || env.ErrorCode != "VALIDATION_ERROR" {
		t.Errorf("Expected 400 VALIDATION_ERROR, got %d %s", status, env.ErrorCode)
	}
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig()

	status, env := call(t, config, http.MethodPost, "/v1/applications/score", "", ScoreRequest{
		CreditScore:  700,
		AnnualIncome: 50000,
		LoanAmount:   10000,
	})

	if status != http.StatusBadRequest || env.ErrorCode != "MISSING_TENANT" {
		t.Errorf("Expected 400 MISSING_TENANT, got %d %s", status, env.ErrorCode)
	}
}

// ============================================================================
// SCENARIO 7: Analytics Endpoints
// ============================================================================

func TestIncomeAnalysis_StableIncome(t *testing.T) {
	/*
	   SCENARIO: Six identical monthly deposits of $5,250

	   EXPECTED BEHAVIOR:
	   - zero variance, no fraud indicators → APPROVE with high stability
	*/
	config := getTestConfig()

	status, env := call(t, config, http.MethodPost, "/v1/income/analyze", config.TenantID, map[string]any{
		"applicantId":     uniqueApplicant("income"),
		"monthlyIncomes":  []float64{5250, 5250, 5250, 5250, 5250, 5250},
		"depositPatterns": []float64{5250, 5250, 5250, 5250, 5250, 5250},
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, env.Message)
	}

	var analysis struct {
		ID     string `json:"id"`
		Result struct {
			Recommendation string `json:"recommendation"`
		} `json:"result"`
	}
	if err := json.Unmarshal(env.Data, &analysis); err != nil {
		t.Fatalf("Failed to unmarshal analysis: %v", err)
	}
	if analysis.Result.Recommendation != "APPROVE" {
		t.Errorf("Expected APPROVE, got %s", analysis.Result.Recommendation)
	}
}

func TestPaymentCalculation(t *testing.T) {
	/*
	   SCENARIO: $20,000 over 24 months at 3%

	   EXPECTED BEHAVIOR:
	   - standard annuity payment: 20000 * r / (1 - (1+r)^-24), r = 0.0025 → 859.62
	*/
	config := getTestConfig()

	status, env := call(t, config, http.MethodPost, "/v1/payments/calculate", config.TenantID, map[string]any{
		"principal": 20000,
		"rate":      3,
		"months":    24,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, env.Message)
	}

	var result struct {
		MonthlyPayment float64 `json:"monthlyPayment"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("Failed to unmarshal payment: %v", err)
	}
	if result.MonthlyPayment < 859 || result.MonthlyPayment > 860 {
		t.Errorf("Expected payment near 859.62, got %.2f", result.MonthlyPayment)
	}
}

// ============================================================================
// SCENARIO 8: Response Metadata
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig()

	status, env := call(t, config, http.MethodPost, "/v1/applications/score", config.TenantID, ScoreRequest{
		ApplicantID:  uniqueApplicant("meta"),
		CreditScore:  720,
		AnnualIncome: 80000,
		LoanAmount:   25000,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if env.Metadata == nil || env.Metadata.RequestID == "" {
		t.Errorf("Expected request ID in envelope metadata, got %+v", env.Metadata)
	}

	var result ScoreResponse
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("Failed to unmarshal decision: %v", err)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Expected trace ID in evaluation metadata")
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Expected engine version")
	}
}
