// Benchmark tool for replaying labelled loan outcomes against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/loans.csv -url http://localhost:8080
//
// The CSV needs a header with these columns (case-insensitive):
//   credit_score, annual_income, loan_amount, employment_years, dti,
//   prior_defaults, defaulted
// dti is a fraction (0.35 = 35%); prior_defaults and defaulted are 0/1.
//
// This tool:
//   1. Reads historical loans with their observed default labels
//   2. Sends each one to POST /v1/applications/score
//   3. Treats DENIED as a predicted default and compares with the label
//   4. Reports precision, recall, F1-score, a confusion matrix and the
//      decision mix per label
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// LoanRecord is one labelled row of the dataset.
type LoanRecord struct {
	Row             int
	CreditScore     float64
	AnnualIncome    float64
	LoanAmount      float64
	EmploymentYears float64
	DTI             float64
	PriorDefaults   bool
	Defaulted       bool
}

// ScoreRequest is the Kestrel scoring request format.
type ScoreRequest struct {
	ApplicationID   string  `json:"applicationId"`
	ApplicantID     string  `json:"applicantId"`
	CreditScore     float64 `json:"creditScore"`
	AnnualIncome    float64 `json:"annualIncome"`
	LoanAmount      float64 `json:"loanAmount"`
	EmploymentYears float64 `json:"employmentYears"`
	DTIRatio        float64 `json:"dtiRatio"`
	PriorDefaults   bool    `json:"previousDefaults"`
}

// ScoreResponse is the part of the Kestrel envelope the benchmark reads.
type ScoreResponse struct {
	Success bool `json:"success"`
	Data    struct {
		EvaluationID        string  `json:"evaluationId"`
		Decision            string  `json:"decision"`
		ApprovalProbability float64 `json:"approvalProbability"`
		ManualReview        bool    `json:"manualReview"`
	} `json:"data"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Default predicted as DENIED
	FalsePositives int64 // Repaid loan predicted as DENIED
	TrueNegatives  int64 // Repaid loan not denied
	FalseNegatives int64 // Default not denied

	TotalProcessed int64
	TotalDefaulted int64
	TotalRepaid    int64
	TotalErrors    int64
	ManualReviews  int64

	ProcessingTimeMs int64

	mu        sync.Mutex
	decisions map[bool]map[string]int64 // label -> decision -> count
}

func (m *Metrics) recordDecision(defaulted bool, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decisions == nil {
		m.decisions = map[bool]map[string]int64{true: {}, false: {}}
	}
	m.decisions[defaulted][decision]++
}

var requiredColumns = []string{
	"credit_score", "annual_income", "loan_amount",
	"employment_years", "dti", "prior_defaults", "defaulted",
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled loans CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum loans to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	defaultsOnly := flag.Bool("defaults-only", false, "Only replay defaulted loans")
	verbose := flag.Bool("verbose", false, "Print each loan result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/loans.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - Labelled Loan Outcomes")
	fmt.Printf("\nCSV File:      %s\n", *csvPath)
	fmt.Printf("Kestrel URL:   %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Printf("Defaults Only: %v\n", *defaultsOnly)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading loans from %s...\n", *csvPath)
	loans, err := readLoansCSV(*csvPath, *limit, *defaultsOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(loans) == 0 {
		fmt.Println("ERROR: no usable rows in CSV")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d loans\n", len(loans))

	defaulted := 0
	for _, l := range loans {
		if l.Defaulted {
			defaulted++
		}
	}
	fmt.Printf("  - Defaulted: %d (%.2f%%)\n", defaulted, 100*float64(defaulted)/float64(len(loans)))
	fmt.Printf("  - Repaid:    %d (%.2f%%)\n", len(loans)-defaulted, 100*float64(len(loans)-defaulted)/float64(len(loans)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(loans, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLoansCSV(path string, limit int, defaultsOnly bool) ([]LoanRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var loans []LoanRecord
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			continue // Skip malformed rows
		}

		loan, err := parseLoan(record, colIndex)
		if err != nil {
			continue
		}
		loan.Row = row

		if defaultsOnly && !loan.Defaulted {
			continue
		}

		loans = append(loans, loan)
		if limit > 0 && len(loans) >= limit {
			break
		}
	}

	return loans, nil
}

func parseLoan(record []string, colIndex map[string]int) (LoanRecord, error) {
	num := func(col string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(record[colIndex[col]]), 64)
	}
	flag := func(col string) bool {
		v := strings.TrimSpace(record[colIndex[col]])
		return v == "1" || strings.EqualFold(v, "true")
	}

	var loan LoanRecord
	var err error
	if loan.CreditScore, err = num("credit_score"); err != nil {
		return loan, err
	}
	if loan.AnnualIncome, err = num("annual_income"); err != nil {
		return loan, err
	}
	if loan.LoanAmount, err = num("loan_amount"); err != nil {
		return loan, err
	}
	if loan.EmploymentYears, err = num("employment_years"); err != nil {
		return loan, err
	}
	if loan.DTI, err = num("dti"); err != nil {
		return loan, err
	}
	loan.PriorDefaults = flag("prior_defaults")
	loan.Defaulted = flag("defaulted")
	return loan, nil
}

func runBenchmark(loans []LoanRecord, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LoanRecord, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for loan := range work {
				start := time.Now()
				result, err := scoreLoan(client, baseURL, tenantID, loan)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: row %d -> %v\n", loan.Row, err)
					}
					continue
				}

				if loan.Defaulted {
					atomic.AddInt64(&metrics.TotalDefaulted, 1)
				} else {
					atomic.AddInt64(&metrics.TotalRepaid, 1)
				}
				if result.Data.ManualReview {
					atomic.AddInt64(&metrics.ManualReviews, 1)
				}
				metrics.recordDecision(loan.Defaulted, result.Data.Decision)

				predicted := result.Data.Decision == "DENIED"
				actual := loan.Defaulted

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok "
					if predicted != actual {
						status = "MISS"
					}
					fmt.Printf("%s row %-6d | Credit: %3.0f | Income: $%10.2f | Loan: $%10.2f | Defaulted: %-5v | Kestrel: %-24s (%.4f)\n",
						status,
						loan.Row,
						loan.CreditScore,
						loan.AnnualIncome,
						loan.LoanAmount,
						loan.Defaulted,
						result.Data.Decision,
						result.Data.ApprovalProbability,
					)
				}
			}
		}()
	}

	for _, loan := range loans {
		work <- loan
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreLoan(client *http.Client, baseURL, tenantID string, loan LoanRecord) (*ScoreResponse, error) {
	req := ScoreRequest{
		ApplicationID:   uuid.New().String(),
		ApplicantID:     fmt.Sprintf("benchmark-%d", loan.Row),
		CreditScore:     loan.CreditScore,
		AnnualIncome:    loan.AnnualIncome,
		LoanAmount:      loan.LoanAmount,
		EmploymentYears: loan.EmploymentYears,
		DTIRatio:        loan.DTI,
		PriorDefaults:   loan.PriorDefaults,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/v1/applications/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("scoring failed for evaluation %s", result.Data.EvaluationID)
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Defaulted:  %d\n", m.TotalDefaulted)
	fmt.Printf("   Total Repaid:     %d\n", m.TotalRepaid)
	fmt.Printf("   Manual Reviews:   %d\n", m.ManualReviews)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   DENIED   NOT DENIED")
	fmt.Printf("   Actual  D   | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           R   | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDECISION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of denials, how many defaulted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of defaults, how many were denied)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nDECISION MIX\n")
	for _, label := range []bool{true, false} {
		name := "Repaid"
		if label {
			name = "Defaulted"
		}
		fmt.Printf("   %s:\n", name)
		for _, d := range []string{"APPROVED", "APPROVED_WITH_CONDITIONS", "PENDING_REVIEW", "DENIED"} {
			fmt.Printf("     %-26s %d\n", d, m.decisions[label][d])
		}
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", tps)
	}

	fmt.Println()
}
