// Benchmark tool for testing Harrier against labeled underwriting data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/cases.csv -url http://localhost:8080
//
// This tool:
//   1. Reads historical case data (with referral labels)
//   2. Sends each case to Harrier for evaluation
//   3. Compares Harrier's verdict (matched rules vs clean) with actual referrals
//   4. Calculates precision, recall, F1-score, and confusion matrix
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
)

// LabeledCase represents a row from the benchmark dataset
type LabeledCase struct {
	CaseID       string
	Age          int
	SumAssured   float64
	ProductCode  string
	Conditions   []string // disclosed condition names
	SmokerStatus string
	WasReferred  bool // ground truth: case went to manual review
}

// EvaluateRequest is the Harrier inline evaluation request format
type EvaluateRequest struct {
	ID                 string              `json:"id"`
	ProductCode        string              `json:"productCode"`
	SumAssured         float64             `json:"sumAssured"`
	Applicant          Applicant           `json:"applicant"`
	MedicalDisclosures []MedicalDisclosure `json:"medicalDisclosures,omitempty"`
}

type Applicant struct {
	Age          int    `json:"age"`
	SmokerStatus string `json:"smokerStatus,omitempty"`
}

type MedicalDisclosure struct {
	ConditionName string `json:"conditionName"`
}

// EvaluateResponse is the Harrier API response format
type EvaluateResponse struct {
	CaseID  string `json:"caseId"`
	Matches []struct {
		RuleID string `json:"ruleId"`
	} `json:"matches"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Referred case triggered rules
	FalsePositives int64 // Clean case triggered rules
	TrueNegatives  int64 // Clean case passed clean
	FalseNegatives int64 // Referred case passed clean (missed referral!)

	TotalProcessed int64
	TotalReferred  int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled case CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum cases to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	referredOnly := flag.Bool("referred-only", false, "Only test referred cases")
	verbose := flag.Bool("verbose", false, "Print each case result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/cases.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        HARRIER BENCHMARK - Underwriting Referral Replay       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Harrier URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Harrier is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Read labeled case data
	fmt.Printf("\nReading case data from %s...\n", *csvPath)
	cases, err := readCaseCSV(*csvPath, *limit, *referredOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d cases\n", len(cases))

	referredCount := 0
	for _, c := range cases {
		if c.WasReferred {
			referredCount++
		}
	}
	fmt.Printf("  - Referred: %d (%.2f%%)\n", referredCount, 100*float64(referredCount)/float64(len(cases)))
	fmt.Printf("  - Clean:    %d (%.2f%%)\n", len(cases)-referredCount, 100*float64(len(cases)-referredCount)/float64(len(cases)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(cases, *baseURL, *tenantID, *workers, *verbose)
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

// readCaseCSV expects columns: case_id, age, sum_assured, product_code,
// conditions (semicolon-separated), smoker_status, referred (0/1).
func readCaseCSV(path string, limit int, referredOnly bool) ([]LabeledCase, error) {
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
		colIndex[strings.ToLower(col)] = i
	}

	var cases []LabeledCase

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		referred := record[colIndex["referred"]] == "1"
		if referredOnly && !referred {
			continue
		}

		age, _ := strconv.Atoi(record[colIndex["age"]])
		sumAssured, _ := strconv.ParseFloat(record[colIndex["sum_assured"]], 64)

		var conditions []string
		for _, c := range strings.Split(record[colIndex["conditions"]], ";") {
			if c = strings.TrimSpace(c); c != "" {
				conditions = append(conditions, c)
			}
		}

		cases = append(cases, LabeledCase{
			CaseID:       record[colIndex["case_id"]],
			Age:          age,
			SumAssured:   sumAssured,
			ProductCode:  record[colIndex["product_code"]],
			Conditions:   conditions,
			SmokerStatus: record[colIndex["smoker_status"]],
			WasReferred:  referred,
		})

		if limit > 0 && len(cases) >= limit {
			break
		}
	}

	return cases, nil
}

func runBenchmark(cases []LabeledCase, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledCase, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := evaluateCase(client, baseURL, tenantID, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.CaseID, err)
					}
					continue
				}

				if c.WasReferred {
					atomic.AddInt64(&metrics.TotalReferred, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				predicted := len(result.Matches) > 0
				actual := c.WasReferred

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-12s | Age: %3d | Sum: %12.2f | Referred: %-5v | Rules matched: %d\n",
						status,
						c.CaseID,
						c.Age,
						c.SumAssured,
						c.WasReferred,
						len(result.Matches),
					)
				}
			}
		}()
	}

	for _, c := range cases {
		work <- c
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateCase(client *http.Client, baseURL, tenantID string, c LabeledCase) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		ID:          c.CaseID,
		ProductCode: c.ProductCode,
		SumAssured:  c.SumAssured,
		Applicant: Applicant{
			Age:          c.Age,
			SmokerStatus: c.SmokerStatus,
		},
	}
	for _, cond := range c.Conditions {
		req.MedicalDisclosures = append(req.MedicalDisclosures, MedicalDisclosure{ConditionName: cond})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
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

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Referred:   %d\n", m.TotalReferred)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  MATCHED      CLEAN")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  R  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

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

	fmt.Printf("\n🎯 REFERRAL METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of matched cases, how many truly needed review)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of referrals, how many did rules catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalReferred > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalReferred) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalReferred) * 100
		fmt.Printf("   Referrals Caught:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalReferred, detectionRate)
		fmt.Printf("   Referrals Missed:  %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalReferred, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f cases/sec\n", cps)
	}

	fmt.Println()
}
