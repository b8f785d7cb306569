package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"rig-vibration/dataset"
	"rig-vibration/models"
	"rig-vibration/training"
)

// predictResponse mirrors the fields of POST /api/predict this tool prints.
type predictResponse struct {
	ID         string `json:"id"`
	Prediction struct {
		Values []struct {
			Label string  `json:"label"`
			Unit  string  `json:"unit"`
			Value float64 `json:"value"`
		} `json:"values"`
	} `json:"prediction"`
	Assessment struct {
		RiskScore  float64 `json:"riskScore"`
		RiskBand   string  `json:"riskBand"`
		Advisories []struct {
			Message string `json:"message"`
		} `json:"advisories"`
	} `json:"assessment"`
	LatencyMs float64 `json:"latencyMs"`
}

func main() {
	datasetPath := flag.String("dataset", "Data.csv", "CSV of drilling readings to replay")
	layoutName := flag.String("layout", "training", "Column layout of the CSV: training or dashboard")
	endpoint := flag.String("url", "http://localhost:5000/api/predict", "Prediction endpoint")
	limit := flag.Int("rows", 10, "Number of rows to replay")
	delay := flag.Duration("delay", 2*time.Second, "Delay between requests")
	flag.Parse()

	layout, columns := models.LayoutTraining, training.DefaultInputColumns
	if *layoutName == "dashboard" {
		layout, columns = models.LayoutDashboard, training.DashboardInputColumns
	}

	table, err := dataset.LoadCSV(*datasetPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	frame, err := table.Select(columns, nil)
	if err != nil {
		log.Fatalf("dataset does not carry the %s columns: %v", *layoutName, err)
	}
	if _, err := frame.ImputeMean(); err != nil {
		log.Fatalf("failed to impute dataset: %v", err)
	}

	n := min(*limit, len(frame.X))
	fmt.Printf("Replaying %d row(s) to %s\n\n", n, *endpoint)
	for idx, row := range frame.X[:n] {
		fv, err := models.FeatureVectorFromRow(layout, row)
		if err != nil {
			log.Fatalf("row %d: %v", idx, err)
		}
		if err := postReading(*endpoint, idx, fv); err != nil {
			log.Printf("request failed for row %d: %v\n", idx, err)
		}

		if idx < n-1 && *delay > 0 {
			time.Sleep(*delay)
		}
	}
}

func postReading(endpoint string, idx int, fv models.FeatureVector) error {
	fmt.Printf("→ row %d depth=%.1f wob=%.1f rpm=%.0f\n", idx, fv.Depth, fv.WOB, fv.RPM)

	payload, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post prediction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result predictResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode prediction response: %w", err)
	}

	parts := make([]string, len(result.Prediction.Values))
	for i, v := range result.Prediction.Values {
		parts[i] = fmt.Sprintf("%s=%.2f%s", v.Label, v.Value, v.Unit)
	}
	fmt.Printf("   %s risk=%.2f (%s) latency=%.2fms\n",
		strings.Join(parts, " "), result.Assessment.RiskScore, result.Assessment.RiskBand, result.LatencyMs)
	for _, adv := range result.Assessment.Advisories {
		fmt.Printf("   • %s\n", adv.Message)
	}
	return nil
}
