package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the engine's health and learning report",
	Long:  `Fetch the health and learning report from a running engine.`,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("api-url", "http://localhost:8080", "API server URL")
	reportCmd.Flags().String("format", "table", "Output format (table, json, yaml)")
}

// engineReport mirrors the /api/v1/report response body.
type engineReport struct {
	Healing struct {
		Timestamp            time.Time `json:"timestamp"`
		TotalFailuresHandled int       `json:"total_failures_handled"`
		RecentFailures       int       `json:"recent_failures"`
		OverallSuccessRate   float64   `json:"overall_success_rate"`
		QTableCellsVisited   int       `json:"q_table_cells_visited"`
		QTableSize           int       `json:"q_table_size"`
		ExplorationRate      float64   `json:"exploration_rate"`
		Status               string    `json:"system_status"`
	} `json:"healing"`
	Learning struct {
		TotalExperiences      int     `json:"total_experiences"`
		LearningEffectiveness float64 `json:"learning_effectiveness"`
		TotalPatterns         int     `json:"total_patterns"`
		HighConfidencePattern int     `json:"high_confidence_patterns"`
		KnowledgeEntries      int     `json:"knowledge_entries"`
		RecentAdaptations     int     `json:"recent_adaptations"`
		Status                string  `json:"system_status"`
	} `json:"learning"`
}

func runReport(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	format, _ := cmd.Flags().GetString("format")

	report, err := fetchReport(apiURL)
	if err != nil {
		return fmt.Errorf("failed to fetch report: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(report)
	default:
		printReportTable(report)
		return nil
	}
}

func fetchReport(apiURL string) (*engineReport, error) {
	resp, err := http.Get(apiURL + "/api/v1/report")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool         `json:"success"`
		Data    engineReport `json:"data"`
		Error   string       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, fmt.Errorf("API error: %s", envelope.Error)
	}
	return &envelope.Data, nil
}

func printReportTable(r *engineReport) {
	fmt.Printf("Naoru Engine Report (%s)\n\n", humanize.Time(r.Healing.Timestamp))

	fmt.Printf("Healing [%s]\n", r.Healing.Status)
	fmt.Printf("  Failures handled : %s\n", humanize.Comma(int64(r.Healing.TotalFailuresHandled)))
	fmt.Printf("  Last hour        : %d\n", r.Healing.RecentFailures)
	fmt.Printf("  Success rate     : %.1f%%\n", 100*r.Healing.OverallSuccessRate)
	fmt.Printf("  Policy coverage  : %d/%d cells\n", r.Healing.QTableCellsVisited, r.Healing.QTableSize)
	fmt.Printf("  Exploration rate : %.3f\n\n", r.Healing.ExplorationRate)

	fmt.Printf("Learning [%s]\n", r.Learning.Status)
	fmt.Printf("  Experiences      : %s\n", humanize.Comma(int64(r.Learning.TotalExperiences)))
	fmt.Printf("  Effectiveness    : %.1f%%\n", 100*r.Learning.LearningEffectiveness)
	fmt.Printf("  Patterns         : %d (%d high confidence)\n",
		r.Learning.TotalPatterns, r.Learning.HighConfidencePattern)
	fmt.Printf("  Knowledge        : %d entries\n", r.Learning.KnowledgeEntries)
	fmt.Printf("  Adaptations      : %d recorded\n", r.Learning.RecentAdaptations)
}
