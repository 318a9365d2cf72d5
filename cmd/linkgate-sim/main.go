package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/linkgate/pkg/client"
	"github.com/rmax-ai/linkgate/pkg/simulation"
)

func main() {
	var (
		scenarioFile string
		apiURL       string
		jsonOutput   bool
		outputFile   string
	)

	flag.StringVar(&scenarioFile, "scenario", "", "Path to scenario JSON or YAML file")
	flag.StringVar(&apiURL, "api", client.DefaultEndpoint, "Base URL of linkgate-d API")
	flag.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	flag.StringVar(&outputFile, "out", "", "Write output to file instead of stdout")
	flag.Parse()

	var scenario simulation.Scenario

	if scenarioFile != "" {
		var err error
		scenario, err = loadScenario(scenarioFile)
		if err != nil {
			log.Fatalf("Failed to load scenario: %v", err)
		}
	} else {
		// Default Scenario
		fmt.Fprintln(os.Stderr, "No scenario file provided, running default demo scenario...")
		scenario = simulation.Scenario{
			Name:        "Default Demo",
			Duration:    10 * time.Second,
			Description: "Periodic writers with concurrent readers",
			KeySpace:    32,
			Agents: []simulation.AgentConfig{
				{Name: "writer", Count: 4, Role: simulation.RoleWriter, BatchSize: 8, Behavior: simulation.BehaviorPeriodic, Rate: 20},
				{Name: "reader", Count: 4, Role: simulation.RoleReader, Behavior: simulation.BehaviorPeriodic, Rate: 20},
			},
			Invariants: []simulation.Invariant{
				{Metric: "dedup_violations", Condition: "==", Value: 0},
				{Metric: "snapshot_violations", Condition: "==", Value: 0},
			},
		}
	}

	result := simulation.RunScenario(scenario, apiURL)

	writeReport(result, jsonOutput, outputFile)

	if !result.Success {
		os.Exit(1)
	}
}

func loadScenario(path string) (simulation.Scenario, error) {
	var scenario simulation.Scenario
	data, err := os.ReadFile(path)
	if err != nil {
		return scenario, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &scenario)
	default:
		err = json.Unmarshal(data, &scenario)
	}
	if err != nil {
		return scenario, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return scenario, nil
}

func writeReport(res simulation.SimulationResult, jsonFmt bool, filePath string) {
	var output []byte
	var err error

	if jsonFmt {
		output, err = json.MarshalIndent(res, "", "  ")
	} else {
		var buf bytes.Buffer
		buf.WriteString(fmt.Sprintf("\n--- Simulation Report: %s ---\n", res.ScenarioName))
		buf.WriteString(fmt.Sprintf("Duration: %s\n", res.Duration))
		buf.WriteString(fmt.Sprintf("Requests: %d | Inserts: %d | Reads: %d | Errors: %d\n",
			res.TotalRequests, res.TotalInserts, res.TotalReads, res.TotalErrors))
		buf.WriteString(fmt.Sprintf("Dedup violations: %d | Snapshot violations: %d | Final links: %d\n",
			res.DedupViolations, res.SnapshotViolations, res.FinalLinks))

		if len(res.Invariants) > 0 {
			buf.WriteString("\nInvariants:\n")
			for _, inv := range res.Invariants {
				status := "FAIL"
				if inv.Passed {
					status = "PASS"
				}
				buf.WriteString(fmt.Sprintf("[%s] %s (%s): Expected %s, Got %s\n", status, inv.Metric, inv.Scope, inv.Expected, inv.Actual))
			}
		}
		output = buf.Bytes()
	}

	if err != nil {
		log.Fatalf("Failed to marshal report: %v", err)
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0644); err != nil {
			log.Fatalf("Failed to write report to %s: %v", filePath, err)
		}
		fmt.Printf("Report written to %s\n", filePath)
	} else {
		fmt.Println(string(output))
	}
}
