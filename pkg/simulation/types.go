package simulation

import (
	"time"
)

// SimulationResult captures the final state of the simulation for reporting
type SimulationResult struct {
	ScenarioName       string                 `json:"scenario_name"`
	Duration           time.Duration          `json:"duration"`
	TotalRequests      uint64                 `json:"total_requests"`
	TotalInserts       uint64                 `json:"total_inserts"`
	TotalReads         uint64                 `json:"total_reads"`
	TotalErrors        uint64                 `json:"total_errors"`
	DedupViolations    uint64                 `json:"dedup_violations"`
	SnapshotViolations uint64                 `json:"snapshot_violations"`
	FinalLinks         int                    `json:"final_links"`
	AgentStats         map[string]*AgentStats `json:"agent_stats"`
	Invariants         []InvariantResult      `json:"invariants"`
	Success            bool                   `json:"success"`
}

type AgentStats struct {
	Requests   uint64 `json:"requests"`
	Inserts    uint64 `json:"inserts"`
	Reads      uint64 `json:"reads"`
	Errors     uint64 `json:"errors"`
	Violations uint64 `json:"violations"`
}

type InvariantResult struct {
	Metric   string `json:"metric"`
	Scope    string `json:"scope"`
	Expected string `json:"expected"` // e.g. "< 0.01"
	Actual   string `json:"actual"`   // e.g. "0.0000"
	Passed   bool   `json:"passed"`
}

type Scenario struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Seed        int64         `json:"seed" yaml:"seed"` // Deterministic seed
	// KeySpace bounds the ids writers draw from, so pairs repeat and dedup is exercised.
	KeySpace   uint64        `json:"key_space" yaml:"key_space"`
	Agents     []AgentConfig `json:"agents" yaml:"agents"`
	Invariants []Invariant   `json:"invariants,omitempty" yaml:"invariants,omitempty"`
}

type Invariant struct {
	Metric    string  `json:"metric" yaml:"metric"`       // error_rate, dedup_violations, snapshot_violations
	Condition string  `json:"condition" yaml:"condition"` // e.g., ">", "<", ">=", "<=", "=="
	Value     float64 `json:"value" yaml:"value"`
	Scope     string  `json:"scope" yaml:"scope"` // "global" or specific agent name
}

type AgentConfig struct {
	Name      string        `json:"name" yaml:"name"`
	Count     int           `json:"count" yaml:"count"`
	Role      Role          `json:"role" yaml:"role"`
	BatchSize int           `json:"batch_size" yaml:"batch_size"` // writers only, default 1
	Behavior  BehaviorType  `json:"behavior" yaml:"behavior"`
	Rate      int           `json:"rate" yaml:"rate"` // Requests per second
	Burst     int           `json:"burst" yaml:"burst"`
	Jitter    time.Duration `json:"jitter" yaml:"jitter"`
}

type Role string

const (
	RoleWriter Role = "writer"
	RoleReader Role = "reader"
)

type BehaviorType string

const (
	BehaviorPeriodic BehaviorType = "periodic"
	BehaviorGreedy   BehaviorType = "greedy"
	BehaviorPoisson  BehaviorType = "poisson"
	BehaviorBursty   BehaviorType = "bursty"
)
