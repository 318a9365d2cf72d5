package simulation

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmax-ai/linkgate/pkg/client"
)

const defaultKeySpace = 64

type pair struct {
	from, to uint64
}

// ledger remembers every (pair, id) association any agent has observed.
// A pair that maps to two ids, or an id that maps to two pairs, is a dedup violation.
type ledger struct {
	mu     sync.Mutex
	byPair map[pair]uint64
	byID   map[uint64]pair
}

func newLedger() *ledger {
	return &ledger{
		byPair: make(map[pair]uint64),
		byID:   make(map[uint64]pair),
	}
}

func (l *ledger) observe(link client.Link) bool {
	p := pair{link.FromID, link.ToID}
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.byPair[p]; ok && id != link.ID {
		return false
	}
	if prev, ok := l.byID[link.ID]; ok && prev != p {
		return false
	}
	l.byPair[p] = link.ID
	l.byID[link.ID] = p
	return true
}

func RunScenario(s Scenario, apiURL string) SimulationResult {
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}
	if s.KeySpace == 0 {
		s.KeySpace = defaultKeySpace
	}

	log.Printf("Running Scenario: %s (Seed: %d)", s.Name, s.Seed)

	ctx, cancel := context.WithTimeout(context.Background(), s.Duration)
	defer cancel()

	res := SimulationResult{
		ScenarioName: s.Name,
		Duration:     s.Duration,
		AgentStats:   make(map[string]*AgentStats),
	}

	// Initialize Stats Map
	var statsMutex sync.Mutex
	getAgentStats := func(name string) *AgentStats {
		statsMutex.Lock()
		defer statsMutex.Unlock()
		if _, ok := res.AgentStats[name]; !ok {
			res.AgentStats[name] = &AgentStats{}
		}
		return res.AgentStats[name]
	}

	api := client.NewClient(apiURL, client.WithRetries(0, nil))
	seen := newLedger()
	var wg sync.WaitGroup

	// Start Agents
	for agentIdx, agentCfg := range s.Agents {
		for i := 0; i < agentCfg.Count; i++ {
			wg.Add(1)
			agentID := fmt.Sprintf("%s-%d", agentCfg.Name, i)
			agentSeed := s.Seed + int64(agentIdx*1000) + int64(i)
			stats := getAgentStats(agentCfg.Name) // Group stats by Agent Config Name

			go func(cfg AgentConfig, aID string, seed int64, st *AgentStats) {
				defer wg.Done()
				runAgent(ctx, api, aID, cfg, s.KeySpace, seed, seen, &res, st)
			}(agentCfg, agentID, agentSeed, stats)
		}
	}

	wg.Wait()

	// Final consistency pass over the whole store.
	finalCtx, finalCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finalCancel()
	if ls, err := api.Links(finalCtx); err == nil {
		res.FinalLinks = len(ls)
		if !checkSnapshot(ls, seen) {
			atomic.AddUint64(&res.SnapshotViolations, 1)
		}
	} else {
		log.Printf("Final read failed: %v", err)
		atomic.AddUint64(&res.TotalErrors, 1)
	}

	// Evaluate Invariants
	evaluateInvariants(&res, s.Invariants)

	// Determine overall success
	res.Success = true
	for _, inv := range res.Invariants {
		if !inv.Passed {
			res.Success = false
			break
		}
	}

	return res
}

// checkSnapshot reports whether one enumeration is internally consistent and
// agrees with every association observed so far.
func checkSnapshot(ls []client.Link, seen *ledger) bool {
	ok := true
	ids := make(map[uint64]struct{}, len(ls))
	pairs := make(map[pair]struct{}, len(ls))
	for _, l := range ls {
		p := pair{l.FromID, l.ToID}
		if _, dup := ids[l.ID]; dup {
			ok = false
		}
		if _, dup := pairs[p]; dup {
			ok = false
		}
		ids[l.ID] = struct{}{}
		pairs[p] = struct{}{}
		if !seen.observe(l) {
			ok = false
		}
	}
	return ok
}

func runAgent(ctx context.Context, api *client.Client, agentID string, cfg AgentConfig, keySpace uint64, seed int64, seen *ledger, global *SimulationResult, stats *AgentStats) {
	rng := rand.New(rand.NewSource(seed))
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	lastSize := 0

	// Helper to track request
	track := func(err error, violation bool, snapshot bool) {
		atomic.AddUint64(&global.TotalRequests, 1)
		atomic.AddUint64(&stats.Requests, 1)
		if err != nil {
			atomic.AddUint64(&global.TotalErrors, 1)
			atomic.AddUint64(&stats.Errors, 1)
			return
		}
		if violation {
			atomic.AddUint64(&stats.Violations, 1)
			if snapshot {
				atomic.AddUint64(&global.SnapshotViolations, 1)
			} else {
				atomic.AddUint64(&global.DedupViolations, 1)
			}
		}
	}

	write := func() {
		batch := make([]client.InputLink, batchSize)
		for i := range batch {
			batch[i] = client.InputLink{
				FromID: uint64(rng.Int63n(int64(keySpace))),
				ToID:   uint64(rng.Int63n(int64(keySpace))),
			}
		}
		ls, err := api.InsertLinks(ctx, batch)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[%s] insert failed: %v", agentID, err)
				track(err, false, false)
			}
			return
		}
		atomic.AddUint64(&global.TotalInserts, 1)
		atomic.AddUint64(&stats.Inserts, 1)

		violation := len(ls) != len(batch)
		for i, l := range ls {
			if i < len(batch) && (l.FromID != batch[i].FromID || l.ToID != batch[i].ToID) {
				violation = true
			}
			if !seen.observe(l) {
				violation = true
			}
		}
		track(nil, violation, false)
	}

	read := func() {
		ls, err := api.Links(ctx)
		if err != nil {
			if ctx.Err() == nil {
				track(err, false, true)
			}
			return
		}
		atomic.AddUint64(&global.TotalReads, 1)
		atomic.AddUint64(&stats.Reads, 1)

		// The store never shrinks, so neither may successive snapshots.
		violation := len(ls) < lastSize || !checkSnapshot(ls, seen)
		lastSize = len(ls)
		track(nil, violation, true)
	}

	action := write
	if cfg.Role == RoleReader {
		action = read
	}

	switch cfg.Behavior {
	case BehaviorGreedy:
		for {
			select {
			case <-ctx.Done():
				return
			default:
				action()
			}
		}
	case BehaviorPoisson:
		lambda := float64(cfg.Rate)
		if lambda <= 0 {
			lambda = 1
		}
		for {
			interval := -math.Log(1-rng.Float64()) / lambda
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(interval * float64(time.Second))):
				action()
			}
		}
	case BehaviorBursty:
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for k := 0; k < cfg.Burst; k++ {
					action()
				}
			}
		}
	case BehaviorPeriodic:
		fallthrough
	default:
		interval := 10 * time.Millisecond
		if cfg.Rate > 0 {
			interval = time.Second / time.Duration(cfg.Rate)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cfg.Jitter > 0 {
					time.Sleep(time.Duration(rng.Int63n(int64(cfg.Jitter))))
				}
				action()
			}
		}
	}
}

func evaluateInvariants(res *SimulationResult, invariants []Invariant) {
	for _, inv := range invariants {
		var stats *AgentStats
		if inv.Scope == "global" || inv.Scope == "" {
			stats = &AgentStats{
				Requests:   atomic.LoadUint64(&res.TotalRequests),
				Errors:     atomic.LoadUint64(&res.TotalErrors),
				Violations: atomic.LoadUint64(&res.DedupViolations) + atomic.LoadUint64(&res.SnapshotViolations),
			}
		} else {
			s, ok := res.AgentStats[inv.Scope]
			if !ok {
				// Agent not found
				res.Invariants = append(res.Invariants, InvariantResult{
					Metric: inv.Metric, Scope: inv.Scope, Expected: fmt.Sprintf("%s %.2f", inv.Condition, inv.Value), Actual: "N/A", Passed: false,
				})
				continue
			}
			stats = &AgentStats{
				Requests:   atomic.LoadUint64(&s.Requests),
				Errors:     atomic.LoadUint64(&s.Errors),
				Violations: atomic.LoadUint64(&s.Violations),
			}
		}

		var actual float64
		switch inv.Metric {
		case "error_rate":
			if stats.Requests > 0 {
				actual = float64(stats.Errors) / float64(stats.Requests)
			}
		case "violations":
			actual = float64(stats.Violations)
		case "dedup_violations":
			actual = float64(atomic.LoadUint64(&res.DedupViolations))
		case "snapshot_violations":
			actual = float64(atomic.LoadUint64(&res.SnapshotViolations))
		case "requests":
			actual = float64(stats.Requests)
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		res.Invariants = append(res.Invariants, InvariantResult{
			Metric:   inv.Metric,
			Scope:    inv.Scope,
			Expected: fmt.Sprintf("%s %.2f", inv.Condition, inv.Value),
			Actual:   fmt.Sprintf("%.4f", actual),
			Passed:   passed,
		})
	}
}
