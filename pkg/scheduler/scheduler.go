// Package scheduler tracks per-node run status over a dependency graph and
// answers the single question the orchestrator keeps asking: which nodes are
// eligible to run right now.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/lariat-run/lariat/pkg/graph"
	"github.com/lariat-run/lariat/pkg/models"
)

// Scheduler wraps an immutable dependency graph with mutable per-node
// status. It is the single source of truth for readiness: a node is handed
// out at most once, and a node with a failed or skipped dependency is never
// handed out at all.
type Scheduler struct {
	graph *graph.DependencyGraph

	mu     sync.Mutex
	status map[string]models.NodeRunStatus
}

// New creates a scheduler with every node pending.
func New(g *graph.DependencyGraph) *Scheduler {
	status := make(map[string]models.NodeRunStatus, g.Len())
	for _, id := range g.Nodes() {
		status[id] = models.NodeStatusPending
	}

	return &Scheduler{graph: g, status: status}
}

// Graph returns the underlying dependency graph.
func (s *Scheduler) Graph() *graph.DependencyGraph {
	return s.graph
}

// UpdateStatus records a node status transition.
func (s *Scheduler) UpdateStatus(nodeID string, status models.NodeRunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.status[nodeID]; !ok {
		return fmt.Errorf("scheduler: %w: %s", graph.ErrUnknownNode, nodeID)
	}

	s.status[nodeID] = status

	return nil
}

// Status returns the current status of a node.
func (s *Scheduler) Status(nodeID string) (models.NodeRunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.status[nodeID]

	return status, ok
}

// ReadyNodes returns every node whose dependencies have all completed and
// which has not been handed out before. Returned nodes are transitioned to
// ready, so repeated calls never yield the same node twice. A skipped or
// failed dependency keeps a node out of the ready set permanently; skip
// propagation is handled separately via MarkSkippedFrom.
func (s *Scheduler) ReadyNodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := make(map[string]struct{})

	for id, status := range s.status {
		if status == models.NodeStatusCompleted {
			completed[id] = struct{}{}
		}
	}

	ready := make([]string, 0)

	for _, id := range s.graph.ReadyNodes(completed) {
		if s.status[id] != models.NodeStatusPending {
			continue
		}

		s.status[id] = models.NodeStatusReady
		ready = append(ready, id)
	}

	return ready
}

// MarkSkippedFrom transitively marks every downstream dependent of the given
// node as skipped, leaving already terminal nodes untouched. It returns the
// ids that were newly skipped.
func (s *Scheduler) MarkSkippedFrom(nodeID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := make([]string, 0)

	for _, dep := range s.graph.TransitiveDependents(nodeID) {
		status := s.status[dep]
		if status.IsTerminal() || status == models.NodeStatusRunning {
			continue
		}

		s.status[dep] = models.NodeStatusSkipped
		skipped = append(skipped, dep)
	}

	return skipped
}

// Running returns how many nodes are currently running.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0

	for _, status := range s.status {
		if status == models.NodeStatusRunning || status == models.NodeStatusReady {
			count++
		}
	}

	return count
}

// Drained reports whether every node has reached a terminal status.
func (s *Scheduler) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, status := range s.status {
		if !status.IsTerminal() {
			return false
		}
	}

	return true
}

// Stranded returns the non-terminal nodes left behind when nothing is ready
// and nothing is running. Empty on a validated acyclic graph with correct
// skip propagation; the orchestrator checks it defensively.
func (s *Scheduler) Stranded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	stranded := make([]string, 0)

	for _, id := range s.graph.Nodes() {
		if !s.status[id].IsTerminal() {
			stranded = append(stranded, id)
		}
	}

	return stranded
}

// Snapshot returns a copy of the current status map.
func (s *Scheduler) Snapshot() map[string]models.NodeRunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.NodeRunStatus, len(s.status))
	for id, status := range s.status {
		out[id] = status
	}

	return out
}
