package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/domain"
)

const weightSumEpsilon = 1e-6

type PriorityScore struct {
	ProcessInstanceID string
	Score             float64
	Urgency           domain.UrgencyLevel
	OnCriticalPath    bool

	DueDateScore    float64
	CustomerScore   float64
	DependencyScore float64
	SetupScore      float64

	Reasons []string
}

type PriorityCalculator struct {
	weights config.PriorityWeights
}

func NewPriorityCalculator(weights config.PriorityWeights) *PriorityCalculator {
	return &PriorityCalculator{weights: weights}
}

// WeightWarning returns a non-empty message when the configured weights do
// not sum to 1.0. Scoring proceeds regardless; the caller decides where the
// warning surfaces.
func (c *PriorityCalculator) WeightWarning() string {
	sum := c.weights.Sum()
	if diff := sum - 1.0; diff > weightSumEpsilon || diff < -weightSumEpsilon {
		return fmt.Sprintf("priority weights sum to %.2f, expected 1.0", sum)
	}
	return ""
}

// ScoreInstances produces the 0-100 composite priority per instance.
// Results come back sorted descending by score; ties keep batch order.
// The graph must be the acyclic analysis of the same batch.
func (c *PriorityCalculator) ScoreInstances(instances []*domain.ProcessInstance, graph *DependencyGraph, now time.Time) []PriorityScore {
	batchEnd := now.Add(time.Duration(graph.TotalDurationMin) * time.Minute)

	scores := make([]PriorityScore, 0, len(instances))
	for _, p := range instances {
		node := graph.Node(p.ID)
		s := PriorityScore{ProcessInstanceID: p.ID, OnCriticalPath: node.OnCriticalPath}

		var reason string
		s.DueDateScore, reason = scoreDueDate(p.DueDate, batchEnd)
		s.Reasons = append(s.Reasons, reason)

		s.CustomerScore, reason = scoreCustomer(p.CustomerPriority)
		s.Reasons = append(s.Reasons, reason)

		s.DependencyScore, reason = scoreDependencyCriticality(node)
		s.Reasons = append(s.Reasons, reason)

		s.SetupScore, reason = scoreSetupBatching(p, instances)
		s.Reasons = append(s.Reasons, reason)

		s.Score = s.DueDateScore*c.weights.DueDate +
			s.CustomerScore*c.weights.Customer +
			s.DependencyScore*c.weights.Dependency +
			s.SetupScore*c.weights.Setup
		s.Urgency = UrgencyForScore(s.Score)

		scores = append(scores, s)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// UrgencyForScore maps a composite score to its urgency label.
func UrgencyForScore(score float64) domain.UrgencyLevel {
	switch {
	case score >= 80:
		return domain.UrgencyCritical
	case score >= 60:
		return domain.UrgencyHigh
	case score >= 40:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

// scoreDueDate buckets urgency by the distance between the due date and the
// moment the whole batch would complete if started now.
func scoreDueDate(due *time.Time, batchEnd time.Time) (float64, string) {
	if due == nil {
		return 50, "no due date, neutral urgency"
	}
	days := due.Sub(batchEnd).Hours() / 24
	switch {
	case days <= 0:
		return 100, fmt.Sprintf("overdue by batch completion (due %s)", due.Format("2006-01-02"))
	case days < 1:
		return 95, "due within a day of batch completion"
	case days < 3:
		return 80, "due within three days"
	case days < 7:
		return 60, "due within a week"
	case days < 14:
		return 40, "due within two weeks"
	default:
		return 20, "due date is distant"
	}
}

func scoreCustomer(p domain.CustomerPriority) (float64, string) {
	switch p {
	case domain.PriorityUrgent:
		return 100, "customer priority urgent"
	case domain.PriorityHigh:
		return 80, "customer priority high"
	case domain.PriorityLow:
		return 20, "customer priority low"
	default:
		return 50, "customer priority medium"
	}
}

// scoreDependencyCriticality rewards instances that sit deep in the graph
// or block downstream work.
func scoreDependencyCriticality(node *DependencyNode) (float64, string) {
	score := 10*float64(len(node.Dependencies)) +
		15*float64(len(node.Dependents)) +
		5*float64(node.Level)
	if score > 100 {
		score = 100
	}
	return score, fmt.Sprintf("%d dependencies, %d dependents, depth %d",
		len(node.Dependencies), len(node.Dependents), node.Level)
}

// scoreSetupBatching counts other same-machine-type instances whose
// required capabilities overlap: scheduling them near each other saves
// setup changeovers.
func scoreSetupBatching(inst *domain.ProcessInstance, batch []*domain.ProcessInstance) (float64, string) {
	related := 0
	for _, other := range batch {
		if other.ID == inst.ID || other.MachineType != inst.MachineType {
			continue
		}
		if capabilityOverlap(inst.RequiredCapabilities, other.RequiredCapabilities) {
			related++
		}
	}
	switch {
	case related >= 3:
		return 90, fmt.Sprintf("%d similar instances in batch, strong setup batching", related)
	case related >= 1:
		return 60, fmt.Sprintf("%d similar instances in batch", related)
	default:
		return 30, "no setup batching opportunity"
	}
}

func capabilityOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
