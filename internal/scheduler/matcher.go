package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antonmedv/expr"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/domain"
)

type MachineMatch struct {
	Machine *domain.Machine
	Score   float64
	Reasons []string
}

type MachineMatcher struct {
	weights config.MatchWeights
}

func NewMachineMatcher(weights config.MatchWeights) *MachineMatcher {
	return &MachineMatcher{weights: weights}
}

// Match filters machines that can run the instance and ranks the
// survivors descending by weighted score. The second return lists why the
// remaining machines were excluded, for the no-candidate conflict text.
func (m *MachineMatcher) Match(instance *domain.ProcessInstance, machines []*domain.Machine) ([]MachineMatch, []string) {
	var candidates []*domain.Machine
	var exclusions []string
	for _, machine := range machines {
		label := machine.Label()
		if !machine.IsActive {
			exclusions = append(exclusions, label+": inactive")
			continue
		}
		if machine.Type != instance.MachineType {
			exclusions = append(exclusions, fmt.Sprintf("%s: type %s, need %s", label, machine.Type, instance.MachineType))
			continue
		}
		if missing := machine.MissingCapabilities(instance.RequiredCapabilities); len(missing) > 0 {
			exclusions = append(exclusions, fmt.Sprintf("%s: missing %s", label, strings.Join(missing, ", ")))
			continue
		}
		if machine.AssignmentRule != "" {
			eligible, err := evaluateAssignmentRule(machine.AssignmentRule, instance)
			if err != nil {
				exclusions = append(exclusions, fmt.Sprintf("%s: %v", label, err))
				continue
			}
			if !eligible {
				exclusions = append(exclusions, label+": assignment rule rejected instance")
				continue
			}
		}
		candidates = append(candidates, machine)
	}
	if len(candidates) == 0 {
		return nil, exclusions
	}

	maxWorkload := 0.0
	for _, c := range candidates {
		if c.CurrentWorkloadHours > maxWorkload {
			maxWorkload = c.CurrentWorkloadHours
		}
	}

	matches := make([]MachineMatch, 0, len(candidates))
	for _, machine := range candidates {
		capScore, capReason := scoreCapabilityFit(machine, instance)
		loadScore, loadReason := scoreLoadBalance(machine, maxWorkload)
		setupScore, setupReason := scoreSetupEfficiency(machine, instance)
		effScore, effReason := scoreMachineEfficiency(machine)

		matches = append(matches, MachineMatch{
			Machine: machine,
			Score: capScore*m.weights.Capability +
				loadScore*m.weights.Load +
				setupScore*m.weights.Setup +
				effScore*m.weights.Efficiency,
			Reasons: []string{capReason, loadReason, setupReason, effReason},
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Machine.CurrentWorkloadHours != b.Machine.CurrentWorkloadHours {
			return a.Machine.CurrentWorkloadHours < b.Machine.CurrentWorkloadHours
		}
		return a.Machine.ID < b.Machine.ID
	})
	return matches, exclusions
}

// evaluateAssignmentRule runs a machine's optional eligibility expression
// against the candidate instance. Compile, run, and type problems reject
// the machine; a broken rule must never take the whole run down.
func evaluateAssignmentRule(rule string, instance *domain.ProcessInstance) (bool, error) {
	env := map[string]interface{}{
		"id":           instance.ID,
		"machine_type": instance.MachineType,
		"capabilities": instance.RequiredCapabilities,
		"quantity":     instance.Quantity,
		"setup_min":    instance.SetupTimeMin,
		"cycle_min":    instance.CycleTimeMin,
		"total_min":    instance.TotalDurationMin(),
		"priority":     string(instance.CustomerPriority),
	}
	program, err := expr.Compile(rule, expr.Env(env))
	if err != nil {
		return false, fmt.Errorf("assignment rule compilation failed: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("assignment rule execution failed: %w", err)
	}
	eligible, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("assignment rule result is not a boolean")
	}
	return eligible, nil
}

// relevantExtras are capabilities that help beyond an instance's explicit
// requirements.
var relevantExtras = []string{"high_speed", "live_tooling", "multi_axis", "probing"}

func scoreCapabilityFit(machine *domain.Machine, instance *domain.ProcessInstance) (float64, string) {
	missing := machine.MissingCapabilities(instance.RequiredCapabilities)
	score := 100.0 - 50.0*float64(len(missing))

	extras := 0
	for _, name := range relevantExtras {
		if machine.HasCapability(name) && !requiresCapability(instance, name) {
			extras++
		}
	}
	score += 5.0 * float64(extras)
	score = clampScore(score)

	switch {
	case len(missing) > 0:
		return score, fmt.Sprintf("missing capabilities: %s", strings.Join(missing, ", "))
	case extras > 0:
		return score, fmt.Sprintf("full capability match with %d useful extras", extras)
	default:
		return score, "full capability match"
	}
}

func scoreLoadBalance(machine *domain.Machine, maxWorkload float64) (float64, string) {
	if maxWorkload <= 0 {
		return 100, "all candidates idle"
	}
	score := clampScore(100.0 * (1.0 - machine.CurrentWorkloadHours/maxWorkload))
	return score, fmt.Sprintf("workload %.1fh against busiest candidate %.1fh",
		machine.CurrentWorkloadHours, maxWorkload)
}

func scoreSetupEfficiency(machine *domain.Machine, instance *domain.ProcessInstance) (float64, string) {
	score := 50.0
	var notes []string

	lowerType := strings.ToLower(instance.MachineType)
	turning := strings.Contains(lowerType, "lathe") || strings.Contains(lowerType, "turn")
	if turning && machine.HasCapability("live_tooling") {
		score += 15
		notes = append(notes, "live tooling cuts turning setup")
	}
	if machine.HasCapability("multi_axis") || machine.HasCapability("5_axis") {
		score -= 10
		notes = append(notes, "multi-axis fixturing adds setup")
	}
	if machine.HasCapability("high_speed") {
		score += 10
		notes = append(notes, "high-speed spindle offsets changeover")
	}

	score = clampScore(score)
	if len(notes) == 0 {
		return score, "standard setup profile"
	}
	return score, strings.Join(notes, "; ")
}

func scoreMachineEfficiency(machine *domain.Machine) (float64, string) {
	score := 50.0
	var notes []string

	if machine.HasCapability("high_speed") {
		score += 10
		notes = append(notes, "high-speed capable")
	}
	if machine.HasCapability("probing") {
		score += 5
		notes = append(notes, "in-process probing")
	}
	if machine.HourlyRate != nil {
		switch rate := *machine.HourlyRate; {
		case rate < 50:
			score += 15
			notes = append(notes, fmt.Sprintf("economical rate %.0f/h", rate))
		case rate <= 100:
			score += 5
			notes = append(notes, fmt.Sprintf("standard rate %.0f/h", rate))
		default:
			score -= 10
			notes = append(notes, fmt.Sprintf("premium rate %.0f/h", rate))
		}
	}

	score = clampScore(score)
	if len(notes) == 0 {
		return score, "no efficiency signals"
	}
	return score, strings.Join(notes, "; ")
}

func requiresCapability(instance *domain.ProcessInstance, name string) bool {
	for _, c := range instance.RequiredCapabilities {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
