package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/service"
)

// FormatScheduleResponse renders one scheduling run: the placed entries,
// every conflict, the run metrics, and the score breakdown when present.
func FormatScheduleResponse(resp *contract.ScheduleResponse, instances []*domain.ProcessInstance) string {
	var b strings.Builder

	labels := make(map[string]string, len(instances))
	for _, inst := range instances {
		labels[inst.ID] = inst.Label()
	}

	if len(resp.Entries) > 0 {
		headers := []string{"INSTANCE", "MACHINE", "START", "END", "DURATION", "STATUS"}
		rows := make([][]string, 0, len(resp.Entries))
		for _, e := range resp.Entries {
			label := labels[e.ProcessInstanceID]
			if label == "" {
				label = e.ProcessInstanceID
			}
			rows = append(rows, []string{
				label,
				e.MachineID,
				SlotTime(e.StartTime),
				SlotTime(e.EndTime),
				FormatMinutes(e.DurationMin()),
				EntryStatusPill(e.Status),
			})
		}
		b.WriteString(RenderBox("Schedule", RenderTable(headers, rows)))
		b.WriteString("\n")
	}

	if len(resp.Conflicts) > 0 {
		b.WriteString(Header("Conflicts"))
		b.WriteString("\n")
		for _, c := range resp.Conflicts {
			marker := StyleYellow.Render("▲")
			if c.BatchFatal() {
				marker = StyleRed.Render("✖")
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n", marker, StyleBold.Render(string(c.Code)), c.Message))
			if c.Resolution != "" {
				b.WriteString("  " + Dim(c.Resolution) + "\n")
			}
		}
		b.WriteString("\n")
	}

	for _, w := range resp.Warnings {
		b.WriteString(StyleYellow.Render("warning: ") + w + "\n")
	}

	if len(resp.Scores) > 0 {
		b.WriteString(Header("Priorities"))
		b.WriteString("\n")
		for _, sc := range resp.Scores {
			label := labels[sc.ProcessInstanceID]
			if label == "" {
				label = sc.ProcessInstanceID
			}
			critical := ""
			if sc.OnCriticalPath {
				critical = " " + StylePurple.Render("◆ critical path")
			}
			b.WriteString(fmt.Sprintf("%s  %5.1f  %s%s\n",
				UrgencyIndicator(sc.Urgency), sc.Score, Bold(label), critical))
			for _, reason := range sc.Reasons {
				b.WriteString("    " + Dim(reason) + "\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(formatRunSummary(resp))
	return b.String()
}

func formatRunSummary(resp *contract.ScheduleResponse) string {
	status := StyleGreen.Render("✔ success")
	if !resp.Success {
		status = StyleRed.Render("✖ conflicts")
	}
	return fmt.Sprintf("%s  %d scheduled, %d conflicts  %s util %s  on-time %s  %s\n",
		status,
		resp.Metrics.TotalScheduledJobs,
		len(resp.Conflicts),
		Dim("·"),
		Percent(resp.Metrics.AverageUtilization),
		Percent(resp.Metrics.OnTimeDeliveryRate),
		Dim(fmt.Sprintf("(%dms)", resp.Metrics.SchedulingDurationMs)))
}

// FormatUtilization renders the per-machine utilization snapshot sorted by
// load, heaviest first.
func FormatUtilization(snapshot []service.MachineUtilization) string {
	if len(snapshot) == 0 {
		return "No machines registered.\n"
	}
	sorted := append([]service.MachineUtilization(nil), snapshot...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ratio > sorted[j].Ratio })

	headers := []string{"MACHINE", "LOAD", "BOOKED", "AVAILABLE", "ENTRIES"}
	rows := make([][]string, 0, len(sorted))
	for _, u := range sorted {
		rows = append(rows, []string{
			Bold(u.Machine.Label()),
			UtilizationBar(u.Ratio, 20) + " " + Percent(u.Ratio),
			FormatMinutes(int(u.BookedMin)),
			FormatMinutes(int(u.AvailableMin)),
			fmt.Sprintf("%d", u.EntryCount),
		})
	}
	return RenderBox("Utilization", RenderTable(headers, rows))
}

// FormatEmergency renders the outcome of an emergency operation.
func FormatEmergency(resp *contract.EmergencyResponse) string {
	var b strings.Builder
	req := resp.Request

	b.WriteString(fmt.Sprintf("%s  %s %s\n",
		EmergencyStatePill(req.State), Bold(req.ID), Dim("("+string(req.Level)+")")))
	if req.Instance != nil {
		b.WriteString(fmt.Sprintf("  %s, %s\n", req.Instance.Label(), FormatMinutes(req.DurationMin)))
	}
	b.WriteString(fmt.Sprintf("  window %s → %s\n", SlotTime(req.WindowStart), SlotTime(req.WindowEnd)))
	if req.RequiredApprovals > 0 {
		b.WriteString(fmt.Sprintf("  approvals %d of %d\n", req.ApprovalCount(), req.RequiredApprovals))
	}
	for _, a := range req.Approvals {
		verdict := StyleGreen.Render("approved")
		if !a.Approved {
			verdict = StyleRed.Render("rejected")
		}
		line := fmt.Sprintf("    %s %s", a.Actor, verdict)
		if a.Note != "" {
			line += " " + Dim(a.Note)
		}
		b.WriteString(line + "\n")
	}
	if resp.Entry != nil {
		b.WriteString(fmt.Sprintf("  placed on %s, %s → %s\n",
			Bold(resp.Entry.MachineID), SlotTime(resp.Entry.StartTime), SlotTime(resp.Entry.EndTime)))
	}
	if resp.Message != "" {
		b.WriteString(Dim(resp.Message) + "\n")
	}
	return b.String()
}

// FormatEmergencyList renders a table of emergency requests.
func FormatEmergencyList(requests []*domain.EmergencyRequest) string {
	if len(requests) == 0 {
		return "No emergency requests found.\n"
	}
	headers := []string{"ID", "LEVEL", "INSTANCE", "STATE", "APPROVALS", "WINDOW END"}
	rows := make([][]string, 0, len(requests))
	for _, r := range requests {
		rows = append(rows, []string{
			TruncID(r.ID),
			string(r.Level),
			r.ProcessInstanceID,
			EmergencyStatePill(r.State),
			fmt.Sprintf("%d/%d", r.ApprovalCount(), r.RequiredApprovals),
			SlotTime(r.WindowEnd),
		})
	}
	return RenderBox("Emergency Requests", RenderTable(headers, rows))
}

// FormatEntries renders schedule entries for one machine.
func FormatEntries(machineID string, entries []*domain.ScheduleEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No entries for machine %s in this window.\n", machineID)
	}
	headers := []string{"ID", "INSTANCE", "START", "END", "STATUS"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			TruncID(e.ID),
			e.ProcessInstanceID,
			SlotTime(e.StartTime),
			SlotTime(e.EndTime),
			EntryStatusPill(e.Status),
		})
	}
	return RenderBox("Entries · "+machineID, RenderTable(headers, rows))
}

// FormatMachines renders the machine registry.
func FormatMachines(machines []*domain.Machine) string {
	if len(machines) == 0 {
		return "No machines registered.\n"
	}
	headers := []string{"ID", "NAME", "TYPE", "CAPABILITIES", "ACTIVE"}
	rows := make([][]string, 0, len(machines))
	for _, m := range machines {
		active := StyleGreen.Render("yes")
		if !m.IsActive {
			active = StyleDim.Render("no")
		}
		rows = append(rows, []string{
			m.ID,
			Bold(m.Label()),
			m.Type,
			Dim(strings.Join(m.Capabilities, ", ")),
			active,
		})
	}
	return RenderBox("Machines", RenderTable(headers, rows))
}
