package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jspindler/takt/internal/cli/formatter"
	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
)

func newEmergencyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Request and approve out-of-band scheduling",
	}

	cmd.AddCommand(
		newEmergencyRequestCmd(app),
		newEmergencyDecisionCmd(app, "approve", "Approve an emergency request", true),
		newEmergencyDecisionCmd(app, "reject", "Reject an emergency request", false),
		newEmergencyScheduleCmd(app),
		newEmergencyListCmd(app),
	)

	return cmd
}

func newEmergencyRequestCmd(app *App) *cobra.Command {
	var batchFile, instanceID, level, requestedBy, reason string

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request an emergency slot for one instance",
		Long: `Request picks the named instance out of a batch file and asks for an
out-of-band placement. Depending on level, duration and the facility
policy, the request is scheduled immediately or parked for approval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, _, err := loadBatch(batchFile)
			if err != nil {
				return err
			}
			var instance *domain.ProcessInstance
			for _, inst := range instances {
				if inst.ID == instanceID {
					instance = inst
					break
				}
			}
			if instance == nil {
				return fmt.Errorf("instance %q not found in %s", instanceID, batchFile)
			}

			req := contract.NewEmergencyScheduleRequest(instance, level, requestedBy)
			req.Reason = reason

			resp, err := app.Emergency.Request(context.Background(), req)
			if err != nil {
				return err
			}
			cmd.Print(formatter.FormatEmergency(resp))
			return nil
		},
	}

	cmd.Flags().StringVar(&batchFile, "file", "", "Batch file holding the instance")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance ID inside the batch file")
	cmd.Flags().StringVar(&level, "level", "urgent", "Emergency level: urgent or safety_critical")
	cmd.Flags().StringVar(&requestedBy, "by", "", "Requesting operator")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the batch queue cannot wait")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}

func newEmergencyDecisionCmd(app *App, use, short string, approve bool) *cobra.Command {
	var actor, note string

	cmd := &cobra.Command{
		Use:   use + " REQUEST_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := contract.EmergencyDecisionRequest{RequestID: args[0], Actor: actor, Note: note}

			var resp *contract.EmergencyResponse
			var err error
			if approve {
				resp, err = app.Emergency.Approve(context.Background(), req)
			} else {
				resp, err = app.Emergency.Reject(context.Background(), req)
			}
			if err != nil {
				return err
			}
			cmd.Print(formatter.FormatEmergency(resp))
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Deciding supervisor")
	cmd.Flags().StringVar(&note, "note", "", "Decision note")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func newEmergencyScheduleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule REQUEST_ID",
		Short: "Place an approved emergency request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := app.Emergency.Schedule(context.Background(), args[0])
			if err != nil {
				return err
			}
			cmd.Print(formatter.FormatEmergency(resp))
			return nil
		},
	}
}

func newEmergencyListCmd(app *App) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List emergency requests by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := app.EmergencyRequests.ListByState(context.Background(), domain.EmergencyState(state))
			if err != nil {
				return err
			}
			cmd.Print(formatter.FormatEmergencyList(requests))
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", string(domain.EmergencyRequested),
		"State filter: requested, approved, rejected or scheduled")

	return cmd
}
