package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/approval"
	"qualityline/internal/engine"
	"qualityline/internal/repo"
)

func approvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Conditional approvals",
		Long:  "A CONDITIONAL_APPROVAL inspection waits for engineering: request an approval, then approve or reject it. The decision becomes the inspection outcome.",
	}
	cmd.AddCommand(approvalRequestCmd())
	cmd.AddCommand(approvalDecideCmd())
	cmd.AddCommand(approvalListCmd())
	cmd.AddCommand(approvalPendingCmd())
	cmd.AddCommand(approvalShowCmd())
	return cmd
}

func approvalRequestCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "request <inspection-id>",
		Short: "Ask engineering for a conditional approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.RequestConditionalApproval(ctx, engine.ApprovalRequestOptions{
					InspectionID: args[0],
					Reason:       reason,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printApproval(req)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the lot should be accepted")
	return cmd
}

func approvalDecideCmd() *cobra.Command {
	var decision, justification string
	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Approve or reject a pending conditional approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := approval.ParseDecision(decision)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.DecideConditionalApproval(ctx, engine.ApprovalDecisionOptions{
					RequestID:     args[0],
					Decision:      d,
					Justification: justification,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printApproval(req)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approve or reject")
	cmd.Flags().StringVar(&justification, "justification", "", "justification recorded with the decision")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("justification")
	return cmd
}

func approvalListCmd() *cobra.Command {
	var status, inspectionID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conditional approvals, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListConditionalApprovals(ctx, repo.ApprovalFilters{
					ProjectID:    e.Config.Project.ID,
					InspectionID: inspectionID,
					Status:       approval.Status(strings.ToUpper(status)),
					Limit:        limit,
				})
				if err != nil {
					return err
				}
				return printApprovals(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING, APPROVED, REJECTED)")
	cmd.Flags().StringVar(&inspectionID, "inspection", "", "filter by inspection id")
	cmd.Flags().IntVar(&limit, "limit", 50, "max requests")
	return cmd
}

func approvalPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List requests waiting for a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.PendingApprovals(ctx, e.Config.Project.ID)
				if err != nil {
					return err
				}
				return printApprovals(items)
			})
		},
	}
	return cmd
}

func approvalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a conditional approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.GetConditionalApproval(ctx, args[0])
				if err != nil {
					return err
				}
				return printApproval(req)
			})
		},
	}
	return cmd
}

func printApproval(req approval.Request) error {
	if viper.GetBool("json") {
		return printJSON(req)
	}
	return printApprovals([]approval.Request{req})
}

func printApprovals(items []approval.Request) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Inspection", "Status", "Requested by", "Decided by", "Reason", "Justification"})
	for _, r := range items {
		tw.AppendRow(table.Row{r.ID, r.InspectionID, r.Status, r.RequestedBy, r.DecidedBy, r.Reason, r.Justification})
	}
	tw.Render()
	if len(items) == 0 {
		fmt.Println("no conditional approvals")
	}
	return nil
}
