package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/defects"
	"qualityline/internal/domain"
	"qualityline/internal/engine"
	"qualityline/internal/repo"
	"qualityline/internal/sampling"
)

func inspectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inspection",
		Aliases: []string{"insp"},
		Short:   "Open, evaluate and review lot inspections",
	}
	cmd.AddCommand(inspectionCreateCmd())
	cmd.AddCommand(inspectionListCmd())
	cmd.AddCommand(inspectionShowCmd())
	cmd.AddCommand(inspectionEvaluateCmd())
	cmd.AddCommand(inspectionOutcomeCmd())
	return cmd
}

func inspectionCreateCmd() *cobra.Command {
	var id, reference, product, level, category, kind, checklist, questionsFile string
	var lotSize int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an inspection for a lot",
		Long:  "Resolves the sampling plan and snapshots the question set. Use --checklist for a checklist from the project config or --questions for a JSON file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var questions []defects.Question
			if questionsFile != "" {
				if err := readJSONFile(questionsFile, &questions); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.CreateInspection(ctx, engine.InspectionCreateOptions{
					ID:        id,
					ProjectID: e.Config.Project.ID,
					Reference: reference,
					Product:   product,
					Plan: engine.PlanOptions{
						LotSize:  lotSize,
						Level:    level,
						Critical: optionalFloat(cmd, "critical"),
						Major:    optionalFloat(cmd, "major"),
						Minor:    optionalFloat(cmd, "minor"),
						Category: category,
						Kind:     kind,
					},
					Checklist: checklist,
					Questions: questions,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(in)
				}
				printInspection(in)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "inspection id (generated when empty)")
	cmd.Flags().StringVar(&reference, "reference", "", "lot or purchase order reference")
	cmd.Flags().StringVar(&product, "product", "", "product")
	cmd.Flags().IntVar(&lotSize, "lot-size", 0, "lot size")
	cmd.Flags().StringVar(&level, "level", "", "inspection level")
	cmd.Flags().Float64("critical", 0, "critical AQL in percent")
	cmd.Flags().Float64("major", 0, "major AQL in percent")
	cmd.Flags().Float64("minor", 0, "minor AQL in percent")
	cmd.Flags().StringVar(&category, "category", "", "inspection category")
	cmd.Flags().StringVar(&kind, "kind", "", "inspection kind")
	cmd.Flags().StringVar(&checklist, "checklist", "", "checklist name from the project config")
	cmd.Flags().StringVar(&questionsFile, "questions", "", "JSON file with the question list")
	_ = cmd.MarkFlagRequired("lot-size")
	return cmd
}

func inspectionListCmd() *cobra.Command {
	var status, outcome string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspections, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInspections(ctx, repo.InspectionFilters{
					ProjectID: e.Config.Project.ID,
					Status:    status,
					Outcome:   strings.ToUpper(outcome),
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Reference", "Lot", "Level", "Code", "n", "Status", "Verdict", "Outcome"})
				for _, in := range items {
					verdict := ""
					if in.Validation != nil {
						verdict = string(in.Validation.Overall)
					}
					tw.AppendRow(table.Row{in.ID, in.Reference, in.LotSize, in.Level, in.SampleCode, in.SampleSize, in.Status, verdict, in.Outcome})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, evaluated)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome")
	cmd.Flags().IntVar(&limit, "limit", 50, "max inspections")
	return cmd
}

func inspectionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetInspection(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(in)
				}
				printInspection(in)
				return nil
			})
		},
	}
	return cmd
}

func inspectionEvaluateCmd() *cobra.Command {
	var answersFile string
	cmd := &cobra.Command{
		Use:   "evaluate <id>",
		Short: "Evaluate an inspection from a JSON answer file",
		Long:  `Reads a JSON array of answers ([{"question_id":"print.legible","unit":1,"value":true}, ...]); use --answers - for stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var answers []defects.Answer
			if err := readJSONFile(answersFile, &answers); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.EvaluateInspection(ctx, engine.EvaluateOptions{
					InspectionID: args[0],
					Answers:      answers,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(in)
				}
				printInspection(in)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&answersFile, "answers", "", "JSON answers file")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func inspectionOutcomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcome <id>",
		Short: "Show the operative verdict after any conditional approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcome, err := e.InspectionOutcome(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"inspection_id": args[0], "outcome": string(outcome)})
				}
				fmt.Println(outcome)
				return nil
			})
		},
	}
	return cmd
}

func printInspection(in domain.Inspection) {
	fmt.Printf("Inspection %s (%s)\n", in.ID, in.Status)
	if in.Reference != "" || in.Product != "" {
		fmt.Printf("Reference: %s  Product: %s\n", in.Reference, in.Product)
	}
	fmt.Printf("Lot size %d, level %s: code %s, sample size %d (table %s)\n", in.LotSize, in.Level, in.SampleCode, in.SampleSize, in.TableVersion)
	fmt.Printf("Photos: %d required (%s, %s)\n", in.PhotoQuota.RequiredPhotos, in.Category, in.Kind)

	tw := newTable()
	tw.AppendHeader(table.Row{"Class", "AQL", "Ac", "Re", "Defects", "Result"})
	for _, sev := range []sampling.Severity{sampling.Critical, sampling.Major, sampling.Minor} {
		limit := in.AQLLimits.For(sev)
		count, result := 0, "-"
		if in.Defects != nil {
			count = in.Defects.Count(sev)
		}
		if in.Validation != nil {
			result = string(in.Validation.For(sev))
		}
		tw.AppendRow(table.Row{strings.ToLower(string(sev)), limit.AQL.String(), limit.Ac, limit.Re, count, result})
	}
	tw.Render()

	if in.Validation == nil {
		return
	}
	fmt.Printf("Verdict: %s\n", in.Validation.Overall)
	if in.Message != "" {
		fmt.Println(in.Message)
	}
	if in.Outcome != "" && in.Outcome != in.Validation.Overall {
		fmt.Printf("Outcome: %s\n", in.Outcome)
	}
	if in.ConditionalApproval != nil {
		fmt.Printf("Conditional approval %s: %s\n", in.ConditionalApproval.ID, in.ConditionalApproval.Status)
	}
	for _, w := range in.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}
