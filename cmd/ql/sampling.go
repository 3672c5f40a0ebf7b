package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/coverage"
	"qualityline/internal/engine"
	"qualityline/internal/sampling"
)

func samplingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sampling",
		Short: "Sampling plans, acceptance limits and photo quotas",
		Long:  "Look up sampling plans without opening an inspection. Defaults come from qualityline.yml in the workspace when present.",
	}
	cmd.AddCommand(samplingPlanCmd())
	cmd.AddCommand(samplingLimitsCmd())
	cmd.AddCommand(samplingPhotosCmd())
	return cmd
}

func samplingPlanCmd() *cobra.Command {
	var lotSize int
	var level, category, kind string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve the sampling plan for a lot",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := offlineEngine()
			if err != nil {
				return err
			}
			res, err := e.ResolvePlan(engine.PlanOptions{
				LotSize:  lotSize,
				Level:    level,
				Critical: optionalFloat(cmd, "critical"),
				Major:    optionalFloat(cmd, "major"),
				Minor:    optionalFloat(cmd, "minor"),
				Category: category,
				Kind:     kind,
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			p := res.Plan
			fmt.Printf("Lot size %d, level %s: code %s, sample size %d (table %s)\n", p.LotSize, p.Level, p.Code, p.SampleSize, p.TableVersion)
			renderLimits(newTable(), p.Limits)
			fmt.Printf("Photos (%s, %s): %d required, graphic sub-sample %d\n", res.Category, res.Kind, res.Photos.RequiredPhotos, res.Photos.GraphicSubSample)
			return nil
		},
	}
	cmd.Flags().IntVar(&lotSize, "lot-size", 0, "lot size")
	cmd.Flags().StringVar(&level, "level", "", "inspection level (S1-S4, I, II, III)")
	cmd.Flags().Float64("critical", 0, "critical AQL in percent")
	cmd.Flags().Float64("major", 0, "major AQL in percent")
	cmd.Flags().Float64("minor", 0, "minor AQL in percent")
	cmd.Flags().StringVar(&category, "category", "", "inspection category")
	cmd.Flags().StringVar(&kind, "kind", "", "inspection kind (container or bonification)")
	_ = cmd.MarkFlagRequired("lot-size")
	return cmd
}

func samplingLimitsCmd() *cobra.Command {
	var n int
	var aqls []float64
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Acceptance and rejection numbers for a sample size",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(aqls) == 0 {
				aqls = []float64{0, 2.5, 4.0}
			}
			limits := make([]sampling.Limit, 0, len(aqls))
			for _, pct := range aqls {
				aql, err := sampling.ParseAQL(pct)
				if err != nil {
					return err
				}
				l, err := sampling.LimitsFor(n, aql)
				if err != nil {
					return err
				}
				limits = append(limits, l)
			}
			if viper.GetBool("json") {
				return printJSON(limits)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"n", "AQL", "Ac", "Re"})
			for _, l := range limits {
				tw.AppendRow(table.Row{l.N, l.AQL.String(), l.Ac, l.Re})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 0, "sample size")
	cmd.Flags().Float64SliceVar(&aqls, "aql", nil, "AQL in percent (repeatable; default 0,2.5,4.0)")
	_ = cmd.MarkFlagRequired("n")
	return cmd
}

func samplingPhotosCmd() *cobra.Command {
	var n int
	var category, kind string
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "Photo quota for a sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 0 || n > sampling.MaxSampleSize {
				return sampling.OutOfRangeError{What: "sample size", Value: n, Min: 0, Max: sampling.MaxSampleSize}
			}
			e, err := offlineEngine()
			if err != nil {
				return err
			}
			cat := e.Config.DefaultCategory()
			if category != "" {
				if cat, err = coverage.ParseCategory(category); err != nil {
					return err
				}
			}
			if kind == "" {
				kind = e.Config.Photos.DefaultKind
			}
			k, err := coverage.ParseKind(kind)
			if err != nil {
				return err
			}
			quota := coverage.QuotaFor(k, cat, n)
			if viper.GetBool("json") {
				return printJSON(quota)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Category", "Kind", "Sample", "Graphic sub-sample", "Functional", "Photos"})
			tw.AppendRow(table.Row{cat, k, quota.TotalSampleSize, quota.GraphicSubSample, quota.FunctionalSample, quota.RequiredPhotos})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 0, "total sample size")
	cmd.Flags().StringVar(&category, "category", "", "inspection category")
	cmd.Flags().StringVar(&kind, "kind", "", "inspection kind")
	_ = cmd.MarkFlagRequired("n")
	return cmd
}
