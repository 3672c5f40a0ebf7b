package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/db"
	"qualityline/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ql",
	Short: "Qualityline CLI",
	Long: `Qualityline decides whether an inspected lot is accepted.
Core concepts:
- Sampling plan: lot size and inspection level pick a code letter and a sample size; each defect class gets Ac/Re limits from its AQL.
- Inspection: one lot, its plan, its questions and, once evaluated, the defects found per class.
- Disposition: APPROVED, REJECTED on critical defects, or CONDITIONAL_APPROVAL when major or minor defects exceed their limit.
- Conditional approval: engineering approves or rejects a CONDITIONAL_APPROVAL lot; the decision becomes the inspection outcome.
- Photo quota: how many photos a graphic material sample needs.
- Event log: every change, view with 'ql log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initLogging(); err != nil {
			return err
		}
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("QUALITYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initLogging() error {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	format := strings.ToLower(viper.GetString("log-format"))
	if format != "" && format != "text" && format != "json" {
		return fmt.Errorf("--log-format must be text or json")
	}
	logging.Init(level, format)
	return nil
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(samplingCmd())
	rootCmd.AddCommand(inspectionCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(serveCmd())
}
