package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/a-kowalski/mindkeep/internal/api"
	"github.com/a-kowalski/mindkeep/internal/app"
	"github.com/a-kowalski/mindkeep/internal/doctor"
	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/a-kowalski/mindkeep/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "mindkeep",
	Short: "mindkeep - Memory and learning for conversational assistants",
	Long:  `mindkeep learns durable facts about users from their conversations and serves them back as compact context for future prompts.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(completionCmd)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `Generate the autocompletion script for mindkeep for the specified shell.
See each command's help for details on how to use the generated script.
	`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var checkUpdates bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

func init() {
	versionCmd.Flags().BoolVar(&checkUpdates, "check", false, "Check GitHub for a newer release")
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) {
	fmt.Printf("mindkeep v%s\n", version.Version)
	if checkUpdates {
		latest, err := version.NewChecker().Latest(cmd.Context())
		if err != nil {
			fmt.Printf("Update check failed: %v\n", err)
			return
		}
		if latest != nil {
			fmt.Printf("A newer version is available: %s (%s)\n", latest.TagName, latest.URL)
		} else {
			fmt.Println("You are on the latest version.")
		}
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the learning API server",
}

func runServeCmd(a *app.App, cmd *cobra.Command, args []string) {
	server := api.NewServer(a.Learning, doctor.NewRunner(a.Config, a.DB), a.Config.ListenAddr, a.Logger)
	a.Logger.Info("Starting mindkeep server", zap.String("addr", a.Config.ListenAddr))

	if err := server.Start(); err != nil {
		a.Logger.Error("Failed to start server", zap.Error(err))
	}
}

var contextCmd = &cobra.Command{
	Use:   "context [user-id] [query...]",
	Short: "Show the memory context that would be injected for a query",
	Args:  cobra.MinimumNArgs(1),
}

func runContextCmd(a *app.App, cmd *cobra.Command, args []string) {
	userID := args[0]
	query := strings.Join(args[1:], " ")

	memoryContext := a.Context.Build(userID, query)
	if memoryContext == "" {
		fmt.Println("(no memory context for this user)")
		return
	}
	fmt.Println(memoryContext)
}

var summaryCmd = &cobra.Command{
	Use:   "summary [user-id]",
	Short: "Show everything learned about a user",
	Args:  cobra.ExactArgs(1),
}

func runSummaryCmd(a *app.App, cmd *cobra.Command, args []string) {
	userID := args[0]

	summary, err := a.Learning.GetLearningSummary(userID)
	if err != nil {
		a.Logger.Error("Failed to build learning summary", zap.Error(err))
		fmt.Printf("❌ Failed to load summary: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Learning summary for %s\n\n", userID)

	if len(summary.PersonalFacts) > 0 {
		fmt.Println("Personal facts:")
		printSorted(summary.PersonalFacts)
	}
	if len(summary.CommunicationPreferences) > 0 {
		fmt.Println("Communication preferences:")
		printSorted(summary.CommunicationPreferences)
	}
	if len(summary.TopicsOfInterest) > 0 {
		fmt.Printf("Topics of interest: %s\n", strings.Join(summary.TopicsOfInterest, ", "))
	}
	if len(summary.ExpertiseAreas) > 0 {
		fmt.Printf("Expertise areas: %s\n", strings.Join(summary.ExpertiseAreas, ", "))
	}

	fmt.Printf("\nMessages processed: %d\n", summary.TotalMessages)
	fmt.Printf("Formality score: %.2f\n", summary.FormalityScore)
	fmt.Printf("Preferred response length: %s\n", summary.PreferredResponseLength)

	if len(summary.FactsByType) > 0 {
		fmt.Println("\nFact records:")
		types := make([]fact.LearningType, 0, len(summary.FactsByType))
		for factType := range summary.FactsByType {
			types = append(types, factType)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, factType := range types {
			stats := summary.FactsByType[factType]
			fmt.Printf("  %s: %d (avg confidence %.2f, reinforced %d, contradicted %d, validated %d)\n",
				factType, stats.Count, stats.AvgConfidence,
				stats.TotalReinforced, stats.TotalContradicted, stats.Validated)
		}
	}
}

func printSorted(m map[string]string) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %s: %s\n", key, m[key])
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats [user-id]",
	Short: "Show memory statistics",
	Args:  cobra.ExactArgs(1),
}

func runStatsCmd(a *app.App, cmd *cobra.Command, args []string) {
	stats, err := a.Learning.GetStats(args[0])
	if err != nil {
		a.Logger.Error("Failed to get stats", zap.Error(err))
		fmt.Printf("❌ Error retrieving stats: %v\n", err)
		return
	}

	fmt.Printf("Memory statistics for %s\n", stats.UserID)
	fmt.Printf("  Total facts: %d\n", stats.TotalFacts)
	fmt.Printf("  Active facts: %d\n", stats.ActiveFacts)
	fmt.Printf("  High-confidence facts: %d\n", stats.HighConfidenceFacts)
	fmt.Printf("  Conversation turns: %d\n", stats.Conversations)
	fmt.Printf("  Summaries: %d\n", stats.Summaries)
	if stats.ConsolidationRecommended {
		fmt.Println("  Consolidation: recommended")
	} else {
		fmt.Println("  Consolidation: not needed")
	}
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [user-id]",
	Short: "Run a consolidation cycle for a user",
	Args:  cobra.ExactArgs(1),
}

func runConsolidateCmd(a *app.App, cmd *cobra.Command, args []string) {
	userID := args[0]

	report, err := a.Learning.TriggerConsolidation(a.Ctx, userID)
	if err != nil {
		a.Logger.Error("Consolidation failed", zap.Error(err))
		fmt.Printf("❌ Consolidation failed: %v\n", err)
		os.Exit(1)
	}
	if report == nil {
		fmt.Println("A consolidation cycle is already running for this user.")
		return
	}

	fmt.Printf("✅ Consolidation complete for %s\n", userID)
	fmt.Printf("   Facts merged: %d\n", report.Merged)
	fmt.Printf("   Facts archived: %d\n", report.Archived)
	if report.SummaryCreated {
		fmt.Println("   Summary created: yes")
	}
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset [user-id]",
	Short: "Delete everything learned about a user",
	Args:  cobra.ExactArgs(1),
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runResetCmd(a *app.App, cmd *cobra.Command, args []string) {
	userID := args[0]

	if !resetYes {
		fmt.Printf("This deletes all learned facts and summaries for %s. Continue? [y/N] ", userID)
		var answer string
		_, _ = fmt.Scanln(&answer)
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Println("Aborted.")
			return
		}
	}

	facts, summaries, err := a.Learning.ResetProfile(a.Ctx, userID)
	if err != nil {
		a.Logger.Error("Profile reset failed", zap.Error(err))
		fmt.Printf("❌ Reset failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Profile reset for %s (deleted %d facts, %d summaries)\n", userID, facts, summaries)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common installation and database problems",
}

func runDoctorCmd(a *app.App, cmd *cobra.Command, args []string) {
	report := doctor.NewRunner(a.Config, a.DB).RunAll()
	report.PrintReport()
	if report.Status != "healthy" {
		os.Exit(1)
	}
}

// newAppRunner creates a Cobra Run function closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		runFunc(a, cmd, args)
	}
}

func main() {
	appInstance, err := app.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	versionCmd.Run = newAppRunner(appInstance, runVersionCmd)
	serveCmd.Run = newAppRunner(appInstance, runServeCmd)
	contextCmd.Run = newAppRunner(appInstance, runContextCmd)
	summaryCmd.Run = newAppRunner(appInstance, runSummaryCmd)
	statsCmd.Run = newAppRunner(appInstance, runStatsCmd)
	consolidateCmd.Run = newAppRunner(appInstance, runConsolidateCmd)
	resetCmd.Run = newAppRunner(appInstance, runResetCmd)
	doctorCmd.Run = newAppRunner(appInstance, runDoctorCmd)

	if err := rootCmd.Execute(); err != nil {
		appInstance.Logger.Error("Root command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
