package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sk8tingusmc/forge/internal/router"
)

var routePreferredCLI string

var routeCmd = &cobra.Command{
	Use:   "route [goal...]",
	Short: "Show which CLI forge would route a task to",
	Long: `route prints the routing decision forge's Supervisor would make for
a given task description, without spawning anything.

Examples:
  forge route "refactor the auth middleware"
  forge route --cli gemini "summarize this diff"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routePreferredCLI, "cli", "", "Preferred CLI type, if any")
}

func runRoute(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")
	decision := router.RouteTask(goal, routePreferredCLI)

	fmt.Printf("cli:        %s\n", decision.CLI)
	fmt.Printf("category:   %s\n", decision.Category)
	fmt.Printf("confidence: %.2f\n", decision.Confidence)
	fmt.Printf("rationale:  %s\n", decision.Rationale)
	return nil
}
