package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// fieldsCmd lists what the research database knows about.
var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List registered fields and strategies",
	RunE:  runFields,
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

func runFields(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	s, err := loadResearchStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	cal := s.Calendar()
	fmt.Printf("Calendar: %s ~ %s (%d trading days)\n",
		cal.First().Format("2006-01-02"), cal.Last().Format("2006-01-02"), cal.Len())
	fmt.Printf("Universe: %d securities\n\n", len(s.Universe()))

	fmt.Printf("%-20s %-10s %10s %14s\n", "FIELD", "FREQ", "LAG (days)", "STALE (days)")
	for _, name := range s.Fields() {
		spec, err := s.Spec(name)
		if err != nil {
			return err
		}
		stale := fmt.Sprintf("%d", spec.StalenessDays)
		if spec.StalenessDays == 0 {
			stale = "default"
		}
		fmt.Printf("%-20s %-10s %10d %14s\n", spec.Name, spec.Frequency, spec.LagDays, stale)
	}

	fmt.Println("\nStrategies:")
	for _, name := range registry().Names() {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
