package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigneshm/keel/internal/clock"
	"github.com/vigneshm/keel/internal/resourcerepo"
)

var (
	claimMinSince time.Duration
	claimLimit    int
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Inspect and operate on managed resources",
}

var resourcesClaimDueCmd = &cobra.Command{
	Use:   "claim-due",
	Short: "Claim resources due for a check and advance their last-checked timestamp",
	Long: `Manually runs one pass of the periodic-check claim protocol that the
reconciliation scheduler would otherwise call on an interval. Useful for
operators debugging a stuck reconciliation loop without waiting for the
scheduler's own cadence.`,
	RunE: runResourcesClaimDue,
}

func init() {
	resourcesClaimDueCmd.Flags().DurationVar(&claimMinSince, "min-since-last", time.Hour, "Minimum time since a resource's last check for it to be claimed")
	resourcesClaimDueCmd.Flags().IntVar(&claimLimit, "limit", 50, "Maximum number of resources to claim")
	resourcesCmd.AddCommand(resourcesClaimDueCmd)
}

func runResourcesClaimDue(cmd *cobra.Command, args []string) error {
	gormDB, err := openDB()
	if err != nil {
		return err
	}
	repo := resourcerepo.New(gormDB, clock.System{}, slog.Default())

	uids, err := repo.ClaimDue(claimMinSince, claimLimit)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return printOutput(uids)
	}

	rows := make([][]string, 0, len(uids))
	for _, uid := range uids {
		rows = append(rows, []string{uid})
	}
	printTable([]string{"claimed uid"}, rows)
	return nil
}
