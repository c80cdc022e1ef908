package main

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vigneshm/keel/internal/clock"
	"github.com/vigneshm/keel/internal/deliveryrepo"
)

var deliveryCmd = &cobra.Command{
	Use:   "delivery-configs",
	Short: "Inspect delivery configs and their environments",
}

var deliveryGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show a delivery config by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeliveryGet,
}

func init() {
	deliveryCmd.AddCommand(deliveryGetCmd)
}

func runDeliveryGet(cmd *cobra.Command, args []string) error {
	gormDB, err := openDB()
	if err != nil {
		return err
	}
	repo := deliveryrepo.New(gormDB, clock.System{}, slog.Default())

	cfg, err := repo.Get(args[0])
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return printOutput(cfg)
	}

	rows := make([][]string, 0, len(cfg.Environments))
	for _, e := range cfg.Environments {
		rows = append(rows, []string{e.Name, strconv.Itoa(len(e.ResourceIDs)), strconv.Itoa(len(e.Constraints))})
	}
	printTable([]string{"environment", "resources", "constraints"}, rows)
	return nil
}
