package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vigneshm/keel/internal/artifactrepo"
	"github.com/vigneshm/keel/internal/clock"
	"github.com/vigneshm/keel/internal/model"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect registered artifacts and their versions",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered artifacts",
	RunE:  runArtifactsList,
}

var artifactsVersionsCmd = &cobra.Command{
	Use:   "versions <name> <debian|docker>",
	Short: "List an artifact's versions, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  runArtifactsVersions,
}

func init() {
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsVersionsCmd)
}

func runArtifactsList(cmd *cobra.Command, args []string) error {
	gormDB, err := openDB()
	if err != nil {
		return err
	}
	repo := artifactrepo.New(gormDB, clock.System{}, slog.Default())

	artifacts, err := repo.GetAll(nil)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return printOutput(artifacts)
	}

	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, []string{a.Name, string(a.Type)})
	}
	printTable([]string{"name", "type"}, rows)
	return nil
}

func runArtifactsVersions(cmd *cobra.Command, args []string) error {
	gormDB, err := openDB()
	if err != nil {
		return err
	}
	repo := artifactrepo.New(gormDB, clock.System{}, slog.Default())

	versions, err := repo.Versions(args[0], model.ArtifactType(args[1]), nil)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		return printOutput(versions)
	}

	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, []string{v})
	}
	printTable([]string{"version"}, rows)
	return nil
}
