// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"vnsync.io/vnsync/pkg/process"
	"vnsync.io/vnsync/pkg/store"
	"vnsync.io/vnsync/pkg/vnapi"
	"vnsync.io/vnsync/pkg/vnsync"
)

// Config is the full runtime configuration of the engine.
type Config struct {
	API      vnapi.Config
	Database store.Config
	Sync     vnsync.Config
}

var (
	rootCmd = &cobra.Command{
		Use:   "vnsync",
		Short: "VisioNature to SQL synchronization engine",
	}
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Create the database tables",
		RunE:  cmdSetup,
	}
	dropCmd = &cobra.Command{
		Use:   "drop",
		Short: "Drop every table owned by the engine",
		RunE:  cmdDrop,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Download all controllers and the full observation history",
		RunE:  cmdRun,
	}
	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Apply incremental observation changes since the last run",
		RunE:  cmdUpdate,
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Report stored observations per site and taxonomy",
		RunE:  cmdCount,
	}

	runCfg      Config
	updateSince string
)

func init() {
	rootCmd.AddCommand(setupCmd, dropCmd, runCmd, updateCmd, countCmd)
	for _, cmd := range []*cobra.Command{setupCmd, dropCmd, runCmd, updateCmd, countCmd} {
		process.Bind(cmd.Flags(), &runCfg)
	}
	updateCmd.Flags().StringVar(&updateSince, "since", "",
		`override the stored watermarks, "YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS"`)
}

func openStore(cmd *cobra.Command) (*zap.Logger, *store.SQL, error) {
	log, err := process.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	if runCfg.Database.Site == "" {
		runCfg.Database.Site = runCfg.Sync.Site
	}
	db, err := store.Open(cmd.Context(), log.Named("store"), runCfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return log, db, nil
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	log, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.CreateTables(cmd.Context()); err != nil {
		return err
	}
	log.Info("database initialized")
	return nil
}

func cmdDrop(cmd *cobra.Command, args []string) (err error) {
	log, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.DropTables(cmd.Context()); err != nil {
		return err
	}
	log.Info("database dropped")
	return nil
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	log, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	service := vnsync.New(log.Named("sync"), db, runCfg.API, runCfg.Sync)

	for _, ctrl := range []store.Controller{
		store.Entities,
		store.Fields,
		store.LocalAdminUnits,
		store.Observers,
		store.Places,
		store.TaxoGroups,
		store.TerritorialUnits,
	} {
		if err := service.DownloadSimple(cmd.Context(), ctrl); err != nil {
			return err
		}
	}
	if err := service.DownloadSpecies(cmd.Context()); err != nil {
		return err
	}
	return service.Backfill(cmd.Context())
}

func cmdUpdate(cmd *cobra.Command, args []string) (err error) {
	log, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	since, err := parseSince(updateSince)
	if err != nil {
		return err
	}
	service := vnsync.New(log.Named("sync"), db, runCfg.API, runCfg.Sync)
	return service.UpdateSince(cmd.Context(), since)
}

// parseSince accepts a date or a date-time; empty means "use the stored
// watermarks".
func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errs.New("invalid since date %q", value)
}

func cmdCount(cmd *cobra.Command, args []string) (err error) {
	_, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	counts, err := db.Counts(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%-10s %-20s %s\n", "site", "taxonomy", "observations")
	for _, row := range counts {
		fmt.Printf("%-10s %-20s %d\n", row.Site, row.Taxonomy, row.Count)
	}
	return nil
}

func main() {
	ctx, cancel := process.Ctx()
	defer cancel()
	rootCmd.SetContext(ctx)
	process.Execute(rootCmd)
}
