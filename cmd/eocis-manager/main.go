// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main hosts the eocis-manager admin CLI: the operator-facing
// surface named in spec.md §6 (populate-schema, update-end-date, dump,
// wipe, clear-activity, reset-running-tasks), grounded on the teacher's
// cmd/cc-backend/main.go config-loading and env-overlay sequence but
// built on urfave/cli/v2 because spec.md names a real subcommand surface
// rather than a monolithic server flag set (SPEC_FULL.md §10).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eocis/data-manager/internal/catalog"
	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/eolog"
	"github.com/eocis/data-manager/internal/queue"
	"github.com/eocis/data-manager/internal/repository"
	"github.com/eocis/data-manager/internal/store"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		eolog.Warnf("main: loading .env: %s", err)
	}

	app := &cli.App{
		Name:  "eocis-manager",
		Usage: "administer the eocis job/task scheduler's catalog and activity tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config.json",
				Usage:   "path to the JSON configuration file",
			},
		},
		Commands: []*cli.Command{
			populateSchemaCommand,
			updateEndDateCommand,
			dumpCommand,
			wipeCommand,
			clearActivityCommand,
			resetRunningTasksCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		eolog.Errorf("main: %s", err)
		os.Exit(1)
	}
}

// openStore loads ProgramConfig from the --config flag and opens the
// store it names, matching the teacher's Connect+GetConnection sequence
// in cmd/cc-backend/main.go.
func openStore(c *cli.Context) (*store.Store, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", c.String("config"), err)
	}
	return store.Open(cfg)
}

var populateSchemaCommand = &cli.Command{
	Name:      "populate-schema",
	Usage:     "load catalog YAML files from a directory and populate bundles/datasets/variables",
	ArgsUsage: "<dir>",
	Action: func(c *cli.Context) error {
		dir := c.Args().First()
		if dir == "" {
			return cli.Exit("populate-schema: missing <dir> argument", 1)
		}

		db, err := openStore(c)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		datasets, err := catalog.LoadDatasets(dir)
		if err != nil {
			return cli.Exit(fmt.Errorf("populate-schema: load datasets: %w", err), 1)
		}
		bundles, err := catalog.LoadBundles(dir)
		if err != nil {
			return cli.Exit(fmt.Errorf("populate-schema: load bundles: %w", err), 1)
		}

		err = db.WithTx(context.Background(), func(tx *store.Transaction) error {
			return catalog.NewRepository(tx).Populate(datasets, bundles)
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("populate-schema: %w", err), 1)
		}

		eolog.Infof("populate-schema: loaded %d dataset(s) and %d bundle(s) from %s", len(datasets), len(bundles), dir)
		return nil
	},
}

var updateEndDateCommand = &cli.Command{
	Name:  "update-end-date",
	Usage: "set a dataset's end date (the caller, not this tool, determines the new date -- spec.md §1 excludes file-scanning)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "dataset-id", Usage: "dataset to update (required)", Required: true},
		&cli.StringFlag{Name: "end-date", Usage: "new end date, YYYY/MM/DD (required)", Required: true},
	},
	Action: func(c *cli.Context) error {
		db, err := openStore(c)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		datasetID := c.String("dataset-id")
		endDate := c.String("end-date")

		err = db.WithTx(context.Background(), func(tx *store.Transaction) error {
			return catalog.NewRepository(tx).UpdateDatasetEndDate(datasetID, endDate)
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("update-end-date: %w", err), 1)
		}

		eolog.Infof("update-end-date: dataset %s end date set to %s", datasetID, endDate)
		return nil
	},
}

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "print the current bundles, datasets, jobs and tasks",
	Action: func(c *cli.Context) error {
		db, err := openStore(c)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		err = db.WithTx(context.Background(), func(tx *store.Transaction) error {
			catalogRepo := catalog.NewRepository(tx)
			bundles, err := catalogRepo.ListBundles()
			if err != nil {
				return err
			}
			fmt.Printf("bundles (%d):\n", len(bundles))
			for _, b := range bundles {
				fmt.Printf("  %s %q datasets=%v enabled=%v\n", b.BundleID, b.BundleName, b.DatasetIDs, b.Enabled)
			}

			datasets, err := catalogRepo.ListDatasets()
			if err != nil {
				return err
			}
			fmt.Printf("datasets (%d):\n", len(datasets))
			for _, d := range datasets {
				fmt.Printf("  %s %q temporal=%s spatial=%s enabled=%v\n",
					d.DatasetID, d.DatasetName, d.TemporalResolution, d.SpatialResolution, d.Enabled)
			}

			jobs, err := repository.NewJobRepository(tx).ListJobs(nil)
			if err != nil {
				return err
			}
			fmt.Printf("jobs (%d):\n", len(jobs))
			for _, j := range jobs {
				fmt.Printf("  %s submitter=%s state=%s error=%q\n", j.JobID, j.SubmitterID, j.State, j.Error)
			}

			taskRepo := repository.NewTaskRepository(tx)
			for _, j := range jobs {
				tasks, err := taskRepo.ListJobTasks(j.JobID)
				if err != nil {
					return err
				}
				fmt.Printf("tasks for job %s (%d):\n", j.JobID, len(tasks))
				for _, t := range tasks {
					fmt.Printf("  %s state=%s retry_count=%d error=%q\n", t.TaskName, t.State, t.RetryCount, t.Error)
				}
			}

			return nil
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("dump: %w", err), 1)
		}
		return nil
	},
}

var wipeCommand = &cli.Command{
	Name:  "wipe",
	Usage: "remove every job, task, queue entry, bundle, dataset and variable",
	Action: func(c *cli.Context) error {
		db, err := openStore(c)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		err = db.WithTx(context.Background(), func(tx *store.Transaction) error {
			if err := queue.New(tx).ClearQueue(); err != nil {
				return err
			}
			if err := repository.NewTaskRepository(tx).RemoveAllTasks(); err != nil {
				return err
			}
			if err := repository.NewJobRepository(tx).RemoveAllJobs(); err != nil {
				return err
			}
			return catalog.NewRepository(tx).Populate(nil, nil)
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("wipe: %w", err), 1)
		}

		eolog.Infof("wipe: removed all jobs, tasks, queue entries and catalog entries")
		return nil
	},
}

var clearActivityCommand = &cli.Command{
	Name:  "clear-activity",
	Usage: "remove every job, task and queue entry, leaving the catalog untouched",
	Action: func(c *cli.Context) error {
		db, err := openStore(c)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		err = db.WithTx(context.Background(), func(tx *store.Transaction) error {
			if err := queue.New(tx).ClearQueue(); err != nil {
				return err
			}
			if err := repository.NewTaskRepository(tx).RemoveAllTasks(); err != nil {
				return err
			}
			return repository.NewJobRepository(tx).RemoveAllJobs()
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("clear-activity: %w", err), 1)
		}

		eolog.Infof("clear-activity: removed all jobs, tasks and queue entries")
		return nil
	},
}

var resetRunningTasksCommand = &cli.Command{
	Name:  "reset-running-tasks",
	Usage: "force every RUNNING task back to NEW (the same step the daemon performs once at startup)",
	Action: func(c *cli.Context) error {
		db, err := openStore(c)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		var n int64
		err = db.WithTx(context.Background(), func(tx *store.Transaction) error {
			var err error
			n, err = repository.NewTaskRepository(tx).ResetRunningTasks()
			return err
		})
		if err != nil {
			return cli.Exit(fmt.Errorf("reset-running-tasks: %w", err), 1)
		}

		eolog.Infof("reset-running-tasks: reset %d task(s) to NEW", n)
		return nil
	},
}
