package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/gitversions/pkg/eventbus"
	"github.com/iota-uz/gitversions/pkg/loader"
	"github.com/iota-uz/gitversions/pkg/store"
)

type restoreOptions struct {
	Database          string
	App               string
	IgnoreNonexistent bool
	URL               string
}

func newRestoreCmd() *cobra.Command {
	var opts restoreOptions

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore records from the versioned backup repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := openApp(cmd.Context(), opts.Database)
			if err != nil {
				return err
			}
			defer a.close()

			// Materialize the backup repository first; an initial restore
			// clones it from the remote.
			backend := a.backend(opts.URL)
			if _, err := backend.Repo(); err != nil {
				return err
			}
			if opts.URL != "" {
				cmd.Printf("Cloning initial data from %s into %s\n", opts.URL, a.conf.Backup.Dir)
			}

			root := a.conf.Backup.Dir
			if opts.App != "" {
				root = a.backupPath(opts.App)
			}
			units, err := loader.Discover(root)
			if err != nil {
				return err
			}

			runLog := a.log.WithField("run_id", uuid.NewString())
			runLog.WithField("units", len(units)).Info("starting restore")

			bus := eventbus.NewEventPublisher(a.conf.Logger())
			v := a.versioner(a.conf.Format, a.conf.Compression, defaultCodecOptions(a), backend)
			v.Attach(bus)

			st := store.NewPgStore(a.reg,
				store.WithPublisher(bus),
				store.WithLogger(a.log),
			)
			l := loader.New(a.reg, st, loader.Options{
				IterationCap:        a.conf.IterationCap,
				IgnoreUnknownFields: opts.IgnoreNonexistent,
				Hook:                bus,
				Logger:              runLog,
			})

			res, err := l.Load(ctx, units)
			if err != nil {
				return err
			}
			cmd.Printf("Loaded %d fixtures and skipped %d of %d total in %d load passes and %d save iterations.\n",
				res.Processed, res.Skipped, res.Total, res.LoadPasses, res.SaveIterations)
			if res.Unsaved > 0 {
				cmd.Printf("%d records could not be saved.\n", res.Unsaved)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "database", "", "Database connection string to restore into (defaults to configuration)")
	cmd.Flags().StringVar(&opts.App, "app", "", "Restrict the restore to one application's fixtures")
	cmd.Flags().BoolVarP(&opts.IgnoreNonexistent, "ignorenonexistent", "i", false, "Ignore fields that no longer exist on the schema")
	cmd.Flags().StringVar(&opts.URL, "url", "", "Remote URL to clone the backup repository from on first restore")

	return cmd
}
