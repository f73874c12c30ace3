package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iota-uz/gitversions/pkg/codec"
	"github.com/iota-uz/gitversions/pkg/dump"
	"github.com/iota-uz/gitversions/pkg/store"
)

type dumpOptions struct {
	Format   string
	Indent   int
	Database string
	Excludes []string
	Natural  bool
	NaturalF bool
	NaturalP bool
	PKs      []string
	Output   string
	Commit   bool
	Push     bool
}

func newDumpCmd() *cobra.Command {
	var opts dumpOptions

	cmd := &cobra.Command{
		Use:   "dump [app_label[.ModelName] ...]",
		Short: "Dump records into the versioned backup repository, or to a single file with --output",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := openApp(cmd.Context(), opts.Database)
			if err != nil {
				return err
			}
			defer a.close()

			if opts.Format == "" {
				opts.Format = a.conf.Format
			}
			dopts := dump.Options{
				Format:             opts.Format,
				Compression:        a.conf.Compression,
				Indent:             opts.Indent,
				PKs:                opts.PKs,
				NaturalForeignKeys: opts.NaturalF || opts.Natural,
				NaturalPrimaryKeys: opts.NaturalP,
			}

			st := store.NewPgStore(a.reg, store.WithLogger(a.log))
			d := dump.New(a.reg, st)

			if opts.Output != "" {
				f, err := os.Create(opts.Output)
				if err != nil {
					return err
				}
				res, err := d.Dump(ctx, f, args, opts.Excludes, dopts)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				cmd.Printf("Dumped %d applications, %d models and %d instances.\n",
					res.Apps, res.Models, res.Instances)
				return nil
			}

			v := a.versioner(dopts.Format, dopts.Compression, codec.Options{
				Indent:                dopts.Indent,
				UseNaturalForeignKeys: dopts.NaturalForeignKeys,
				UseNaturalPrimaryKeys: dopts.NaturalPrimaryKeys,
			}, a.backend(""))

			res, err := d.DumpVersions(ctx, v, args, opts.Excludes, dopts)
			if err != nil {
				return err
			}
			cmd.Printf("Dumped %d applications, %d models and %d instances.\n",
				res.Apps, res.Models, res.Instances)

			if opts.Commit || opts.Push {
				cmd.Println("Commit & Push ...")
				msg := fmt.Sprintf("Initial versions from: %s", time.Now().Format(time.DateTime))
				if err := v.Commit(msg, opts.Push); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "", "Output serialization format for fixtures")
	cmd.Flags().IntVar(&opts.Indent, "indent", 4, "Indent level for pretty-printed output")
	cmd.Flags().StringVar(&opts.Database, "database", "", "Database connection string to dump from (defaults to configuration)")
	cmd.Flags().StringArrayVarP(&opts.Excludes, "exclude", "e", nil, "An app_label or app_label.ModelName to exclude (repeatable)")
	cmd.Flags().BoolVarP(&opts.Natural, "natural", "n", true, "Use natural keys if available (deprecated: use --natural-foreign)")
	cmd.Flags().BoolVar(&opts.NaturalF, "natural-foreign", true, "Use natural foreign keys if available")
	cmd.Flags().BoolVar(&opts.NaturalP, "natural-primary", true, "Use natural primary keys if available")
	cmd.Flags().StringSliceVar(&opts.PKs, "pks", nil, "Only dump records with these primary keys (single model only)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write a single encoded file instead of per-record version files")
	cmd.Flags().BoolVarP(&opts.Commit, "commit", "c", false, "Commit changes after the dump completes")
	cmd.Flags().BoolVarP(&opts.Push, "push", "p", false, "Push to the remote after the dump completes")

	return cmd
}
