package kv

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/ValentinKolb/kvdown/lib/down/ldown"
	"github.com/ValentinKolb/kvdown/lib/down/rdown"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := open(cmd); err != nil {
				return err
			}
			if err := driver.Put(ctx, []byte(args[0]), []byte(args[1]), writeOptions(cmd)); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := open(cmd); err != nil {
				return err
			}
			value, err := driver.Get(ctx, []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%s\n", args[0], value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := open(cmd); err != nil {
				return err
			}
			if err := driver.Delete(ctx, []byte(args[0]), writeOptions(cmd)); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	batchCmd = &cobra.Command{
		Use:   "batch [op]...",
		Short: "Applies several operations in one batch",
		Long:  "Applies several operations in one batch. Every op is either put:KEY=VALUE or del:KEY, e.g. batch put:a=1 put:b=2 del:c",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := parseBatchOps(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := open(cmd); err != nil {
				return err
			}
			if err := driver.Batch(ctx, ops, writeOptions(cmd)); err != nil {
				return err
			}
			fmt.Printf("batch of %d operations applied successfully\n", len(ops))
			return nil
		},
	}
	iterCmd = &cobra.Command{
		Use:   "iter",
		Short: "Lists the records of a key range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := open(cmd); err != nil {
				return err
			}
			it, err := driver.NewIterator(ctx, iteratorOptions(cmd))
			if err != nil {
				return err
			}
			defer it.Close() //nolint:errcheck

			n := 0
			for it.Next(ctx) {
				fmt.Printf("%s=%s\n", it.Key(), it.Value())
				n++
			}
			if err := it.Err(); err != nil {
				return err
			}
			fmt.Printf("(%d records)\n", n)
			return nil
		},
	}
	sizeCmd = &cobra.Command{
		Use:   "size [start] [end]",
		Short: "Counts the records between start and end (inclusive)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := open(cmd); err != nil {
				return err
			}
			size, err := driver.ApproximateSize(ctx, []byte(args[0]), []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("size=%d\n", size)
			return nil
		},
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Removes the store at --location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if driver.Backend != nil {
				err = rdown.Destroy(cmd.Context(), driver.Backend, driver.Location)
			} else {
				err = ldown.Destroy(driver.Location)
			}
			if err != nil {
				return err
			}
			fmt.Printf("destroyed %s\n", driver.Location)
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{putCmd, delCmd, batchCmd} {
		cmd.Flags().Bool("sync", false, "Persist the write before returning")
	}

	iterCmd.Flags().String("start", "", "Inclusive lower bound (upper bound with --reverse)")
	iterCmd.Flags().String("end", "", "Inclusive upper bound (lower bound with --reverse)")
	iterCmd.Flags().String("gt", "", "Exclusive lower bound (upper bound with --reverse)")
	iterCmd.Flags().String("gte", "", "Inclusive lower bound (upper bound with --reverse)")
	iterCmd.Flags().String("lt", "", "Exclusive upper bound (lower bound with --reverse)")
	iterCmd.Flags().String("lte", "", "Inclusive upper bound (lower bound with --reverse)")
	iterCmd.Flags().Bool("reverse", false, "Iterate from high to low keys")
	iterCmd.Flags().Int("limit", -1, "Maximum number of records (negative means unlimited)")

	for _, cmd := range []*cobra.Command{putCmd, getCmd, delCmd, batchCmd, iterCmd, sizeCmd, perfTestCmd} {
		cmd.Flags().Bool("create-if-missing", true, "Create the store if it does not exist")
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// open opens the driver, the create-if-missing flag of cmd decides whether the store is created
func open(cmd *cobra.Command) error {
	opts := down.DefaultOpenOptions()
	opts.CreateIfMissing, _ = cmd.Flags().GetBool("create-if-missing")
	return driver.Open(cmd.Context(), opts)
}

func writeOptions(cmd *cobra.Command) *down.WriteOptions {
	sync, _ := cmd.Flags().GetBool("sync")
	return &down.WriteOptions{Sync: sync}
}

func iteratorOptions(cmd *cobra.Command) *down.IteratorOptions {
	bound := func(name string) []byte {
		v, _ := cmd.Flags().GetString(name)
		if v == "" {
			return nil
		}
		return []byte(v)
	}

	opts := down.DefaultIteratorOptions()
	opts.Start, opts.End = bound("start"), bound("end")
	opts.Gt, opts.Gte = bound("gt"), bound("gte")
	opts.Lt, opts.Lte = bound("lt"), bound("lte")
	opts.Reverse, _ = cmd.Flags().GetBool("reverse")
	if limit, _ := cmd.Flags().GetInt("limit"); limit >= 0 {
		opts.Limit = down.Limit(limit)
	}
	return opts
}

// parseBatchOps parses put:KEY=VALUE and del:KEY arguments
func parseBatchOps(args []string) ([]down.BatchOp, error) {
	ops := make([]down.BatchOp, 0, len(args))
	for _, arg := range args {
		opType, rest, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid batch operation %q (expected put:KEY=VALUE or del:KEY)", arg)
		}

		op := down.BatchOp{Type: down.BatchOpType(opType)}
		switch op.Type {
		case down.BatchPut:
			key, value, ok := strings.Cut(rest, "=")
			if !ok {
				return nil, fmt.Errorf("invalid put operation %q (expected put:KEY=VALUE)", arg)
			}
			op.Key, op.Value = []byte(key), []byte(value)
		case down.BatchDel:
			op.Key = []byte(rest)
		default:
			return nil, fmt.Errorf("invalid batch operation type %q (expected put or del)", opType)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
