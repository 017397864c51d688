package txn

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/txcache/cmd/util"
	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/txcache"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKey(args[0])
			if err != nil {
				return err
			}
			snapshot, _ := cmd.Flags().GetBool("snapshot")

			return readTransaction(func(ctx context.Context, tx *txcache.Transaction) error {
				value, ok, err := tx.Get(ctx, key, snapshot)
				if err != nil {
					return err
				}
				fmt.Printf("key=%s, found=%v, value=%s\n", util.FormatKey(key), ok, value)
				return nil
			})
		},
	}
	getKeyCmd = &cobra.Command{
		Use:   "getkey [selector]",
		Short: "Resolves a key selector to a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := util.ParseSelector(args[0])
			if err != nil {
				return err
			}
			snapshot, _ := cmd.Flags().GetBool("snapshot")

			return readTransaction(func(ctx context.Context, tx *txcache.Transaction) error {
				key, err := tx.GetKey(ctx, sel, snapshot)
				if err != nil {
					return err
				}
				fmt.Printf("selector=%s, key=%s\n", sel, util.FormatKey(key))
				return nil
			})
		},
	}
	rangeCmd = &cobra.Command{
		Use:   "range [begin selector] [end selector]",
		Short: "Lists the pairs between two key selectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			begin, err := util.ParseSelector(args[0])
			if err != nil {
				return err
			}
			end, err := util.ParseSelector(args[1])
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")
			snapshot, _ := cmd.Flags().GetBool("snapshot")
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}

			return readTransaction(func(ctx context.Context, tx *txcache.Transaction) error {
				result, err := tx.GetRange(ctx, begin, end, keys.RangeOptions{Limit: limit, Reverse: reverse, Snapshot: snapshot})
				if err != nil {
					return err
				}
				for _, kv := range result.KVs {
					fmt.Printf("%s=%s\n", util.FormatKey(kv.Key), kv.Value)
				}
				fmt.Printf("pairs=%d, more=%t\n", len(result.KVs), result.More)
				return nil
			})
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKey(args[0])
			if err != nil {
				return err
			}
			if err := writeTransaction(func(ctx context.Context, tx *txcache.Transaction) error {
				return tx.Set(ctx, key, []byte(args[1]))
			}); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [key]",
		Short: "Removes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKey(args[0])
			if err != nil {
				return err
			}
			if err := writeTransaction(func(ctx context.Context, tx *txcache.Transaction) error {
				return tx.Clear(ctx, key)
			}); err != nil {
				return err
			}
			fmt.Println("clear successfully")
			return nil
		},
	}
	clearRangeCmd = &cobra.Command{
		Use:   "clearrange [begin] [end]",
		Short: "Removes every key in [begin, end)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			begin, err := util.ParseKey(args[0])
			if err != nil {
				return err
			}
			end, err := util.ParseKey(args[1])
			if err != nil {
				return err
			}
			if err := writeTransaction(func(ctx context.Context, tx *txcache.Transaction) error {
				return tx.ClearRange(ctx, begin, end)
			}); err != nil {
				return err
			}
			fmt.Println("clearrange successfully")
			return nil
		},
	}
)

func init() {
	getCmd.Flags().Bool("snapshot", false, util.WrapString("Read without adding a read conflict range"))
	getKeyCmd.Flags().Bool("snapshot", false, util.WrapString("Resolve without adding a read conflict range"))
	rangeCmd.Flags().Int("limit", 0, util.WrapString("The maximum number of pairs to return (0 returns all)"))
	rangeCmd.Flags().Bool("reverse", false, util.WrapString("Return the pairs in descending key order"))
	rangeCmd.Flags().Bool("snapshot", false, util.WrapString("Read without adding a read conflict range"))
}
