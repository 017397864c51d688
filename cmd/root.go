package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/txcache/cmd/serve"
	"github.com/ValentinKolb/txcache/cmd/txn"
	"github.com/ValentinKolb/txcache/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "txcache",
		Short: "transaction cache for ordered key-value stores",
		Long: fmt.Sprintf(`txcache (v%s)

A client side transaction cache for ordered, serializable key-value stores,
written in Go. It answers repeated reads, key selectors and range reads from
what a transaction has already seen and records the conflict ranges to commit.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of txcache",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("txcache v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(txn.TransactionCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
