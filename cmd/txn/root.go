package txn

import (
	"context"
	"time"

	"github.com/ValentinKolb/txcache/cmd/util"
	"github.com/ValentinKolb/txcache/lib/txcache"
	"github.com/ValentinKolb/txcache/rpc/client"
	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	remoteStore *client.RemoteStore

	// TransactionCommands represents the txn command group
	TransactionCommands = &cobra.Command{
		Use:   "txn",
		Short: "Run cached transactions against a txcache server",
		Long: util.WrapString(`Every command runs in its own transaction with a cache in front of it. ` +
			`Read commands abort their transaction, write commands commit it. ` +
			`Keys may contain Go escapes like \xff. Selectors have the form <op><key>[+-offset] with op one of >=, >, <=, <.`),
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the txn command
	util.SetupRPCClientFlags(TransactionCommands)

	TransactionCommands.PersistentFlags().String("keyspace-end", `\xff`, util.WrapString("Exclusive upper bound of the keys the cache may assume to exist"))
	TransactionCommands.PersistentFlags().String("log-level", "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	TransactionCommands.AddCommand(getCmd)
	TransactionCommands.AddCommand(getKeyCmd)
	TransactionCommands.AddCommand(rangeCmd)
	TransactionCommands.AddCommand(setCmd)
	TransactionCommands.AddCommand(clearCmd)
	TransactionCommands.AddCommand(clearRangeCmd)
	TransactionCommands.AddCommand(perfTestCmd)
}

// setupClient connects the remote store
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	remoteStore, err = client.NewRemoteStore(*util.GetClientConfig(), t, s)
	return err
}

func closeClient(_ *cobra.Command, _ []string) error {
	if remoteStore == nil {
		return nil
	}
	return remoteStore.Close()
}

// commandContext returns the context of one command, bounded by the client timeout
func commandContext() (context.Context, context.CancelFunc) {
	timeout := time.Duration(max(viper.GetInt("timeout"), 1)) * time.Second
	return context.WithTimeout(context.Background(), timeout)
}

// newTransaction opens a remote transaction with a cache in front of it
func newTransaction(ctx context.Context) (*txcache.Transaction, error) {
	backend, err := remoteStore.NewTransaction(ctx)
	if err != nil {
		return nil, err
	}

	end, err := util.ParseKey(viper.GetString("keyspace-end"))
	if err != nil {
		return nil, err
	}

	return txcache.NewTransaction(backend, txcache.WithKeyspaceEnd(end)), nil
}

// readTransaction runs fn in a new transaction and aborts it afterward
func readTransaction(fn func(ctx context.Context, tx *txcache.Transaction) error) error {
	ctx, cancel := commandContext()
	defer cancel()

	tx, err := newTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Abort(ctx) }()

	return fn(ctx, tx)
}

// writeTransaction runs fn in a new transaction and commits it if fn succeeds
func writeTransaction(fn func(ctx context.Context, tx *txcache.Transaction) error) error {
	ctx, cancel := commandContext()
	defer cancel()

	tx, err := newTransaction(ctx)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Abort(ctx)
		return err
	}
	return tx.Commit(ctx)
}
