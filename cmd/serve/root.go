package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/txcache/cmd/util"
	"github.com/ValentinKolb/txcache/rpc/common"
	"github.com/ValentinKolb/txcache/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the txcache server",
		Long:    `Start the txcache server, which serves the transactions of a local store. The configuration can be set via command line flags or environment variables. The format of the environment variables is TXCACHE_<flag> (e.g. TXCACHE_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/txcache.sock, ...)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for reading a request and for handling it"))

	key = "tx-idle-timeout"
	ServeCmd.PersistentFlags().Int64(key, 60, cmdUtil.WrapString("Transactions without a request for this many seconds are aborted (0 disables this)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("How many requests of one connection are handled concurrently (tcp, unix)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The size of the read buffers in KB (0 uses the default of the transport)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (only for tcp, 0 keeps the system default)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time in seconds (only for tcp, -1 keeps the system default)"))

	key = "tcp-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The socket write buffer in KB (only for tcp, 0 keeps the system default)"))

	key = "tcp-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The socket read buffer in KB (only for tcp, 0 keeps the system default)"))

	key = "btree-degree"
	ServeCmd.PersistentFlags().Int(key, 32, cmdUtil.WrapString("The degree of the btree holding the data"))

	key = "snapshot"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Path of a snapshot file that is loaded on startup and written on shutdown. Without it the data lives in memory only"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		WorkersPerConn:  viper.GetInt("workers-per-conn"),
		BufferSize:      viper.GetInt("buffer-size") * 1024,
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
		WriteBufferSize: viper.GetInt("tcp-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("tcp-read-buffer") * 1024,
	}
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.TxIdleTimeoutSecond = viper.GetInt64("tx-idle-timeout")
	serveCmdConfig.BTreeDegree = viper.GetInt("btree-degree")
	serveCmdConfig.Snapshot = viper.GetString("snapshot")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if serveCmdConfig.BTreeDegree < 2 {
		return fmt.Errorf("btree-degree must be at least 2, got %d", serveCmdConfig.BTreeDegree)
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the txcache server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		// the transport failed, the snapshot is still written
		shutdownErr := shutdown(serv)
		return errors.Join(err, shutdownErr)
	case sig := <-sigCh:
		fmt.Printf("received %s, shutting down\n", sig)
	}

	if err := shutdown(serv); err != nil {
		return err
	}
	return <-errCh
}

func shutdown(serv *server.RPCServer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return serv.Shutdown(ctx)
}
