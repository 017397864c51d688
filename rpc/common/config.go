package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the settings of the server side transport.
type ServerTransportConfig struct {
	// Endpoint is the address (tcp, http) or socket path (unix) to listen on
	Endpoint string
	// WorkersPerConn limits the requests handled concurrently per connection
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers
	BufferSize int

	// TCP socket options
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerConfig holds all configuration parameters of the RPC server.
type ServerConfig struct {
	Transport ServerTransportConfig

	// TimeoutSecond is the read and write deadline for a connection
	TimeoutSecond int64
	// TxIdleTimeoutSecond aborts transactions without requests for that long (0 = never)
	TxIdleTimeoutSecond int64

	// Storage
	BTreeDegree int
	Snapshot    string // loaded on startup and written on shutdown if set

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Tx Idle Timeout", fmt.Sprintf("%d sec", c.TxIdleTimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Buffer Size", fmt.Sprintf("%d bytes", c.Transport.BufferSize))

	// TCP settings
	addSection("TCP")
	addField("No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	addField("Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
	addField("Linger", fmt.Sprintf("%d sec", c.Transport.TCPLingerSec))

	// Storage
	addSection("Storage")
	addField("BTree Degree", strconv.Itoa(c.BTreeDegree))
	if c.Snapshot != "" {
		addField("Snapshot", c.Snapshot)
	} else {
		addField("Snapshot", "none (in memory only)")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the settings of the client side transport.
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	TCPNoDelay             bool
}

// ClientConfig holds all configuration parameters of the RPC client.
type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
