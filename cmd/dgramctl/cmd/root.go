// Package cmd implements the dgramctl commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/opd-ai/dgram"
	"github.com/opd-ai/dgram/config"
	"github.com/opd-ai/dgram/factory"
	"github.com/opd-ai/dgram/interfaces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile   string
	stackKind string
	timeout   string
	bindAddr  string
	logLevel  string

	// Shared state set during PersistentPreRun
	cfg      *config.Config
	stacks   *factory.StackFactory
	injected interfaces.INetworkStack
)

// rootCmd is the base command for dgramctl.
var rootCmd = &cobra.Command{
	Use:   "dgramctl",
	Short: "Send and receive UDP datagrams through any dgram network stack",
	Long: `dgramctl exchanges UDP datagrams using blocking, timeout-bounded sockets.
It runs on the operating system's sockets, an in-process userspace stack or
the in-memory simulation, selected with --stack or the config file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if stackKind != "" {
			cfg.Stack = stackKind
		}
		if timeout != "" {
			cfg.Timeout = timeout
		}
		if bindAddr != "" {
			cfg.Bind = bindAddr
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logrus.SetLevel(level)

		sc, err := cfg.ToStackConfig()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		stacks = factory.NewStackFactory()
		return stacks.UpdateConfig(sc)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// SetStack makes every command use stack instead of creating one. The
// caller keeps ownership of stack. Passing nil restores the default.
func SetStack(stack interfaces.INetworkStack) {
	injected = stack
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

// openSocket opens a socket configured from the command line and config
// file. The returned function closes the socket and any stack created for it.
func openSocket() (*dgram.UDPSocket, func(), error) {
	stack := injected
	owned := false
	if stack == nil {
		var err error
		stack, err = stacks.CreateStack()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s stack: %w", cfg.Stack, err)
		}
		owned = true
	}

	sock, err := stacks.OpenSocket(stack)
	if err != nil {
		if owned {
			stack.Close()
		}
		return nil, nil, fmt.Errorf("failed to open socket: %w", err)
	}

	cleanup := func() {
		sock.Close()
		if owned {
			stack.Close()
		}
	}
	return sock, cleanup, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dgram/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&stackKind, "stack", "", "network stack: real, userspace, sim")
	rootCmd.PersistentFlags().StringVar(&timeout, "timeout", "", "socket timeout: a duration, 0 to poll, or forever")
	rootCmd.PersistentFlags().StringVar(&bindAddr, "bind", "", "local address to bind, e.g. 127.0.0.1:9000")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
