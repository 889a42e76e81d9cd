package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/opd-ai/dgram"
	"github.com/opd-ai/dgram/limits"
	"github.com/spf13/cobra"
)

var (
	recvCount int
	echoCount int
)

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive datagrams on the bind address and print them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Bind == "" {
			return errors.New("recv requires a bind address (--bind or bind in the config file)")
		}

		sock, cleanup, err := openSocket()
		if err != nil {
			return err
		}
		defer cleanup()

		buf := make([]byte, limits.MaxReceiveBuffer)
		for i := 0; recvCount == 0 || i < recvCount; i++ {
			n, from, err := receive(cmd.Context(), sock, buf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", from, buf[:n])
		}
		return nil
	},
}

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Send every received datagram back to its sender",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Bind == "" {
			return errors.New("echo requires a bind address (--bind or bind in the config file)")
		}

		sock, cleanup, err := openSocket()
		if err != nil {
			return err
		}
		defer cleanup()

		buf := make([]byte, limits.MaxReceiveBuffer)
		for i := 0; echoCount == 0 || i < echoCount; i++ {
			n, from, err := receive(cmd.Context(), sock, buf)
			if err != nil {
				return err
			}
			if _, err := sock.SendToAddrContext(cmd.Context(), from, buf[:n]); err != nil {
				return fmt.Errorf("failed to reply to %s: %w", from, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "echoed %d bytes to %s\n", n, from)
		}
		return nil
	},
}

func receive(ctx context.Context, sock *dgram.UDPSocket, buf []byte) (int, netip.AddrPort, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	n, from, err := sock.ReceiveFromContext(ctx, buf)
	if errors.Is(err, dgram.ErrWouldBlock) {
		return 0, netip.AddrPort{}, fmt.Errorf("no datagram within %s", sock.Timeout())
	}
	if err != nil {
		return 0, netip.AddrPort{}, fmt.Errorf("failed to receive: %w", err)
	}
	return n, from, nil
}

func init() {
	recvCmd.Flags().IntVarP(&recvCount, "count", "n", 1, "number of datagrams to receive (0 for no limit)")
	echoCmd.Flags().IntVarP(&echoCount, "count", "n", 0, "number of datagrams to echo (0 for no limit)")
	rootCmd.AddCommand(recvCmd)
	rootCmd.AddCommand(echoCmd)
}
