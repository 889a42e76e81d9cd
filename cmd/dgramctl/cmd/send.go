package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <host> <port> <message>",
	Short: "Send one datagram",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil || port == 0 {
			return fmt.Errorf("invalid port %q", args[1])
		}

		sock, cleanup, err := openSocket()
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := sock.SendToContext(cmd.Context(), args[0], uint16(port), []byte(args[2]))
		if err != nil {
			return fmt.Errorf("failed to send: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s:%d\n", n, args[0], port)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
