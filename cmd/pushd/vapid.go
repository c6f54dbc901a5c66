package main

import (
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
)

func newVAPIDKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "PUSHD_PUSH_VAPID_PUBLIC_KEY=%s\n", publicKey)
			fmt.Fprintf(out, "PUSHD_PUSH_VAPID_PRIVATE_KEY=%s\n", privateKey)
			return nil
		},
	}
}
