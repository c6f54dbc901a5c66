package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"push-dispatch-backend/internal/model"
)

func newSendCommand(opts *rootOptions) *cobra.Command {
	var (
		msg           model.DeliveryMessage
		subscriberIDs []string
		token         string
		data          map[string]string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Dispatch one notification and print the summary",
		Long: "Dispatch one notification. Without --token or --subscriber the " +
			"message is broadcast to every registered endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token != "" && len(subscriberIDs) > 0 {
				return errors.New("--token and --subscriber are mutually exclusive")
			}
			if err := model.ValidateData(data); err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(data) > 0 {
				msg.Data = data
			}
			summary, dispatchErr := a.engine.Dispatch(cmd.Context(), model.NewTarget(subscriberIDs, token), &msg)
			if summary != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
			}
			return dispatchErr
		},
	}

	cmd.Flags().StringVar(&msg.Title, "title", "", "notification title")
	cmd.Flags().StringVar(&msg.Body, "body", "", "notification body")
	cmd.Flags().StringVar(&msg.Link, "link", "", "click target")
	cmd.Flags().StringVar(&msg.Icon, "icon", "", "icon URL")
	cmd.Flags().StringVar(&msg.Tag, "tag", "", "dedupe tag")
	cmd.Flags().StringSliceVar(&subscriberIDs, "subscriber", nil, "subscriber id (repeatable)")
	cmd.Flags().StringVar(&token, "token", "", "single endpoint token")
	cmd.Flags().StringToStringVar(&data, "data", nil, "data entries as key=value")
	cmd.MarkFlagRequired("title")
	return cmd
}
