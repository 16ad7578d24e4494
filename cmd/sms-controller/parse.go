package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thebrunchguy/sms-controller/internal/configutil"
	"github.com/thebrunchguy/sms-controller/internal/logutil"
)

// parse runs the full interpretation pipeline against the local store and
// prints what would have been replied, without touching the transport.
func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [message]",
		Short: "Interpret one message offline and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			store, closeStore, err := storeFromViper(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			from := strings.TrimSpace(configutil.FlagOrViperString(cmd, "from", "parse.from"))
			if from == "" {
				if admins := viper.GetStringSlice("admin.numbers"); len(admins) > 0 {
					from = admins[0]
				}
			}

			pipe := pipelineFromViper(store, logger)
			reply := pipe.HandleMessage(cmd.Context(), from, strings.Join(args, " "))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"intent":     string(reply.Intent),
				"confidence": reply.Confidence,
				"ok":         reply.OK,
				"reply":      reply.Text,
			})
		},
	}

	cmd.Flags().String("from", "", "Sender phone number (defaults to the first admin number).")

	return cmd
}
