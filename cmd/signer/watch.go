package main

import (
	"fmt"
	"time"

	"FactorSign/client"
	"FactorSign/internal/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the progress of a running sign command",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(viper.GetString("addr"))

			if err := c.Health(cmd.Context()); err != nil {
				return err
			}

			last := -1

			s, err := c.Wait(cmd.Context(), viper.GetDuration("interval"), func(s api.Status) {
				if s.Round == last {
					return
				}

				last = s.Round
				fmt.Printf("round %d (%s): %d/%d authorized, %d failed, %d neglected\n",
					s.Round, s.Kind, s.Succeeded, s.Signables, s.Failed, s.Neglected)
			})
			if err != nil {
				return err
			}

			fmt.Printf("batch %s: %s\n", s.Batch, s.Termination)

			return nil
		},
	}

	cmd.Flags().String("addr", "127.0.0.1:8080", "address of the sign progress API")
	cmd.Flags().Duration("interval", time.Second, "poll interval")

	return cmd
}
