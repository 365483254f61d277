// internal/cmd/evaluate.go
package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/scaling"
)

func NewEvaluateCommand() *cobra.Command {
	var (
		messages uint64
		replicas int32
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Show the decision for a queue depth and replica count",
		Long: `Run the decision engine once, offline, with both cooldowns treated as elapsed.
Thresholds and bounds are taken from the usual flags; no queue or cluster is
contacted, so the queue and deployment flags are optional.`,
		Example: `  queuescale evaluate --messages 100 --replicas 2 --scale-up-messages 20`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			opts, err := config.Parse(v)
			if err != nil {
				return err
			}
			if opts.Queue.URL == "" && opts.Queue.Name == "" {
				opts.Queue.Name = "offline"
			}
			if opts.Workload.Name == "" {
				opts.Workload.Name = "offline"
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			now := time.Now()
			snap := scaling.Snapshot{MessageCount: messages, CurrentReplicas: replicas, ObservedAt: now}
			decision := scaling.Evaluate(snap, scaling.CooldownState{}, opts, now)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(decision)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), decision)
			return err
		},
	}

	config.BindFlags(cmd.Flags())
	cmd.Flags().Uint64Var(&messages, "messages", 0, "Approximate number of messages in the queue")
	cmd.Flags().Int32Var(&replicas, "replicas", 1, "Current replica count of the deployment")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")

	return cmd
}
