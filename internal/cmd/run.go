// internal/cmd/run.go
package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/controllers"
	"github.com/phildougherty/queuescale/internal/errors"
	"github.com/phildougherty/queuescale/internal/queue"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the autoscaler control loop",
		Long: `Run the control loop as a long lived process, typically as a pod next to the
deployment it scales. The loop stops on SIGINT or SIGTERM once the current
tick has finished.`,
		Args: cobra.NoArgs,
		RunE: runControlLoop,
	}

	config.BindFlags(cmd.Flags())
	config.BindRuntimeFlags(cmd.Flags())

	return cmd
}

func runControlLoop(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(v)

	opts, err := config.Load(v)
	if err != nil {
		return err
	}
	rt := config.LoadRuntime(v)

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	restConfig, err := controllers.CreateK8sConfig()
	if err != nil {
		return errors.NewError(errors.KindConfig, "no usable Kubernetes configuration", err)
	}

	resolveCtx, resolveCancel := context.WithTimeout(ctx, opts.CallTimeout)
	sqsQueue, err := queue.NewSQSQueue(resolveCtx, opts.Queue)
	resolveCancel()
	if err != nil {
		return err
	}
	logger.Info("Polling queue %s", sqsQueue.URL())

	cm, err := controllers.NewControllerManager(restConfig, opts, rt, sqsQueue, logger)
	if err != nil {
		return err
	}

	if err := cm.Start(ctx); err != nil {
		return err
	}
	logger.Info("Controller manager stopped")
	return nil
}
