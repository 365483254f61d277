// internal/controllers/manager.go
package controllers

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/logging"
	"github.com/phildougherty/queuescale/internal/scaling"
	statusserver "github.com/phildougherty/queuescale/internal/server"
	"github.com/phildougherty/queuescale/internal/workload"
)

// ControllerManager hosts the control loop inside a controller-runtime
// manager, which provides leader election, health probes and the metrics
// server.
type ControllerManager struct {
	manager ctrl.Manager
	loop    *scaling.Loop
	logger  *logging.Logger
	cancel  context.CancelFunc
	opts    config.Options
}

// NewControllerManager creates the manager and registers the control loop
// for the configured deployment. queue is the already resolved queue
// backend.
func NewControllerManager(restConfig *rest.Config, opts config.Options, rt config.RuntimeOptions, queue scaling.QueueBackend, logger *logging.Logger) (*ControllerManager, error) {
	// Set up controller-runtime logging
	ctrl.SetLogger(logger.GetLogr())

	scheme, err := newScheme()
	if err != nil {
		return nil, err
	}

	mgr, err := ctrl.NewManager(restConfig, managerOptions(scheme, opts, rt))
	if err != nil {
		return nil, fmt.Errorf("failed to create controller manager: %w", err)
	}

	metrics, err := scaling.NewMetrics(ctrlmetrics.Registry)
	if err != nil {
		return nil, err
	}

	// Reads bypass the informer cache so each tick sees the live replica count.
	target := workload.NewDeploymentTarget(mgr.GetAPIReader(), mgr.GetClient(), opts.Workload, opts.WorkloadCacheTTL)
	loop := scaling.NewLoop(opts, queue, target, logger, scaling.WithMetrics(metrics))

	if err := mgr.Add(loop); err != nil {
		return nil, fmt.Errorf("failed to add control loop: %w", err)
	}

	status := statusserver.NewStatusHandler(loop, opts, logger)
	for _, path := range status.Paths() {
		if err := mgr.AddMetricsServerExtraHandler(path, status); err != nil {
			return nil, fmt.Errorf("failed to add %s handler: %w", path, err)
		}
	}

	// Setup health checks
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return nil, fmt.Errorf("failed to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", loop.ReadyCheck); err != nil {
		return nil, fmt.Errorf("failed to set up ready check: %w", err)
	}

	return &ControllerManager{
		manager: mgr,
		loop:    loop,
		logger:  logger,
		opts:    opts,
	}, nil
}

// Start runs the manager until ctx is cancelled or the control loop stops
// with a fatal error.
func (cm *ControllerManager) Start(ctx context.Context) error {
	cm.logger.Info("Starting queuescale controller manager for deployment %s", cm.opts.Workload)

	ctx, cancel := context.WithCancel(ctx)
	cm.cancel = cancel
	defer cancel()

	if err := cm.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start controller manager: %w", err)
	}
	return nil
}

// Stop stops the controller manager
func (cm *ControllerManager) Stop() error {
	if cm.cancel != nil {
		cm.logger.Info("Stopping queuescale controller manager")
		cm.cancel()
	}
	return nil
}

// Loop returns the hosted control loop
func (cm *ControllerManager) Loop() *scaling.Loop {
	return cm.loop
}

// IsReady reports whether the control loop has completed a tick
func (cm *ControllerManager) IsReady() bool {
	return cm.loop != nil && cm.loop.ReadyCheck(nil) == nil
}

func newScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add core v1 scheme: %w", err)
	}
	if err := appsv1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("failed to add apps v1 scheme: %w", err)
	}
	return scheme, nil
}

// managerOptions scopes the cache to the workload namespace and names the
// leader election lease after the deployment, so one autoscaler per
// deployment is active at a time.
func managerOptions(scheme *runtime.Scheme, opts config.Options, rt config.RuntimeOptions) ctrl.Options {
	return ctrl.Options{
		Scheme:                        scheme,
		Cache:                         cache.Options{DefaultNamespaces: map[string]cache.Config{opts.Workload.Namespace: {}}},
		Metrics:                       server.Options{BindAddress: rt.MetricsBindAddress},
		HealthProbeBindAddress:        rt.HealthProbeBindAddress,
		LeaderElection:                rt.LeaderElection,
		LeaderElectionID:              leaderElectionID(opts.Workload),
		LeaderElectionNamespace:       opts.Workload.Namespace,
		LeaderElectionReleaseOnCancel: true,
	}
}

func leaderElectionID(id config.WorkloadIdentity) string {
	return config.LeaderElectionIDPrefix + id.Name
}

// CreateK8sConfig returns the in-cluster config, falling back to the
// kubeconfig in the user's home directory.
func CreateK8sConfig() (*rest.Config, error) {
	// Try in-cluster config first
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		// Fall back to kubeconfig
		restConfig, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
		}
	}
	return restConfig, nil
}
