package config

import "time"

// Auto-scaling constants
const (
	// DefaultScaleUpMessages is the default per-replica backlog at which we scale up
	DefaultScaleUpMessages uint64 = 100

	// DefaultScaleDownMessages is the default per-replica backlog at which we scale down
	DefaultScaleDownMessages uint64 = 10

	// DefaultMinPods is the default lower bound for the replica target
	DefaultMinPods int32 = 1

	// DefaultMaxPods is the default upper bound for the replica target
	DefaultMaxPods int32 = 5

	// DefaultScaleUpCooldown is the default cooldown period for scaling up
	DefaultScaleUpCooldown = 30 * time.Second

	// DefaultScaleDownCooldown is the default cooldown period for scaling down
	DefaultScaleDownCooldown = 5 * time.Minute

	// DefaultPollPeriod is the default interval between two ticks
	DefaultPollPeriod = 5 * time.Second
)

// Backend constants
const (
	// DefaultAWSRegion is used when no region is configured
	DefaultAWSRegion = "us-east-1"

	// DefaultNamespace is the namespace searched for the target deployment
	DefaultNamespace = "default"

	// DefaultSelectorLabel is the label key matched against the deployment name
	DefaultSelectorLabel = "app"

	// DefaultCallTimeout bounds every call to SQS or the Kubernetes API
	DefaultCallTimeout = 10 * time.Second

	// DefaultWorkloadCacheTTL of zero re-resolves the deployment on every tick
	DefaultWorkloadCacheTTL time.Duration = 0
)

// Manager constants
const (
	// DefaultMetricsBindAddress serves /metrics and /status
	DefaultMetricsBindAddress = ":8083"

	// DefaultHealthProbeBindAddress serves /healthz and /readyz
	DefaultHealthProbeBindAddress = ":8082"

	// LeaderElectionIDPrefix is joined with the deployment name to form the lease name
	LeaderElectionIDPrefix = "queuescale-"
)
