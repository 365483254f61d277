package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phildougherty/queuescale/internal/errors"
)

// Flag names double as viper keys and, upper-cased with dashes replaced by
// underscores, as environment variable names (SCALE_UP_MESSAGES, ...).
const (
	FlagQueueURL               = "sqs-queue-url"
	FlagQueueName              = "sqs-queue-name"
	FlagRegion                 = "aws-region"
	FlagEndpoint               = "sqs-endpoint"
	FlagScaleUpMessages        = "scale-up-messages"
	FlagScaleDownMessages      = "scale-down-messages"
	FlagScaleUpCooldown        = "scale-up-cool-down"
	FlagScaleDownCooldown      = "scale-down-cool-down"
	FlagPollPeriod             = "poll-period"
	FlagMinPods                = "min-pods"
	FlagMaxPods                = "max-pods"
	FlagDeployment             = "kubernetes-deployment"
	FlagNamespace              = "kubernetes-namespace"
	FlagSelectorLabel          = "selector-label"
	FlagCallTimeout            = "call-timeout"
	FlagWorkloadCacheTTL       = "workload-cache-ttl"
	FlagDryRun                 = "dry-run"
	FlagExitOnError            = "exit-on-error"
	FlagMetricsBindAddress     = "metrics-bind-address"
	FlagHealthProbeBindAddress = "health-probe-bind-address"
	FlagLeaderElect            = "leader-elect"
)

// QueueOptions identifies the SQS queue to poll
type QueueOptions struct {
	URL      string `yaml:"url,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// WorkloadIdentity identifies the deployment to scale. The deployment is
// located by the label SelectorLabel=Name inside Namespace.
type WorkloadIdentity struct {
	Name          string `yaml:"name"`
	Namespace     string `yaml:"namespace"`
	SelectorLabel string `yaml:"selectorLabel"`
}

// Selector returns the label equality match used to find the deployment
func (w WorkloadIdentity) Selector() map[string]string {
	return map[string]string{w.SelectorLabel: w.Name}
}

func (w WorkloadIdentity) String() string {
	return fmt.Sprintf("%s/%s", w.Namespace, w.Name)
}

// Options is the immutable configuration of one autoscaler. It is passed by
// value; nothing mutates it after Load.
type Options struct {
	Queue    QueueOptions     `yaml:"queue"`
	Workload WorkloadIdentity `yaml:"workload"`

	ScaleUpMessages   uint64 `yaml:"scaleUpMessages"`
	ScaleDownMessages uint64 `yaml:"scaleDownMessages"`

	ScaleUpCooldown   time.Duration `yaml:"scaleUpCooldown"`
	ScaleDownCooldown time.Duration `yaml:"scaleDownCooldown"`
	PollPeriod        time.Duration `yaml:"pollPeriod"`

	MinPods int32 `yaml:"minPods"`
	MaxPods int32 `yaml:"maxPods"`

	CallTimeout      time.Duration `yaml:"callTimeout"`
	WorkloadCacheTTL time.Duration `yaml:"workloadCacheTTL"`
	DryRun           bool          `yaml:"dryRun"`
	ExitOnError      bool          `yaml:"exitOnError"`
}

// RuntimeOptions configures the process hosting the control loop
type RuntimeOptions struct {
	MetricsBindAddress     string
	HealthProbeBindAddress string
	LeaderElection         bool
}

// DefaultOptions returns Options populated with the package defaults and no
// queue or workload identity.
func DefaultOptions() Options {
	return Options{
		Queue:             QueueOptions{Region: DefaultAWSRegion},
		Workload:          WorkloadIdentity{Namespace: DefaultNamespace, SelectorLabel: DefaultSelectorLabel},
		ScaleUpMessages:   DefaultScaleUpMessages,
		ScaleDownMessages: DefaultScaleDownMessages,
		ScaleUpCooldown:   DefaultScaleUpCooldown,
		ScaleDownCooldown: DefaultScaleDownCooldown,
		PollPeriod:        DefaultPollPeriod,
		MinPods:           DefaultMinPods,
		MaxPods:           DefaultMaxPods,
		CallTimeout:       DefaultCallTimeout,
		WorkloadCacheTTL:  DefaultWorkloadCacheTTL,
	}
}

// BindFlags registers the autoscaler flags on fs. Durations are declared as
// strings so that bare integers keep meaning seconds.
func BindFlags(fs *pflag.FlagSet) {
	d := DefaultOptions()

	fs.String(FlagQueueURL, "", "URL of the SQS queue to poll")
	fs.String(FlagQueueName, "", "Name of the SQS queue, resolved to a URL at startup when no URL is given")
	fs.String(FlagRegion, d.Queue.Region, "AWS region of the queue")
	fs.String(FlagEndpoint, "", "Custom SQS endpoint (e.g. localstack)")

	fs.Uint64(FlagScaleUpMessages, d.ScaleUpMessages, "Average messages per replica at or above which to scale up")
	fs.Uint64(FlagScaleDownMessages, d.ScaleDownMessages, "Average messages per replica at or below which to scale down")
	fs.String(FlagScaleUpCooldown, d.ScaleUpCooldown.String(), "Minimum time between scale ups (seconds or duration)")
	fs.String(FlagScaleDownCooldown, d.ScaleDownCooldown.String(), "Minimum time between scale downs (seconds or duration)")
	fs.String(FlagPollPeriod, d.PollPeriod.String(), "Time between two polls (seconds or duration)")
	fs.Int32(FlagMinPods, d.MinPods, "Lower bound for the replica count")
	fs.Int32(FlagMaxPods, d.MaxPods, "Upper bound for the replica count")

	fs.String(FlagDeployment, "", "Name of the deployment to scale, matched against the selector label")
	fs.String(FlagNamespace, d.Workload.Namespace, "Namespace of the deployment")
	fs.String(FlagSelectorLabel, d.Workload.SelectorLabel, "Label key whose value must equal the deployment name")

	fs.String(FlagCallTimeout, d.CallTimeout.String(), "Timeout of each SQS or Kubernetes API call")
	fs.String(FlagWorkloadCacheTTL, d.WorkloadCacheTTL.String(), "How long a resolved deployment is reused before listing again (0 lists every tick)")
	fs.Bool(FlagDryRun, false, "Log scaling decisions without applying them")
	fs.Bool(FlagExitOnError, false, "Exit on any tick error instead of skipping to the next tick")
}

// BindRuntimeFlags registers the flags of the hosting process on fs
func BindRuntimeFlags(fs *pflag.FlagSet) {
	fs.String(FlagMetricsBindAddress, DefaultMetricsBindAddress, "Address serving /metrics and /status (0 disables)")
	fs.String(FlagHealthProbeBindAddress, DefaultHealthProbeBindAddress, "Address serving /healthz and /readyz (0 disables)")
	fs.Bool(FlagLeaderElect, false, "Enable leader election so only one replica of the autoscaler acts")
}

// NewViper returns a viper instance reading fs, the environment and, when
// configFile is set, a YAML file keyed by flag name.
func NewViper(fs *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewError(errors.KindConfig, fmt.Sprintf("failed to read config file %s", configFile), err)
		}
	}

	return v, nil
}

// Load builds Options from v and validates them
func Load(v *viper.Viper) (Options, error) {
	opts, err := Parse(v)
	if err != nil {
		return Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Parse builds Options from v without validating them
func Parse(v *viper.Viper) (Options, error) {
	var (
		opts Options
		err  error
	)

	opts.Queue = QueueOptions{
		URL:      v.GetString(FlagQueueURL),
		Name:     v.GetString(FlagQueueName),
		Region:   v.GetString(FlagRegion),
		Endpoint: v.GetString(FlagEndpoint),
	}
	opts.Workload = WorkloadIdentity{
		Name:          v.GetString(FlagDeployment),
		Namespace:     v.GetString(FlagNamespace),
		SelectorLabel: v.GetString(FlagSelectorLabel),
	}
	opts.DryRun = v.GetBool(FlagDryRun)
	opts.ExitOnError = v.GetBool(FlagExitOnError)

	if opts.ScaleUpMessages, err = cast.ToUint64E(v.Get(FlagScaleUpMessages)); err != nil {
		return Options{}, invalidValue(FlagScaleUpMessages, err)
	}
	if opts.ScaleDownMessages, err = cast.ToUint64E(v.Get(FlagScaleDownMessages)); err != nil {
		return Options{}, invalidValue(FlagScaleDownMessages, err)
	}
	if opts.MinPods, err = cast.ToInt32E(v.Get(FlagMinPods)); err != nil {
		return Options{}, invalidValue(FlagMinPods, err)
	}
	if opts.MaxPods, err = cast.ToInt32E(v.Get(FlagMaxPods)); err != nil {
		return Options{}, invalidValue(FlagMaxPods, err)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{FlagScaleUpCooldown, &opts.ScaleUpCooldown},
		{FlagScaleDownCooldown, &opts.ScaleDownCooldown},
		{FlagPollPeriod, &opts.PollPeriod},
		{FlagCallTimeout, &opts.CallTimeout},
		{FlagWorkloadCacheTTL, &opts.WorkloadCacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = ParseSeconds(v.GetString(d.key)); err != nil {
			return Options{}, invalidValue(d.key, err)
		}
	}
	return opts, nil
}

// LoadRuntime reads the hosting process options from v
func LoadRuntime(v *viper.Viper) RuntimeOptions {
	return RuntimeOptions{
		MetricsBindAddress:     v.GetString(FlagMetricsBindAddress),
		HealthProbeBindAddress: v.GetString(FlagHealthProbeBindAddress),
		LeaderElection:         v.GetBool(FlagLeaderElect),
	}
}

// ParseSeconds parses a bare integer as seconds and anything else as a Go
// duration string. An empty value is zero.
func ParseSeconds(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

func invalidValue(key string, err error) error {
	return errors.NewError(errors.KindConfig, fmt.Sprintf("invalid value for %s", key), err)
}

// Validate checks the constraints the decision engine relies on. All
// violations are reported in a single ConfigError.
func (o Options) Validate() error {
	var problems []string

	if o.Queue.URL == "" && o.Queue.Name == "" {
		problems = append(problems, fmt.Sprintf("one of %s or %s is required", FlagQueueURL, FlagQueueName))
	}
	if o.Queue.Region == "" {
		problems = append(problems, fmt.Sprintf("%s is required", FlagRegion))
	}
	if o.Workload.Name == "" {
		problems = append(problems, fmt.Sprintf("%s is required", FlagDeployment))
	}
	if o.Workload.Namespace == "" {
		problems = append(problems, fmt.Sprintf("%s is required", FlagNamespace))
	}
	if o.Workload.SelectorLabel == "" {
		problems = append(problems, fmt.Sprintf("%s is required", FlagSelectorLabel))
	}
	if o.ScaleUpMessages == 0 {
		problems = append(problems, fmt.Sprintf("%s must be at least 1", FlagScaleUpMessages))
	}
	if o.ScaleDownMessages == 0 {
		problems = append(problems, fmt.Sprintf("%s must be at least 1", FlagScaleDownMessages))
	}
	// Overlapping bands would let both branches fire on the same tick.
	if o.ScaleUpMessages != 0 && o.ScaleDownMessages >= o.ScaleUpMessages {
		problems = append(problems, fmt.Sprintf("%s (%d) must be lower than %s (%d)",
			FlagScaleDownMessages, o.ScaleDownMessages, FlagScaleUpMessages, o.ScaleUpMessages))
	}
	if o.MinPods < 0 {
		problems = append(problems, fmt.Sprintf("%s must be non-negative", FlagMinPods))
	}
	if o.MaxPods < 1 {
		problems = append(problems, fmt.Sprintf("%s must be at least 1", FlagMaxPods))
	}
	if o.MinPods > o.MaxPods {
		problems = append(problems, fmt.Sprintf("%s (%d) must not exceed %s (%d)", FlagMinPods, o.MinPods, FlagMaxPods, o.MaxPods))
	}
	if o.ScaleUpCooldown < 0 {
		problems = append(problems, fmt.Sprintf("%s must be non-negative", FlagScaleUpCooldown))
	}
	if o.ScaleDownCooldown < 0 {
		problems = append(problems, fmt.Sprintf("%s must be non-negative", FlagScaleDownCooldown))
	}
	if o.PollPeriod <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive", FlagPollPeriod))
	}
	if o.CallTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive", FlagCallTimeout))
	}
	if o.WorkloadCacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("%s must be non-negative", FlagWorkloadCacheTTL))
	}

	if len(problems) > 0 {
		return errors.Config("%s", strings.Join(problems, "; "))
	}
	return nil
}
