package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/errors"
	"github.com/phildougherty/queuescale/internal/scaling"
)

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/jobs"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand("1.2.3")
	assert.Equal(t, "queuescale", root.Use)
	assert.Equal(t, "1.2.3", root.Version)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "config", "evaluate"})

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	for _, flag := range []string{config.FlagQueueURL, config.FlagDeployment, config.FlagLeaderElect, config.FlagMetricsBindAddress} {
		assert.NotNil(t, run.Flags().Lookup(flag), flag)
	}
}

func TestConfigCommand_PrintsEffectiveOptions(t *testing.T) {
	t.Setenv("SCALE_DOWN_MESSAGES", "3")

	out, err := execute(t, "config",
		"--sqs-queue-url", testQueueURL,
		"--kubernetes-deployment", "worker",
		"--scale-up-messages", "20",
		"--scale-up-cool-down", "45",
	)
	require.NoError(t, err)

	var opts config.Options
	require.NoError(t, yaml.Unmarshal([]byte(out), &opts))
	assert.Equal(t, testQueueURL, opts.Queue.URL)
	assert.Equal(t, "worker", opts.Workload.Name)
	assert.Equal(t, uint64(20), opts.ScaleUpMessages)
	assert.Equal(t, uint64(3), opts.ScaleDownMessages)
	assert.Equal(t, 45*time.Second, opts.ScaleUpCooldown)
	assert.Equal(t, config.DefaultScaleDownCooldown, opts.ScaleDownCooldown)
}

func TestConfigCommand_InvalidOptions(t *testing.T) {
	_, err := execute(t, "config", "--kubernetes-deployment", "worker", "--min-pods", "6", "--max-pods", "2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "sqs-queue-url")
	assert.Contains(t, err.Error(), "min-pods (6) must not exceed max-pods (2)")
}

func TestConfigCommand_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "queuescale.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SQS_QUEUE_NAME=jobs-from-env\nKUBERNETES_DEPLOYMENT=worker-from-env\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SQS_QUEUE_NAME")
		os.Unsetenv("KUBERNETES_DEPLOYMENT")
	})

	out, err := execute(t, "config", "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "jobs-from-env")
	assert.Contains(t, out, "worker-from-env")
}

func TestConfigCommand_MissingEnvFile(t *testing.T) {
	_, err := execute(t, "config", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestConfigCommand_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queuescale.yaml")
	content := "sqs-queue-url: " + testQueueURL + "\nkubernetes-deployment: worker\nmax-pods: 12\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)

	var opts config.Options
	require.NoError(t, yaml.Unmarshal([]byte(out), &opts))
	assert.Equal(t, int32(12), opts.MaxPods)
}

func TestEvaluateCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{
			name:     "backlog scales up",
			args:     []string{"--messages", "100", "--replicas", "2", "--scale-up-messages", "20", "--scale-down-messages", "5", "--max-pods", "10"},
			expected: "scale-up to 5",
		},
		{
			name:     "empty queue scales down to min pods",
			args:     []string{"--messages", "0", "--replicas", "3"},
			expected: "scale-down to 1",
		},
		{
			name:     "zero replicas is left alone",
			args:     []string{"--messages", "1000", "--replicas", "0"},
			expected: "no-op (workload scaled to zero)",
		},
		{
			name:     "within band",
			args:     []string{"--messages", "100", "--replicas", "2"},
			expected: "no-op (average 50 messages per replica within band)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"evaluate"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.expected)
		})
	}
}

func TestEvaluateCommand_JSON(t *testing.T) {
	out, err := execute(t, "evaluate", "--messages", "500", "--replicas", "1", "--json")
	require.NoError(t, err)

	var decision map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.Equal(t, scaling.ScaleUp.String(), decision["action"])
	assert.Equal(t, float64(config.DefaultMaxPods), decision["replicas"])
}

func TestEvaluateCommand_RejectsInvalidThresholds(t *testing.T) {
	_, err := execute(t, "evaluate", "--scale-up-messages", "10", "--scale-down-messages", "10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}
