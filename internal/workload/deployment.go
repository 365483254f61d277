// internal/workload/deployment.go
package workload

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/errors"
)

// DeploymentTarget reads and patches spec.replicas of the Deployment
// labelled SelectorLabel=Name. It is used by a single control loop and is
// not safe for concurrent use.
type DeploymentTarget struct {
	reader   client.Reader
	writer   client.Client
	id       config.WorkloadIdentity
	cacheTTL time.Duration
	clock    clock.PassiveClock

	// name resolved from the selector and when it was resolved
	name       string
	resolvedAt time.Time

	// last deployment read, the base for the next patch
	last *appsv1.Deployment
}

// Option customizes a DeploymentTarget
type Option func(*DeploymentTarget)

// WithClock sets the clock used for the resolution cache
func WithClock(c clock.PassiveClock) Option {
	return func(d *DeploymentTarget) {
		d.clock = c
	}
}

// NewDeploymentTarget creates a target. reader should bypass any informer
// cache so every tick sees the API server's replica count; writer performs
// the patch. A zero cacheTTL re-resolves the selector on every read.
func NewDeploymentTarget(reader client.Reader, writer client.Client, id config.WorkloadIdentity, cacheTTL time.Duration, opts ...Option) *DeploymentTarget {
	d := &DeploymentTarget{
		reader:   reader,
		writer:   writer,
		id:       id,
		cacheTTL: cacheTTL,
		clock:    clock.RealClock{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name returns the currently resolved deployment name, empty if unresolved
func (d *DeploymentTarget) Name() string {
	return d.name
}

// ReplicaCount returns spec.replicas of the deployment. An unset field
// counts as 1, the API server default.
func (d *DeploymentTarget) ReplicaCount(ctx context.Context) (int32, error) {
	name, err := d.resolve(ctx)
	if err != nil {
		return 0, err
	}

	deployment := &appsv1.Deployment{}
	err = d.reader.Get(ctx, types.NamespacedName{Name: name, Namespace: d.id.Namespace}, deployment)
	if err != nil {
		if apierrors.IsNotFound(err) {
			d.invalidate()
		}
		return 0, classify(fmt.Sprintf("failed to get deployment %s/%s", d.id.Namespace, name), err)
	}

	d.last = deployment
	if deployment.Spec.Replicas == nil {
		return 1, nil
	}
	return *deployment.Spec.Replicas, nil
}

// SetReplicaCount patches spec.replicas. The patch carries the
// resourceVersion of the preceding ReplicaCount read, so a change made in
// between is rejected with a conflict instead of being overwritten.
func (d *DeploymentTarget) SetReplicaCount(ctx context.Context, replicas int32) error {
	if d.last == nil {
		if _, err := d.ReplicaCount(ctx); err != nil {
			return err
		}
	}

	base := d.last
	patched := base.DeepCopy()
	patched.Spec.Replicas = &replicas

	patch := client.MergeFromWithOptions(base, client.MergeFromWithOptimisticLock{})
	if err := d.writer.Patch(ctx, patched, patch); err != nil {
		if apierrors.IsNotFound(err) {
			d.invalidate()
		}
		d.last = nil
		return classify(fmt.Sprintf("failed to patch deployment %s/%s", base.Namespace, base.Name), err)
	}

	d.last = patched
	return nil
}

func (d *DeploymentTarget) resolve(ctx context.Context) (string, error) {
	if d.name != "" && d.cacheTTL > 0 && d.clock.Since(d.resolvedAt) < d.cacheTTL {
		return d.name, nil
	}

	list := &appsv1.DeploymentList{}
	err := d.reader.List(ctx, list,
		client.InNamespace(d.id.Namespace),
		client.MatchingLabels(d.id.Selector()),
	)
	if err != nil {
		return "", classify(fmt.Sprintf("failed to list deployments in %s", d.id.Namespace), err)
	}

	selector := fmt.Sprintf("%s=%s", d.id.SelectorLabel, d.id.Name)
	switch len(list.Items) {
	case 0:
		d.invalidate()
		return "", errors.NotFound(fmt.Sprintf("no deployment in %s matches %s", d.id.Namespace, selector), nil)
	case 1:
	default:
		names := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			names = append(names, item.Name)
		}
		return "", errors.Config("ambiguous selector %s in %s matches deployments %v", selector, d.id.Namespace, names)
	}

	d.name = list.Items[0].Name
	d.resolvedAt = d.clock.Now()
	return d.name, nil
}

func (d *DeploymentTarget) invalidate() {
	d.name = ""
	d.resolvedAt = time.Time{}
	d.last = nil
}

// classify maps a Kubernetes client error onto the autoscaler taxonomy.
// Rejections by the API server are ApiError; anything that suggests the
// server could not be reached or was overloaded is BackendUnavailable.
func classify(msg string, err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return errors.NotFound(msg, err)
	case apierrors.IsTimeout(err),
		apierrors.IsServerTimeout(err),
		apierrors.IsTooManyRequests(err),
		apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err):
		return errors.Unavailable(msg, err)
	}

	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return errors.API(msg, err)
	}
	return errors.Unavailable(msg, err)
}
