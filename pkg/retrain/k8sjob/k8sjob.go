// Package k8sjob runs the training pipeline as a Kubernetes Job.
package k8sjob

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	k8s "k8s.io/client-go/kubernetes"

	"github.com/opst/mlgate/pkg/retrain"
)

const (
	LabelApp   = "app.kubernetes.io/name"
	LabelRunID = "mlgate.opst.github.io/run-id"

	AnnotationRequestedBy = "mlgate.opst.github.io/requested-by"

	appName = "mlgate-retrain"
)

type Spec struct {
	Image     string
	Namespace string

	// command of the container. Empty means the default of the image.
	Command []string

	// empty means the default service account.
	ServiceAccount string
}

type orchestrator struct {
	client k8s.Interface
	spec   Spec
}

// New returns an Orchestrator creating a Job for each run.
func New(client k8s.Interface, spec Spec) (retrain.Orchestrator, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("k8sjob: image is empty")
	}
	if spec.Namespace == "" {
		spec.Namespace = "default"
	}
	return &orchestrator{client: client, spec: spec}, nil
}

var notDNS1123 = regexp.MustCompile(`[^a-z0-9-]+`)

// JobName converts a run id into a name of Job.
func JobName(runID string) string {
	name := notDNS1123.ReplaceAllString(strings.ToLower(runID), "-")
	name = strings.Trim(name, "-")
	if limit := validation.DNS1123LabelMaxLength; limit < len(name) {
		name = strings.TrimRight(name[:limit], "-")
	}
	return name
}

// label values allow "_" and ".", but are limited in length.
func labelValue(s string) string {
	if limit := validation.LabelValueMaxLength; limit < len(s) {
		s = s[:limit]
	}
	return strings.Trim(s, "_.-")
}

func (o *orchestrator) job(req retrain.Request) *kubebatch.Job {
	backoffLimit := int32(0)
	ttl := int32(24 * 60 * 60)

	env := []kubecore.EnvVar{
		{Name: "MLGATE_RUN_ID", Value: req.RunID},
		{Name: "MLGATE_REQUESTED_BY", Value: req.RequestedBy},
	}

	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      JobName(req.RunID),
			Namespace: o.spec.Namespace,
			Labels: map[string]string{
				LabelApp:   appName,
				LabelRunID: labelValue(req.RunID),
			},
			Annotations: map[string]string{
				AnnotationRequestedBy: req.RequestedBy,
			},
		},
		Spec: kubebatch.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{
					Labels: map[string]string{
						LabelApp:   appName,
						LabelRunID: labelValue(req.RunID),
					},
				},
				Spec: kubecore.PodSpec{
					RestartPolicy:      kubecore.RestartPolicyNever,
					ServiceAccountName: o.spec.ServiceAccount,
					Containers: []kubecore.Container{
						{
							Name:    "retrain",
							Image:   o.spec.Image,
							Command: o.spec.Command,
							Env:     env,
						},
					},
				},
			},
		},
	}
}

func (o *orchestrator) Start(ctx context.Context, req retrain.Request) error {
	job := o.job(req)
	if job.Name == "" {
		return fmt.Errorf("k8sjob: run id %q cannot be a job name", req.RunID)
	}

	_, err := o.client.BatchV1().Jobs(o.spec.Namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
	if kubeerr.IsAlreadyExists(err) {
		return fmt.Errorf("%w: job %s/%s", retrain.ErrAlreadyStarted, o.spec.Namespace, job.Name)
	}
	return err
}
