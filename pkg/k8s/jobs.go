package k8s

import (
	"context"
	"fmt"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/helmcode/kubediag/pkg/tools"
)

// jobStatus reduces a job's conditions and counters to one word.
func jobStatus(job *batchv1.Job) string {
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return "Complete"
		case batchv1.JobFailed:
			return "Failed"
		case batchv1.JobSuspended:
			return "Suspended"
		}
	}
	if job.Status.Active > 0 {
		return "Running"
	}
	return "Pending"
}

func completions(job *batchv1.Job) string {
	want := int32(1)
	if job.Spec.Completions != nil {
		want = *job.Spec.Completions
	}
	return fmt.Sprintf("%d/%d", job.Status.Succeeded, want)
}

func jobPodSelector(name string) metav1.ListOptions {
	return metav1.ListOptions{LabelSelector: "job-name=" + name}
}

func (c *Client) listJobsTool() tools.Tool {
	return &tool{
		name:        "list_jobs",
		description: "List jobs in a namespace with status, completions and age",
		schema: tools.Schema{
			Properties: map[string]tools.Property{"namespace": namespaceProp},
			Required:   []string{"namespace"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			jobs, err := c.clientset.BatchV1().Jobs(ns).List(ctx, metav1.ListOptions{})
			if err != nil {
				return "", fmt.Errorf("failed to list jobs in %s: %w", ns, err)
			}
			if len(jobs.Items) == 0 {
				return fmt.Sprintf("No jobs found in namespace %s", ns), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Jobs in namespace %s:\n", ns)
			fmt.Fprintf(&b, "%-50s %-12s %-12s %s\n", "NAME", "STATUS", "COMPLETIONS", "AGE")
			for i := range jobs.Items {
				j := &jobs.Items[i]
				fmt.Fprintf(&b, "%-50s %-12s %-12s %s\n", j.Name, jobStatus(j), completions(j), age(j.CreationTimestamp))
			}
			return b.String(), nil
		},
	}
}

func (c *Client) describeJobTool() tools.Tool {
	return &tool{
		name:        "describe_job",
		description: "Describe a job: status counters, timing, container command, conditions and its pods",
		schema: tools.Schema{
			Properties: map[string]tools.Property{"namespace": namespaceProp, "job_name": jobNameProp},
			Required:   []string{"namespace", "job_name"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			name := tools.StringArg(args, "job_name", "")
			job, err := c.clientset.BatchV1().Jobs(ns).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return "", fmt.Errorf("failed to get job %s: %w", name, err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Job: %s\n", job.Name)
			fmt.Fprintf(&b, "Namespace: %s\n", job.Namespace)
			fmt.Fprintf(&b, "Status: %s\n", jobStatus(job))
			fmt.Fprintf(&b, "Completions: %s\n", completions(job))
			fmt.Fprintf(&b, "Succeeded: %d, Failed: %d, Active: %d\n", job.Status.Succeeded, job.Status.Failed, job.Status.Active)
			if job.Spec.BackoffLimit != nil {
				fmt.Fprintf(&b, "Backoff Limit: %d\n", *job.Spec.BackoffLimit)
			}
			if job.Status.StartTime != nil {
				fmt.Fprintf(&b, "Start Time: %s\n", job.Status.StartTime.UTC().Format(time.RFC3339))
			}
			if job.Status.CompletionTime != nil {
				fmt.Fprintf(&b, "Completion Time: %s\n", job.Status.CompletionTime.UTC().Format(time.RFC3339))
			}

			b.WriteString("\nContainers:\n")
			for _, ctr := range job.Spec.Template.Spec.Containers {
				fmt.Fprintf(&b, "  - %s (%s)\n", ctr.Name, ctr.Image)
				if cmd := append(append([]string{}, ctr.Command...), ctr.Args...); len(cmd) > 0 {
					fmt.Fprintf(&b, "    Command: %s\n", strings.Join(cmd, " "))
				}
			}

			if len(job.Status.Conditions) > 0 {
				b.WriteString("\nConditions:\n")
				for _, cond := range job.Status.Conditions {
					fmt.Fprintf(&b, "  %s=%s", cond.Type, cond.Status)
					if cond.Reason != "" {
						fmt.Fprintf(&b, " (%s: %s)", cond.Reason, cond.Message)
					}
					b.WriteString("\n")
				}
			}

			pods, err := c.clientset.CoreV1().Pods(ns).List(ctx, jobPodSelector(name))
			if err == nil && len(pods.Items) > 0 {
				b.WriteString("\nPods:\n")
				for i := range pods.Items {
					p := &pods.Items[i]
					fmt.Fprintf(&b, "  - %s %s (restarts %d)\n", p.Name, podStatus(p), restarts(p))
				}
			}
			return b.String(), nil
		},
	}
}

func (c *Client) jobLogsTool() tools.Tool {
	return &tool{
		name:        "get_job_logs",
		description: "Fetch the logs of every pod created by a job",
		schema: tools.Schema{
			Properties: map[string]tools.Property{"namespace": namespaceProp, "job_name": jobNameProp, "tail_lines": tailLinesProp},
			Required:   []string{"namespace", "job_name"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			name := tools.StringArg(args, "job_name", "")
			tail := int64(tools.IntArg(args, "tail_lines", defaultTailLines))
			if tail <= 0 {
				tail = defaultTailLines
			}

			pods, err := c.clientset.CoreV1().Pods(ns).List(ctx, jobPodSelector(name))
			if err != nil {
				return "", fmt.Errorf("failed to list pods of job %s: %w", name, err)
			}
			if len(pods.Items) == 0 {
				return fmt.Sprintf("No pods found for job %s", name), nil
			}

			var b strings.Builder
			for i := range pods.Items {
				p := &pods.Items[i]
				logs, err := c.readLogs(ctx, ns, p.Name, "", tail, false)
				if err != nil {
					logs = err.Error()
				}
				fmt.Fprintf(&b, "Pod %s (%s):\n%s\n%s\n\n", p.Name, podStatus(p), separator, logs)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}
