package k8s

import (
	"context"
	"fmt"
	"sort"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/helmcode/kubediag/pkg/tools"
)

func (c *Client) configMapTool() tools.Tool {
	return &resourceTool{
		tool: &tool{
			name:        "get_configmap",
			description: "Show the keys and values of a ConfigMap (long values truncated)",
			schema: tools.Schema{
				Properties: map[string]tools.Property{
					"namespace": namespaceProp,
					"name":      {Type: "string", Description: "ConfigMap name"},
				},
				Required: []string{"namespace", "name"},
			},
			run: func(ctx context.Context, args map[string]any) (string, error) {
				ns := tools.StringArg(args, "namespace", "")
				name := tools.StringArg(args, "name", "")
				cm, err := c.clientset.CoreV1().ConfigMaps(ns).Get(ctx, name, metav1.GetOptions{})
				if err != nil {
					return "", fmt.Errorf("failed to get configmap %s: %w", name, err)
				}

				keys := make([]string, 0, len(cm.Data))
				for k := range cm.Data {
					keys = append(keys, k)
				}
				sort.Strings(keys)

				var b strings.Builder
				fmt.Fprintf(&b, "ConfigMap: %s/%s\n%s\n", ns, name, separator)
				if len(keys) == 0 {
					b.WriteString("(no data)\n")
				}
				for _, k := range keys {
					v := cm.Data[k]
					if r := []rune(v); len(r) > maxConfigValueLen {
						v = string(r[:maxConfigValueLen]) + "... (truncated)"
					}
					fmt.Fprintf(&b, "%s:\n%s\n\n", k, v)
				}
				if len(cm.BinaryData) > 0 {
					fmt.Fprintf(&b, "Binary keys: %d\n", len(cm.BinaryData))
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		resource: func(args map[string]any) (string, string) {
			return "configmap", tools.StringArg(args, "name", "")
		},
	}
}

func (c *Client) deploymentTool() tools.Tool {
	return &tool{
		name:        "get_deployment",
		description: "Show a deployment's replica counts, rollout strategy, container images, resources and conditions",
		schema: tools.Schema{
			Properties: map[string]tools.Property{
				"namespace": namespaceProp,
				"name":      {Type: "string", Description: "Deployment name"},
			},
			Required: []string{"namespace", "name"},
		},
		run: func(ctx context.Context, args map[string]any) (string, error) {
			ns := tools.StringArg(args, "namespace", "")
			name := tools.StringArg(args, "name", "")
			d, err := c.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return "", fmt.Errorf("failed to get deployment %s: %w", name, err)
			}

			desired := int32(1)
			if d.Spec.Replicas != nil {
				desired = *d.Spec.Replicas
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Deployment: %s\n", d.Name)
			fmt.Fprintf(&b, "Namespace: %s\n", d.Namespace)
			fmt.Fprintf(&b, "Replicas: %d/%d ready, %d updated, %d available\n",
				d.Status.ReadyReplicas, desired, d.Status.UpdatedReplicas, d.Status.AvailableReplicas)
			fmt.Fprintf(&b, "Strategy: %s\n", d.Spec.Strategy.Type)
			if d.Spec.Selector != nil {
				fmt.Fprintf(&b, "Selector: %s\n", metav1.FormatLabelSelector(d.Spec.Selector))
			}

			b.WriteString("\nContainers:\n")
			for _, ctr := range d.Spec.Template.Spec.Containers {
				fmt.Fprintf(&b, "  - %s (%s)\n", ctr.Name, ctr.Image)
				fmt.Fprintf(&b, "    Requests: %s\n", formatResources(ctr.Resources.Requests))
				fmt.Fprintf(&b, "    Limits: %s\n", formatResources(ctr.Resources.Limits))
			}

			if len(d.Status.Conditions) > 0 {
				b.WriteString("\nConditions:\n")
				for _, cond := range d.Status.Conditions {
					fmt.Fprintf(&b, "  %s=%s", cond.Type, cond.Status)
					if cond.Reason != "" {
						fmt.Fprintf(&b, " (%s: %s)", cond.Reason, cond.Message)
					}
					b.WriteString("\n")
				}
			}
			return b.String(), nil
		},
	}
}

func (c *Client) getResourceTool() tools.Tool {
	return &resourceTool{
		tool: &tool{
			name: "get_resource",
			description: "Dump any namespaced object as JSON by kind and name " +
				"(deployment, pod, service, statefulset, daemonset, hpa, pvc, or a known CRD such as certificate)",
			schema: tools.Schema{
				Properties: map[string]tools.Property{
					"namespace": namespaceProp,
					"kind":      {Type: "string", Description: "Resource kind, e.g. statefulset"},
					"name":      {Type: "string", Description: "Object name"},
				},
				Required: []string{"namespace", "kind", "name"},
			},
			run: func(ctx context.Context, args map[string]any) (string, error) {
				return c.GetResource(ctx,
					tools.StringArg(args, "namespace", ""),
					tools.StringArg(args, "kind", ""),
					tools.StringArg(args, "name", ""))
			},
		},
		resource: func(args map[string]any) (string, string) {
			return tools.StringArg(args, "kind", ""), tools.StringArg(args, "name", "")
		},
	}
}
