// Package k8s connects to a cluster with client-go and exposes the read-mostly
// diagnostic tools the planner can schedule.
package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type Client struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
	config    *rest.Config
	execer    PodExecer
}

// NewClient creates a new Kubernetes client. With no kubeconfig and no
// context it tries the in-cluster config first.
func NewClient(kubeconfig, kubeContext string) (*Client, error) {
	config, err := restConfig(kubeconfig, kubeContext)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	// Create dynamic client for CRDs
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Client{
		clientset: clientset,
		dynamic:   dynamicClient,
		config:    config,
		execer:    &spdyExecer{clientset: clientset, config: config},
	}, nil
}

func restConfig(kubeconfig, kubeContext string) (*rest.Config, error) {
	if kubeconfig == "" && kubeContext == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return config, nil
}

// NewForClientset wraps an existing clientset. The dynamic client may be nil,
// in which case custom resources are unavailable.
func NewForClientset(clientset kubernetes.Interface, dyn dynamic.Interface) *Client {
	return &Client{clientset: clientset, dynamic: dyn}
}

// WithExecer replaces the command runner used by exec_in_pod.
func (c *Client) WithExecer(e PodExecer) *Client {
	c.execer = e
	return c
}

// Clientset exposes the typed client.
func (c *Client) Clientset() kubernetes.Interface { return c.clientset }

// ServerVersion reports the API server version, doubling as a connectivity check.
func (c *Client) ServerVersion() (string, error) {
	v, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to reach API server: %w", err)
	}
	return v.GitVersion, nil
}

// GetResource fetches one object by kind and name and renders it as indented
// JSON. Deployments also carry the names and phases of their pods.
func (c *Client) GetResource(ctx context.Context, namespace, kind, name string) (string, error) {
	result := make(map[string]interface{})

	switch strings.ToLower(kind) {
	case "deployment", "deploy":
		deploy, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get deployment %s: %w", name, err)
		}
		deploy.ManagedFields = nil
		result["deployment"] = deploy

		// Get related pods
		if pods, err := c.getPodsForDeployment(ctx, namespace, deploy); err == nil {
			summary := make([]string, 0, len(pods.Items))
			for _, p := range pods.Items {
				summary = append(summary, fmt.Sprintf("%s (%s)", p.Name, podStatus(&p)))
			}
			result["pods"] = summary
		}

	case "pod":
		pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get pod %s: %w", name, err)
		}
		pod.ManagedFields = nil
		result["pod"] = pod

	case "service", "svc":
		service, err := c.clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get service %s: %w", name, err)
		}
		service.ManagedFields = nil
		result["service"] = service

	case "statefulset", "sts":
		sts, err := c.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get statefulset %s: %w", name, err)
		}
		sts.ManagedFields = nil
		result["statefulset"] = sts

	case "daemonset", "ds":
		ds, err := c.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get daemonset %s: %w", name, err)
		}
		ds.ManagedFields = nil
		result["daemonset"] = ds

	case "hpa", "horizontalpodautoscaler":
		hpa, err := c.clientset.AutoscalingV2().HorizontalPodAutoscalers(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get hpa %s: %w", name, err)
		}
		hpa.ManagedFields = nil
		result["hpa"] = hpa

	case "pvc", "persistentvolumeclaim":
		pvc, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to get pvc %s: %w", name, err)
		}
		pvc.ManagedFields = nil
		result["pvc"] = pvc

	default:
		// Try as CRD
		obj, err := c.getCustomResource(ctx, namespace, kind, name)
		if err != nil {
			return "", fmt.Errorf("unknown resource type or failed to get CRD %s: %w", kind, err)
		}
		obj.SetManagedFields(nil)
		result[kind] = obj.Object
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s/%s: %w", kind, name, err)
	}
	return string(out), nil
}

func (c *Client) getPodsForDeployment(ctx context.Context, namespace string, deployment *appsv1.Deployment) (*corev1.PodList, error) {
	if deployment.Spec.Selector == nil {
		return &corev1.PodList{}, nil
	}
	listOptions := metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(deployment.Spec.Selector),
	}
	return c.clientset.CoreV1().Pods(namespace).List(ctx, listOptions)
}

// customResources lists the CRDs GetResource knows how to address.
var customResources = map[string]schema.GroupVersionResource{
	"vaultstaticsecret": {Group: "secrets.hashicorp.com", Version: "v1beta1", Resource: "vaultstaticsecrets"},
	"certificate":       {Group: "cert-manager.io", Version: "v1", Resource: "certificates"},
	"servicemonitor":    {Group: "monitoring.coreos.com", Version: "v1", Resource: "servicemonitors"},
}

func (c *Client) getCustomResource(ctx context.Context, namespace, resourceType, resourceName string) (*unstructured.Unstructured, error) {
	gvr, ok := customResources[strings.ToLower(resourceType)]
	if !ok {
		return nil, fmt.Errorf("unknown custom resource type: %s", resourceType)
	}
	if c.dynamic == nil {
		return nil, fmt.Errorf("dynamic client not configured")
	}
	return c.dynamic.Resource(gvr).Namespace(namespace).Get(ctx, resourceName, metav1.GetOptions{})
}
