package rgw

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
)

// KubeRunner executes radosgw-admin inside a toolbox pod (rook-ceph-tools on
// Rook clusters), where the keyring and mon endpoints live. This is how the
// admin CLI is reached when the collector itself runs outside the Ceph hosts.
type KubeRunner struct {
	clientset  *kubernetes.Clientset
	restConfig *rest.Config
	namespace  string
	selector   string
	container  string
	binary     string

	mu  sync.Mutex
	pod string // cached toolbox pod name, invalidated on exec failure
}

// NewKubeRunner creates a runner that execs into the first running pod
// matching selector in namespace.
func NewKubeRunner(kubeconfig, namespace, selector, container string) (*KubeRunner, error) {
	restConfig, err := loadRestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return &KubeRunner{
		clientset:  clientset,
		restConfig: restConfig,
		namespace:  namespace,
		selector:   selector,
		container:  container,
		binary:     "radosgw-admin",
	}, nil
}

// loadRestConfig tries in-cluster config first, then the given (or default)
// kubeconfig file.
func loadRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig from %s: %w", kubeconfig, err)
	}
	return cfg, nil
}

// toolboxPod resolves and caches the pod to exec into.
func (r *KubeRunner) toolboxPod(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pod != "" {
		return r.pod, nil
	}

	pods, err := r.clientset.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: r.selector,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list toolbox pods (%s in %s): %w", r.selector, r.namespace, err)
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Status.Phase == corev1.PodRunning {
			r.pod = pod.Name
			slog.Debug("resolved toolbox pod",
				slog.String("pod", pod.Name),
				slog.String("namespace", r.namespace),
			)
			return r.pod, nil
		}
	}

	return "", fmt.Errorf("no running pod matches %q in namespace %q", r.selector, r.namespace)
}

// Run executes the command through the Kubernetes exec subresource.
func (r *KubeRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	pod, err := r.toolboxPod(ctx)
	if err != nil {
		return nil, err
	}

	req := r.clientset.CoreV1().RESTClient().
		Post().
		Resource("pods").
		Namespace(r.namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: r.container,
			Command:   append([]string{r.binary}, args...),
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(r.restConfig, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to create exec stream: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		// The pod may have been rescheduled; re-resolve on the next call.
		r.mu.Lock()
		r.pod = ""
		r.mu.Unlock()

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("exec %s %s in pod %s failed: %s", r.binary, firstArg(args), pod, msg)
	}

	return stdout.Bytes(), nil
}
