package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	corelister "k8s.io/client-go/listers/core/v1"
	"k8s.io/client-go/tools/cache"
)

const (
	defaultAppName  = "config-service"
	defaultHTTPPort = 8080
	httpPortName    = "http"
)

var _ port.InstanceLister = (*Discovery)(nil)

type DiscoveryOptions struct {
	Namespace string
	// Selector 是 config-service Pod 的 label selector，例如 app=config-service。
	Selector string
	Resync   time.Duration
	// Port 在 Pod 未声明名为 http 的容器端口时使用。
	Port int32
}

// Discovery 通过 Pod informer 维护当前就绪的 config-service 实例列表。
type Discovery struct {
	client   kubernetes.Interface
	opts     DiscoveryOptions
	selector labels.Selector

	mu        sync.RWMutex
	instances []domain.ServiceInstance
	updatedAt time.Time

	ready  atomic.Bool
	lister corelister.PodNamespaceLister
}

func NewDiscovery(client kubernetes.Interface, opts DiscoveryOptions) (*Discovery, error) {
	selector, err := labels.Parse(opts.Selector)
	if err != nil {
		return nil, fmt.Errorf("parse discovery selector %q: %w", opts.Selector, err)
	}
	if opts.Port <= 0 {
		opts.Port = defaultHTTPPort
	}
	return &Discovery{client: client, opts: opts, selector: selector}, nil
}

func (d *Discovery) Ready() bool {
	return d.ready.Load()
}

// Instances 返回实例列表的副本，按 InstanceID 排序。
func (d *Discovery) Instances() []domain.ServiceInstance {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.ServiceInstance, len(d.instances))
	copy(out, d.instances)
	return out
}

func (d *Discovery) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// Start 开始 watch Pod，阻塞直到 ctx 取消。
func (d *Discovery) Start(ctx context.Context) error {
	factory := informers.NewSharedInformerFactoryWithOptions(
		d.client,
		d.opts.Resync,
		informers.WithNamespace(d.opts.Namespace),
		informers.WithTweakListOptions(func(o *metav1.ListOptions) {
			o.LabelSelector = d.selector.String()
		}),
	)

	podInformer := factory.Core().V1().Pods()
	d.lister = podInformer.Lister().Pods(d.opts.Namespace)

	handler := cache.ResourceEventHandlerFuncs{
		AddFunc:    func(_ interface{}) { d.rebuildIfReady() },
		UpdateFunc: func(_, _ interface{}) { d.rebuildIfReady() },
		DeleteFunc: func(_ interface{}) { d.rebuildIfReady() },
	}
	if _, err := podInformer.Informer().AddEventHandler(handler); err != nil {
		return fmt.Errorf("register pod event handler: %w", err)
	}

	factory.Start(ctx.Done())
	defer factory.Shutdown()

	for informerType, ok := range factory.WaitForCacheSync(ctx.Done()) {
		if !ok {
			slog.Warn("discovery: informer cache sync failed", "informer", informerType.String())
			return ctx.Err()
		}
	}

	d.rebuild()
	d.ready.Store(true)
	slog.Info("discovery: cache synced", "namespace", d.opts.Namespace, "selector", d.selector.String())

	<-ctx.Done()
	return nil
}

func (d *Discovery) rebuildIfReady() {
	if d.ready.Load() {
		d.rebuild()
	}
}

func (d *Discovery) rebuild() {
	pods, err := d.lister.List(d.selector)
	if err != nil {
		slog.Error("discovery: failed to list pods", "error", err)
		return
	}

	result := make([]domain.ServiceInstance, 0, len(pods))
	for _, pod := range pods {
		if !podReady(pod) || pod.Status.PodIP == "" {
			continue
		}
		appName := pod.Labels["app"]
		if appName == "" {
			appName = defaultAppName
		}
		result = append(result, domain.ServiceInstance{
			AppName:     appName,
			InstanceID:  pod.Name,
			HomepageURL: "http://" + pod.Status.PodIP + ":" + strconv.Itoa(int(d.podPort(pod))) + "/",
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].InstanceID < result[j].InstanceID })

	d.mu.Lock()
	d.instances = result
	d.updatedAt = time.Now()
	d.mu.Unlock()
}

func (d *Discovery) podPort(pod *corev1.Pod) int32 {
	for _, c := range pod.Spec.Containers {
		for _, p := range c.Ports {
			if p.Name == httpPortName {
				return p.ContainerPort
			}
		}
	}
	return d.opts.Port
}

func podReady(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}
