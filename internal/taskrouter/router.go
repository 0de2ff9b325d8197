package taskrouter

import (
	"strings"
)

// RoutingTarget is the queue/exchange/routing-key triple assigned to a task
type RoutingTarget struct {
	Queue      string `json:"queue"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// Config holds router configuration, built once at process start
type Config struct {
	Apps         []string
	DefaultQueue string
}

// Router maps a task's application namespace to a dedicated queue so a
// flood of one app's tasks cannot starve another's. The queue table is
// fixed after construction; Route performs no I/O and needs no locking.
type Router struct {
	queues       map[string]RoutingTarget
	defaultQueue string
}

// NewRouter creates a router with one queue per configured app
func NewRouter(cfg Config) *Router {
	queues := make(map[string]RoutingTarget, len(cfg.Apps))
	for _, app := range cfg.Apps {
		queueName := app + "_queue"
		queues[app] = RoutingTarget{
			Queue:      queueName,
			Exchange:   queueName,
			RoutingKey: queueName,
		}
	}

	defaultQueue := cfg.DefaultQueue
	if defaultQueue == "" {
		defaultQueue = "default"
	}

	return &Router{
		queues:       queues,
		defaultQueue: defaultQueue,
	}
}

// AppName extracts the application namespace from a task name
// (e.g. "pfsense.tasks.sync_dhcp_routes" -> "pfsense")
func AppName(taskName string) string {
	if taskName == "" {
		return ""
	}
	if i := strings.IndexByte(taskName, '.'); i >= 0 {
		return taskName[:i]
	}
	return taskName
}

// Route returns the routing target for a task, or nil when the task's
// app is not configured and the caller should fall back to DefaultQueue
func (r *Router) Route(taskName string) *RoutingTarget {
	app := AppName(taskName)
	if app == "" {
		return nil
	}
	if target, ok := r.queues[app]; ok {
		return &target
	}
	return nil
}

// DefaultQueue returns the fallback queue name
func (r *Router) DefaultQueue() string {
	return r.defaultQueue
}

// Queues returns a snapshot of all configured routing targets keyed by app
func (r *Router) Queues() map[string]RoutingTarget {
	out := make(map[string]RoutingTarget, len(r.queues))
	for app, target := range r.queues {
		out[app] = target
	}
	return out
}
