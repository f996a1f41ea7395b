// Package health aggregates component checks into one service status.
//
// Information Hiding:
// - Status ordering and the optional-component cap hidden
// - Checks run concurrently, each under its own deadline
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/agentrag/agent"
	"github.com/richinex/agentrag/internal/lifecycle"
	"github.com/richinex/agentrag/retrieval"
	"github.com/richinex/agentrag/storage"
)

// Status is the health of a component or of the whole service.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the worse of s and other.
func (s Status) Worse(other Status) Status {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// Component is the outcome of one check. It is recomputed on every check.
type Component struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Check probes one component. An optional component can pull the overall
// status down to degraded at most.
type Check struct {
	Name     string
	Required bool
	Run      func(ctx context.Context) Component
}

// Result pairs a check's name and weight with its outcome.
type Result struct {
	Name     string
	Required bool
	Component
}

// Aggregate returns the worst status among required components, with
// optional components capped at degraded. No results means healthy.
func Aggregate(results []Result) Status {
	overall := Healthy
	for _, r := range results {
		s := r.Status
		if !r.Required && s == Unhealthy {
			s = Degraded
		}
		overall = overall.Worse(s)
	}
	return overall
}

// Report is the body of GET /health.
type Report struct {
	Status     Status               `json:"status"`
	Components map[string]Component `json:"components"`
	Version    string               `json:"version"`
	Timestamp  time.Time            `json:"timestamp"`
}

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Checker runs a fixed set of checks.
type Checker struct {
	version string
	timeout time.Duration
	checks  []Check
}

// NewChecker creates a checker reporting version.
func NewChecker(version string, checks ...Check) *Checker {
	return &Checker{version: version, timeout: DefaultTimeout, checks: checks}
}

// Check runs every check concurrently and aggregates the outcome.
func (c *Checker) Check(ctx context.Context) Report {
	results := make([]Result, len(c.checks))
	var g errgroup.Group
	for i, check := range c.checks {
		g.Go(func() error {
			results[i] = Result{Name: check.Name, Required: check.Required, Component: c.run(ctx, check)}
			return nil
		})
	}
	_ = g.Wait()

	components := make(map[string]Component, len(results))
	for _, r := range results {
		components[r.Name] = r.Component
	}
	return Report{
		Status:     Aggregate(results),
		Components: components,
		Version:    c.version,
		Timestamp:  time.Now().UTC(),
	}
}

func (c *Checker) run(ctx context.Context, check Check) (comp Component) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			comp = Component{Status: Unhealthy, Message: fmt.Sprintf("%s check panicked: %v", check.Name, r)}
		}
	}()
	return check.Run(ctx)
}

// AgentStatus is what the agent check reads.
type AgentStatus interface {
	State() lifecycle.State
	Err() error
	Info() agent.Info
}

// AgentCheck reports the agent service. It is required.
func AgentCheck(svc AgentStatus) Check {
	return Check{Name: "agent", Required: true, Run: func(context.Context) Component {
		switch svc.State() {
		case lifecycle.Ready:
			info := svc.Info()
			return Component{
				Status:  Healthy,
				Message: "Agent service operational",
				Details: map[string]any{"model": info.Model, "tools_count": info.ToolsCount},
			}
		case lifecycle.Failed:
			return Component{Status: Unhealthy, Message: fmt.Sprintf("Agent service error: %v", svc.Err())}
		default:
			return Component{Status: Degraded, Message: "Agent service not initialized"}
		}
	}}
}

// RetrievalStatus is what the retrieval check reads.
type RetrievalStatus interface {
	Ready() bool
	Info() retrieval.Info
}

// RetrievalCheck reports the document index as the optional "faiss"
// component.
func RetrievalCheck(svc RetrievalStatus) Check {
	return Check{Name: "faiss", Required: false, Run: func(context.Context) Component {
		if svc == nil || !svc.Ready() {
			return Component{Status: Degraded, Message: "FAISS service not initialized (optional)"}
		}
		info := svc.Info()
		return Component{
			Status:  Healthy,
			Message: "FAISS service operational",
			Details: map[string]any{"tool_name": info.ToolName, "cache_enabled": info.CacheEnabled},
		}
	}}
}

// Database is what the database check reads.
type Database interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (storage.CustomerCount, error)
	Location() string
}

// DatabaseCheck reports the CRM database. It is required.
func DatabaseCheck(db Database) Check {
	return Check{Name: "database", Required: true, Run: func(ctx context.Context) Component {
		n, err := probe(ctx, db)
		if err != nil {
			return Component{Status: Unhealthy, Message: fmt.Sprintf("Database error: %v", err)}
		}
		return Component{
			Status:  Healthy,
			Message: "Database accessible",
			Details: map[string]any{"crm_customers": n.Total, "database_path": db.Location()},
		}
	}}
}

func probe(ctx context.Context, db Database) (storage.CustomerCount, error) {
	if err := db.Ping(ctx); err != nil {
		return storage.CustomerCount{}, err
	}
	return db.Count(ctx)
}
