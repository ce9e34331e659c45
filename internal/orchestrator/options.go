package orchestrator

import (
	"github.com/ShayCichocki/fanout/internal/balance"
	"github.com/ShayCichocki/fanout/internal/dispatch"
	"github.com/ShayCichocki/fanout/internal/logging"
	"github.com/ShayCichocki/fanout/pkg/models"
)

// Store persists plan records. Implementations must be safe for concurrent use.
type Store interface {
	SavePlan(plan *models.Plan) error
}

// RequiredConfig contains the minimal required configuration for an Orchestrator.
type RequiredConfig struct {
	// Engine executes sub-plans. If it also implements dispatch.EngineFactory,
	// each agent gets its own engine.
	Engine dispatch.Engine
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	logger      *logging.Logger
	balancer    *balance.Balancer
	dispatcher  *dispatch.Dispatcher
	store       Store
	eventBuffer int
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{eventBuffer: 100}
}

// WithLogger sets the logger shared by every stage.
func WithLogger(l *logging.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithBalancer sets a custom balancer (step weight, tier clearance).
func WithBalancer(b *balance.Balancer) Option {
	return func(o *orchestratorOptions) { o.balancer = b }
}

// WithDispatcher sets a custom dispatcher (timeout).
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(o *orchestratorOptions) { o.dispatcher = d }
}

// WithStore persists the parent plan and its sub-plans during Run.
func WithStore(s Store) Option {
	return func(o *orchestratorOptions) { o.store = s }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}
