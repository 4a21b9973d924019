package redisbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrUnknownBackend is returned for a backend name that was not configured.
var ErrUnknownBackend = errors.New("unknown backend")

// Endpoint is the resolved connection of one backend.
type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// Registry builds one Client per backend at startup and shares one Bus
// between all backends on the same Redis URL.
type Registry struct {
	buses   map[string]*Bus
	clients map[string]*Client
	logger  *slog.Logger
}

// NewRegistry dials one Bus per distinct URL in endpoints. Nothing is
// connected until Start.
func NewRegistry(endpoints map[string]Endpoint, logger *slog.Logger, opts ...ClientOption) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		buses:   make(map[string]*Bus),
		clients: make(map[string]*Client),
		logger:  logger,
	}
	for _, name := range sortedNames(endpoints) {
		ep := endpoints[name]
		bus, ok := r.buses[ep.URL]
		if !ok {
			var err error
			bus, err = Dial(ep.URL, logger)
			if err != nil {
				_ = r.Close()
				return nil, fmt.Errorf("backend %s: %w", name, err)
			}
			r.buses[ep.URL] = bus
		}
		clientOpts := append([]ClientOption{WithLogger(logger.With("backend", name))}, opts...)
		r.clients[name] = NewClient(name, bus, ep.Timeout, clientOpts...)
	}
	return r, nil
}

// Start starts every bus.
func (r *Registry) Start(ctx context.Context) error {
	for url, bus := range r.buses {
		if err := bus.Start(ctx); err != nil {
			return fmt.Errorf("start broker %s: %w", redactURL(url), err)
		}
	}
	return nil
}

// Client returns the client for a configured backend.
func (r *Registry) Client(name string) (*Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return c, nil
}

// Backends returns the configured backend names in order.
func (r *Registry) Backends() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bus returns the bus serving a backend.
func (r *Registry) Bus(name string) (*Bus, error) {
	c, err := r.Client(name)
	if err != nil {
		return nil, err
	}
	return c.bus, nil
}

// Ping checks every distinct broker connection.
func (r *Registry) Ping(ctx context.Context) error {
	for url, bus := range r.buses {
		if err := bus.Ping(ctx); err != nil {
			return fmt.Errorf("broker %s: %w", redactURL(url), err)
		}
	}
	return nil
}

// Close closes every bus.
func (r *Registry) Close() error {
	var errs []error
	for _, bus := range r.buses {
		errs = append(errs, bus.Close())
	}
	return errors.Join(errs...)
}

func sortedNames(m map[string]Endpoint) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
