// Package steps holds the deployment scripts and the registry that selects
// which of them run.
package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/popdeploy/internal/deployments"
)

var (
	// ErrUnknownTag is returned when a requested tag matches no step.
	ErrUnknownTag = errors.New("popdeploy: unknown tag")
	// ErrDependencyCycle is returned when step dependencies form a loop.
	ErrDependencyCycle = errors.New("popdeploy: dependency cycle")
	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = errors.New("popdeploy: duplicate step")
	// ErrMissingAccount is returned when a step needs a role the account
	// map does not contain.
	ErrMissingAccount = errors.New("popdeploy: named account not configured")
)

// NamedAccounts resolves role names to addresses for the current network.
type NamedAccounts interface {
	NamedAccounts(ctx context.Context) (map[string]common.Address, error)
}

// Deployer is the deploy capability handed to steps.
type Deployer interface {
	Deploy(ctx context.Context, name string, opts deployments.DeployOptions) (*deployments.Deployment, error)
}

// Env is passed to every step.
type Env struct {
	Accounts    NamedAccounts
	Deployments Deployer
	Network     string
	Logger      *slog.Logger
}

// Step is one unit of a deployment run.
type Step struct {
	Name string
	Tags []string
	// Dependencies are tags whose steps must run first.
	Dependencies []string
	// Optional steps run only when one of their tags is requested.
	Optional bool
	Run      func(ctx context.Context, env Env) error
}

// HasTag reports whether the step carries tag.
func (s Step) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// Registry maps step names and tags to steps, in registration order.
type Registry struct {
	steps []Step
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a step.
func (r *Registry) Register(s Step) error {
	if s.Name == "" || s.Run == nil {
		return fmt.Errorf("step requires a name and a run function")
	}
	for _, existing := range r.steps {
		if existing.Name == s.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateStep, s.Name)
		}
	}
	r.steps = append(r.steps, s)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(s Step) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Steps returns all registered steps.
func (r *Registry) Steps() []Step {
	return slices.Clone(r.steps)
}

// Select returns the steps to run for tags, dependencies first. With no tags
// every non-optional step is selected.
func (r *Registry) Select(tags []string) ([]Step, error) {
	var roots []Step
	if len(tags) == 0 {
		for _, s := range r.steps {
			if !s.Optional {
				roots = append(roots, s)
			}
		}
	} else {
		for _, tag := range tags {
			if !r.hasTag(tag) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
			}
		}
		for _, s := range r.steps {
			if slices.ContainsFunc(tags, s.HasTag) {
				roots = append(roots, s)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.steps))
	var ordered []Step

	var visit func(s Step, path []string) error
	visit = func(s Step, path []string) error {
		switch state[s.Name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(append(path, s.Name), " -> "))
		}
		state[s.Name] = visiting
		for _, dep := range s.Dependencies {
			if !r.hasTag(dep) {
				return fmt.Errorf("%w: %s (dependency of %s)", ErrUnknownTag, dep, s.Name)
			}
			for _, d := range r.steps {
				if !d.HasTag(dep) {
					continue
				}
				if err := visit(d, append(path, s.Name)); err != nil {
					return err
				}
			}
		}
		state[s.Name] = done
		ordered = append(ordered, s)
		return nil
	}

	for _, s := range roots {
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (r *Registry) hasTag(tag string) bool {
	for _, s := range r.steps {
		if s.HasTag(tag) {
			return true
		}
	}
	return false
}

// Runner executes selected steps in order.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRunner creates a runner over registry. A nil logger uses slog.Default.
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, logger: logger}
}

// Run executes the steps selected by tags and stops at the first failure.
func (r *Runner) Run(ctx context.Context, env Env, tags []string) error {
	selected, err := r.registry.Select(tags)
	if err != nil {
		return err
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}

	r.logger.Info("starting deployment run",
		slog.String("network", env.Network),
		slog.Int("steps", len(selected)),
	)

	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.logger.Info("running step", slog.String("step", s.Name))
		if err := s.Run(ctx, env); err != nil {
			r.logger.Error("step failed",
				slog.String("step", s.Name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("step %s: %w", s.Name, err)
		}
		r.logger.Debug("step complete", slog.String("step", s.Name))
	}

	r.logger.Info("deployment run complete", slog.String("network", env.Network))
	return nil
}
