package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/modgate/backend/internal/models"
)

// Handler performs a command's effect and returns the message shown to the actor.
type Handler func(ctx context.Context, call *Call) (string, error)

// Call is everything a handler gets for one invocation.
type Call struct {
	Invocation *models.Invocation
	Descriptor *models.CommandDescriptor
	Audit      *ActionRecorder
}

type Command struct {
	Descriptor models.CommandDescriptor
	Handler    Handler
}

// Registry maps command names to handlers. It is populated at startup.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

func (r *Registry) Register(d models.CommandDescriptor, h Handler) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register %q: %w", d.Name, err)
	}
	if h == nil {
		return fmt.Errorf("register %q: nil handler", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[d.Name]; exists {
		return fmt.Errorf("register %q: command already registered", d.Name)
	}
	r.commands[d.Name] = &Command{Descriptor: d, Handler: h}
	return nil
}

func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// List returns descriptors sorted by name.
func (r *Registry) List() []models.CommandDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CommandDescriptor, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ApplyCooldowns sets the configured default on descriptors without an
// explicit cooldown and applies per-command overrides. Overrides naming an
// unknown command are an error.
func (r *Registry) ApplyCooldowns(defaultSeconds int, overrides map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range overrides {
		if _, ok := r.commands[name]; !ok {
			return fmt.Errorf("cooldown override for unknown command %q", name)
		}
	}
	for name, cmd := range r.commands {
		if secs, ok := overrides[name]; ok {
			cmd.Descriptor.WithCooldown(secs)
			continue
		}
		if cmd.Descriptor.CooldownSeconds == nil {
			cmd.Descriptor.WithCooldown(defaultSeconds)
		}
	}
	return nil
}
