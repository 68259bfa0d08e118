package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/system"
)

// Check loads the configuration and registry and reports what was found.
func (a *App) Check(ctx context.Context) error {
	ctx = a.Context(ctx)
	env, err := a.system.Init(ctx)
	if err != nil {
		return err
	}
	reg := env.Registry
	var enabled int
	for _, d := range reg.Descriptors() {
		if d.Enabled() {
			enabled++
		}
	}
	fmt.Fprintf(a.outW, "OK: %d interfaces, %d implementations (%d enabled)\n",
		len(reg.Interfaces()), len(reg.Descriptors()), enabled)
	if missing := reg.MissingModules(); len(missing) > 0 {
		fmt.Fprintf(a.outW, "missing modules: %v\n", missing)
	}
	return nil
}

// List prints every implementation with its interface, binding and state.
func (a *App) List(ctx context.Context) error {
	ctx = a.Context(ctx)
	env, err := a.system.Init(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IMPLEMENTATION\tINTERFACE\tBINDING\tLEVEL\tENABLED\tMODULE")
	for _, d := range env.Registry.Descriptors() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", d.ImplID, d.InterfaceID, d.Binding, d.Level, d.Enabled(), d.Module)
	}
	return tw.Flush()
}

// SetEnabled enables or disables the given implementations and saves.
func (a *App) SetEnabled(ctx context.Context, ids []string, enabled bool) error {
	ctx = a.Context(ctx)
	if len(ids) == 0 {
		return fmt.Errorf("no implementation ids given")
	}
	env, err := a.system.Init(ctx)
	if err != nil {
		return err
	}
	reg := env.Registry
	for _, id := range ids {
		if enabled {
			err = reg.EnableImplementation(id)
		} else {
			err = reg.DisableImplementation(id)
		}
		if err != nil {
			return err
		}
	}
	if err := reg.Save(ctx); err != nil {
		return err
	}
	a.logger.Info("Implementations updated.", "ids", ids, "enabled", enabled)
	return nil
}

// Serve initialises the system and serves the health and metrics endpoints
// until ctx is done. Each value on reload triggers a full reset. A failed
// load is logged and leaves the system in error until the next reload.
func (a *App) Serve(ctx context.Context, reload <-chan struct{}) error {
	ctx = a.Context(ctx)
	if port := a.config.HealthcheckPort; port > 0 {
		a.startHealthcheckServer(port)
	} else {
		a.logger.Warn("Health check server not started: disabled")
	}

	if _, err := a.system.Init(ctx); err != nil {
		a.logger.Error("Initial configuration failed.", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down.", "state", a.system.State())
			return a.closeHealthcheckServer(ctx)
		case <-reload:
			a.logger.Info("Reloading configuration.")
			if _, err := a.system.Reset(ctx); err != nil {
				a.logger.Error("Reload failed.", "error", err)
			}
		}
	}
}

// Lookup resolves a kvp or testing interface against the published
// registry. Request handlers use it with a context carrying the Env.
func Lookup(ctx context.Context, interfaceID string, params map[string]any) (*component.Instance, error) {
	env, ok := system.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no environment in context")
	}
	return env.Registry.FindAndBind(ctx, interfaceID, params)
}
