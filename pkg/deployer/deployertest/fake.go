// Package deployertest provides an in-memory fake of the deployment
// helper boundary for tests.
package deployertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// Fake is an in-memory engine.Deployer. It tracks every boundary call
// so tests can assert on call counts and ordering, and lets tests
// inject failures per operation.
type Fake struct {
	mu sync.Mutex

	// Apps holds the live applications by name.
	Apps map[string]*engine.AppStatus

	// Configs holds live charm configuration per application.
	Configs map[string]map[string]string

	// Secrets holds published secret content keyed by secret name.
	Secrets map[string]map[string]string

	// SettleAfter is the number of Status calls an application reports
	// waiting before flipping to active/idle. Zero means immediately
	// ready.
	SettleAfter int

	// FailWith injects an error for an operation name (deploy, status,
	// integrate, remove, ensure_secret, get_config, set_config,
	// reset_config).
	FailWith map[string]error

	// Calls is the ordered log of operations performed.
	Calls []string

	statusCalls map[string]int
}

// New creates an empty fake deployer.
func New() *Fake {
	return &Fake{
		Apps:        make(map[string]*engine.AppStatus),
		Configs:     make(map[string]map[string]string),
		Secrets:     make(map[string]map[string]string),
		FailWith:    make(map[string]error),
		statusCalls: make(map[string]int),
	}
}

// CallCount returns how many times the named operation ran.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) record(op string) error {
	f.Calls = append(f.Calls, op)
	if err, ok := f.FailWith[op]; ok {
		return err
	}
	return nil
}

// Deploy implements engine.Deployer.
func (f *Fake) Deploy(_ context.Context, spec engine.DeploySpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("deploy"); err != nil {
		return err
	}
	if _, ok := f.Apps[spec.App]; ok {
		return engine.NewConflictError(fmt.Sprintf("application %s already exists", spec.App), nil)
	}
	workload, agent := engine.BackendStatusActive, "idle"
	if f.SettleAfter > 0 {
		workload, agent = engine.BackendStatusWaiting, "executing"
	}
	f.Apps[spec.App] = &engine.AppStatus{
		App:       spec.App,
		Charm:     spec.Charm,
		Workload:  workload,
		Agent:     agent,
		Relations: make(map[string][]string),
	}
	f.Configs[spec.App] = copyMap(spec.Config)
	return nil
}

// GetConfig implements engine.Deployer.
func (f *Fake) GetConfig(_ context.Context, app string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_config"); err != nil {
		return nil, err
	}
	cfg, ok := f.Configs[app]
	if !ok {
		return nil, engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", app), nil)
	}
	return copyMap(cfg), nil
}

// SetConfig implements engine.Deployer.
func (f *Fake) SetConfig(_ context.Context, app string, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set_config"); err != nil {
		return err
	}
	cfg, ok := f.Configs[app]
	if !ok {
		return engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", app), nil)
	}
	for k, v := range values {
		cfg[k] = v
	}
	return nil
}

// ResetConfig implements engine.Deployer.
func (f *Fake) ResetConfig(_ context.Context, app string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reset_config"); err != nil {
		return err
	}
	cfg, ok := f.Configs[app]
	if !ok {
		return engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", app), nil)
	}
	for _, k := range keys {
		delete(cfg, k)
	}
	return nil
}

// Integrate implements engine.Deployer.
func (f *Fake) Integrate(_ context.Context, appA, endpointA, appB, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("integrate"); err != nil {
		return err
	}
	st, ok := f.Apps[appA]
	if !ok {
		return engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", appA), nil)
	}
	for _, r := range st.Relations[endpointA] {
		if r == appB {
			return nil
		}
	}
	st.Relations[endpointA] = append(st.Relations[endpointA], appB)
	return nil
}

// Remove implements engine.Deployer.
func (f *Fake) Remove(_ context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove"); err != nil {
		return err
	}
	if _, ok := f.Apps[app]; !ok {
		return engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", app), nil)
	}
	delete(f.Apps, app)
	delete(f.Configs, app)
	return nil
}

// Status implements engine.Deployer.
func (f *Fake) Status(_ context.Context, app string) (*engine.AppStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("status"); err != nil {
		return nil, err
	}
	st, ok := f.Apps[app]
	if !ok {
		return nil, engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", app), nil)
	}
	f.statusCalls[app]++
	if f.SettleAfter > 0 && f.statusCalls[app] >= f.SettleAfter {
		st.Workload = engine.BackendStatusActive
		st.Agent = "idle"
	}
	out := *st
	out.Relations = make(map[string][]string, len(st.Relations))
	for k, v := range st.Relations {
		out.Relations[k] = append([]string(nil), v...)
	}
	return &out, nil
}

// EnsureSecret implements engine.Deployer. Like the real helper, names
// carrying a reference prefix are rejected.
func (f *Fake) EnsureSecret(_ context.Context, _, name string, content map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ensure_secret"); err != nil {
		return "", err
	}
	if strings.Contains(name, ":") {
		return "", engine.NewDeploymentError(fmt.Sprintf("invalid secret name %q", name), nil)
	}
	f.Secrets[name] = copyMap(content)
	return engine.SecretURI(name), nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
