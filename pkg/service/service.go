// Package service composes the backend registry, step pipelines,
// deployment helper, and registration store into the orchestration
// operations: add, remove, list, get, and live configuration
// management.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/names/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/overcast-cloud/backendctl/pkg/backends"
	"github.com/overcast-cloud/backendctl/pkg/engine"
	"github.com/overcast-cloud/backendctl/pkg/policy"
	"github.com/overcast-cloud/backendctl/pkg/steps"
	"github.com/overcast-cloud/backendctl/pkg/telemetry"
)

// DefaultPrincipal is the principal volume application backends
// integrate with.
const DefaultPrincipal = "cinder-volume"

// Service orchestrates storage backend lifecycles. Concurrent calls on
// independent backends are safe; concurrent add/remove on the same name
// is a documented race where the last persisted registration wins.
type Service struct {
	registry  *backends.Registry
	deployer  engine.Deployer
	store     engine.RegistrationStore
	policies  *policy.Engine
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	principal string
	endpoint  string
	modelUUID string
	wait      engine.RetryPolicy
}

// Option configures a Service.
type Option func(*Service)

// WithPolicyEngine gates add requests on policy evaluation.
func WithPolicyEngine(p *policy.Engine) Option {
	return func(s *Service) { s.policies = p }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer propagated to pipelines.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithPrincipal overrides the principal volume application and its
// relation endpoint.
func WithPrincipal(app, endpoint string) Option {
	return func(s *Service) {
		s.principal = app
		s.endpoint = endpoint
	}
}

// WithWaitPolicy overrides the readiness wait budget.
func WithWaitPolicy(p engine.RetryPolicy) Option {
	return func(s *Service) { s.wait = p }
}

// New creates a Service bound to a model.
func New(registry *backends.Registry, deployer engine.Deployer, store engine.RegistrationStore, modelUUID string, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		deployer:  deployer,
		store:     store,
		logger:    zerolog.Nop(),
		principal: DefaultPrincipal,
		endpoint:  DefaultPrincipal,
		modelUUID: modelUUID,
		wait:      engine.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TypeInfo describes a registered backend type.
type TypeInfo struct {
	// Type is the registry tag.
	Type string `json:"type"`

	// DisplayName is the human-readable backend name.
	DisplayName string `json:"display_name"`

	// Charm is the charm the type deploys.
	Charm string `json:"charm"`
}

// Types lists the registered backend types.
func (s *Service) Types() []TypeInfo {
	tags := s.registry.Types()
	infos := make([]TypeInfo, 0, len(tags))
	for _, tag := range tags {
		b, err := s.registry.Resolve(tag)
		if err != nil {
			continue
		}
		infos = append(infos, TypeInfo{
			Type:        b.Type(),
			DisplayName: b.DisplayName(),
			Charm:       b.Charm().Name,
		})
	}
	return infos
}

// Add validates, deploys, integrates, and registers a new backend. The
// registration is persisted after Integrate when wait is false, or
// after the backend reports ready when wait is true. Adding a name that
// is already registered fails with a conflict before any remote
// operation.
func (s *Service) Add(ctx context.Context, name, typeTag string, rawConfig []byte, wait bool) (*engine.BackendInfo, error) {
	if !names.IsValidApplication(name) {
		return nil, engine.NewValidationError(
			fmt.Sprintf("%s is not a valid backend name", name), nil).WithBackend(name)
	}

	b, err := s.registry.Resolve(typeTag)
	if err != nil {
		return nil, err
	}

	cfg := b.NewConfig()
	if err := engine.DecodeConfig(rawConfig, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if s.policies != nil {
		result, err := s.policies.Evaluate(ctx, policy.Input{
			Name:      name,
			Type:      typeTag,
			Principal: s.principal,
			Config:    cfg.CharmOptions(name),
		})
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		for _, w := range result.Warnings {
			s.logger.Warn().Str("backend", name).Msg(w)
		}
		if !result.Allowed {
			msgs := make([]string, 0, len(result.Violations))
			for _, v := range result.Violations {
				msgs = append(msgs, v.Message)
			}
			return nil, engine.NewValidationError(
				fmt.Sprintf("request denied by policy: %s", strings.Join(msgs, "; ")), nil).
				WithBackend(name).WithCode("POLICY_DENIED")
		}
	}

	sc := s.stepContext(name, b, cfg)
	pipeline := engine.NewPipeline("deploy-"+typeTag, b.DeploySteps(wait), s.pipelineOptions()...)

	if _, err := pipeline.Run(ctx, sc); err != nil {
		return nil, err
	}

	s.updateRegistrationsGauge(ctx)
	return s.Get(ctx, name)
}

// Remove tears down a backend and deletes its registration. Removing a
// name that exists neither as a record nor as a live deployment is a
// success: idempotence is a guarantee of this operation.
func (s *Service) Remove(ctx context.Context, name string) error {
	list := steps.DefaultRemoveSteps()
	var b engine.Backend

	rec, err := s.store.GetRegistration(ctx, name)
	if err == nil {
		if resolved, rerr := s.registry.Resolve(rec.Type); rerr == nil {
			b = resolved
			list = resolved.RemoveSteps()
		}
	} else if !engine.IsNotFound(err) {
		return err
	}

	sc := s.stepContext(name, b, nil)
	pipeline := engine.NewPipeline("remove", list, s.pipelineOptions()...)

	_, err = pipeline.Run(ctx, sc)
	if engine.IsNotFound(err) {
		s.logger.Debug().Str("backend", name).Msg("Backend already removed")
		return nil
	}
	if err != nil {
		return err
	}

	s.updateRegistrationsGauge(ctx)
	return nil
}

// List returns registered backends merged with a best-effort live
// status query, optionally filtered by principal; an empty principal
// lists every backend. When the live query fails the persisted data is
// returned marked stale instead of failing the call.
func (s *Service) List(ctx context.Context, principal string) ([]engine.BackendInfo, error) {
	records, err := s.store.ListRegistrations(ctx, principal)
	if err != nil {
		return nil, err
	}

	infos := make([]engine.BackendInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, s.buildInfo(ctx, rec))
	}
	return infos, nil
}

// Get returns one backend by name, merged with its live status. A name
// with no registration record is a not-found error.
func (s *Service) Get(ctx context.Context, name string) (*engine.BackendInfo, error) {
	rec, err := s.store.GetRegistration(ctx, name)
	if err != nil {
		return nil, err
	}
	info := s.buildInfo(ctx, *rec)
	return &info, nil
}

// ShowConfig returns the live charm configuration of a registered
// backend.
func (s *Service) ShowConfig(ctx context.Context, name string) (map[string]string, error) {
	if _, err := s.store.GetRegistration(ctx, name); err != nil {
		return nil, err
	}
	return s.deployer.GetConfig(ctx, name)
}

// SetConfig updates charm options on a live backend and folds the new
// values into the registration record. Credential options cannot be
// changed this way; they are managed through secrets.
func (s *Service) SetConfig(ctx context.Context, name string, values map[string]string) error {
	rec, err := s.store.GetRegistration(ctx, name)
	if err != nil {
		return err
	}
	for k := range values {
		if strings.HasSuffix(k, "-secret") || strings.Contains(k, "password") {
			return engine.NewValidationError(
				fmt.Sprintf("option %s carries credentials and cannot be set directly", k), nil).WithBackend(name)
		}
	}
	if err := s.deployer.SetConfig(ctx, name, values); err != nil {
		return err
	}
	return s.rewriteConfigBlob(ctx, rec, func(blob map[string]any) {
		for k, v := range values {
			blob[k] = v
		}
	})
}

// ResetConfig resets charm options on a live backend to their defaults
// and drops them from the registration record.
func (s *Service) ResetConfig(ctx context.Context, name string, keys []string) error {
	rec, err := s.store.GetRegistration(ctx, name)
	if err != nil {
		return err
	}
	if err := s.deployer.ResetConfig(ctx, name, keys); err != nil {
		return err
	}
	return s.rewriteConfigBlob(ctx, rec, func(blob map[string]any) {
		for _, k := range keys {
			delete(blob, k)
		}
	})
}

// rewriteConfigBlob applies mutate to the record's config blob and
// persists the result. An unparseable blob is left untouched; the live
// change already succeeded and the blob is opaque to the engine.
func (s *Service) rewriteConfigBlob(ctx context.Context, rec *engine.Record, mutate func(map[string]any)) error {
	var blob map[string]any
	if err := json.Unmarshal([]byte(rec.Config), &blob); err != nil {
		return nil
	}
	mutate(blob)
	data, err := json.Marshal(blob)
	if err != nil {
		return nil
	}
	rec.Config = string(data)
	return s.store.UpdateRegistration(ctx, *rec)
}

func (s *Service) stepContext(name string, b engine.Backend, cfg engine.BackendConfig) *engine.StepContext {
	return &engine.StepContext{
		Name:              name,
		Backend:           b,
		Config:            cfg,
		Principal:         s.principal,
		PrincipalEndpoint: s.endpoint,
		ModelUUID:         s.modelUUID,
		Deployer:          s.deployer,
		Store:             s.store,
		WaitPolicy:        s.wait,
	}
}

func (s *Service) pipelineOptions() []engine.PipelineOption {
	opts := []engine.PipelineOption{engine.WithLogger(s.logger)}
	if s.metrics != nil {
		opts = append(opts, engine.WithMetrics(s.metrics))
	}
	if s.tracer != nil {
		opts = append(opts, engine.WithTracer(s.tracer))
	}
	return opts
}

// buildInfo merges a registration record with the live status of its
// application.
func (s *Service) buildInfo(ctx context.Context, rec engine.Record) engine.BackendInfo {
	info := engine.BackendInfo{
		Name:      rec.Name,
		Type:      rec.Type,
		Principal: rec.Principal,
		ModelUUID: rec.ModelUUID,
		Status:    engine.BackendStatusUnknown,
		Config:    flattenConfig(rec.Config),
	}

	st, err := s.deployer.Status(ctx, rec.Name)
	if err != nil {
		s.logger.Warn().Err(err).Str("backend", rec.Name).Msg("Live status query failed, serving persisted data")
		info.Stale = true
		return info
	}
	info.Charm = st.Charm
	info.Status = st.Workload
	return info
}

// flattenConfig renders a persisted config blob as a flat string map
// for display. Unparseable blobs yield an empty map rather than an
// error; the blob is opaque to the engine.
func flattenConfig(blob string) map[string]string {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(blob), &decoded); err != nil {
		return nil
	}
	out := make(map[string]string, len(decoded))
	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			if val != "" {
				out[k] = val
			}
		case bool:
			out[k] = fmt.Sprintf("%v", val)
		case float64:
			out[k] = strings.TrimSuffix(fmt.Sprintf("%v", val), ".0")
		default:
			data, err := json.Marshal(val)
			if err == nil {
				out[k] = string(data)
			}
		}
	}
	return out
}

func (s *Service) updateRegistrationsGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	counter, ok := s.store.(interface {
		CountRegistrations(context.Context) (int, error)
	})
	if !ok {
		return
	}
	if n, err := counter.CountRegistrations(ctx); err == nil {
		s.metrics.SetRegistrations(n)
	}
}
