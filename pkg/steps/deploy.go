package steps

import (
	"context"
	"fmt"

	"github.com/overcast-cloud/backendctl/pkg/deployer"
	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// ValidateConfig checks the desired configuration against the backend
// schema. It never touches the deployment helper or the store, so a
// rejected add leaves no trace.
type ValidateConfig struct{}

// NewValidateConfig creates the validation step.
func NewValidateConfig() *ValidateConfig { return &ValidateConfig{} }

// Name implements engine.Step.
func (s *ValidateConfig) Name() string { return "validate-config" }

// Skip implements engine.Step. Validation always runs.
func (s *ValidateConfig) Skip(_ context.Context, _ *engine.StepContext) (bool, error) {
	return false, nil
}

// Run implements engine.Step.
func (s *ValidateConfig) Run(_ context.Context, sc *engine.StepContext) error {
	if sc.Config == nil {
		return engine.NewValidationError("no configuration provided", nil)
	}
	if err := sc.Config.Validate(); err != nil {
		if _, ok := err.(*engine.Error); ok {
			return err
		}
		return engine.NewValidationError("configuration is invalid", err)
	}
	return nil
}

// CheckNotExists guards against double registration. It probes the
// registration store: when no record exists the guard is satisfied and
// the step is skipped; when a record exists the step fails with a
// conflict before any remote operation is issued.
type CheckNotExists struct{}

// NewCheckNotExists creates the duplicate-registration guard.
func NewCheckNotExists() *CheckNotExists { return &CheckNotExists{} }

// Name implements engine.Step.
func (s *CheckNotExists) Name() string { return "check-not-exists" }

// Skip implements engine.Step.
func (s *CheckNotExists) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	_, err := sc.Store.GetRegistration(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Run implements engine.Step. Reached only when a record exists.
func (s *CheckNotExists) Run(_ context.Context, sc *engine.StepContext) error {
	return engine.NewConflictError(
		fmt.Sprintf("storage backend %s is already registered", sc.Name), nil)
}

// DeployUnit publishes the credential secrets and deploys the backend
// unit. Its skip probe consults the live deployment, so a re-run after
// an interrupted pipeline passes over an already-deployed unit even
// when the registration record was never written.
type DeployUnit struct{}

// NewDeployUnit creates the deployment step.
func NewDeployUnit() *DeployUnit { return &DeployUnit{} }

// Name implements engine.Step.
func (s *DeployUnit) Name() string { return "deploy-unit" }

// Skip implements engine.Step.
func (s *DeployUnit) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	_, err := sc.Deployer.Status(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Run implements engine.Step. Each credential group is published as one
// secret before the deploy; the reference the helper returns replaces
// the derived placeholder in the charm options, so the charm always
// sees the reference the secret is actually reachable under.
func (s *DeployUnit) Run(ctx context.Context, sc *engine.StepContext) error {
	opts := sc.Config.CharmOptions(sc.Name)
	for group, content := range sc.Config.SecretValues(sc.Name) {
		ref, err := sc.Deployer.EnsureSecret(ctx, sc.Name, engine.SecretName(sc.Name, group), content)
		if err != nil {
			return err
		}
		placeholder := engine.SecretRef(sc.Name, group)
		for k, v := range opts {
			if v == placeholder {
				opts[k] = ref
			}
		}
	}

	charm := sc.Backend.Charm()
	return sc.Deployer.Deploy(ctx, engine.DeploySpec{
		App:      sc.Name,
		Charm:    charm.Name,
		Channel:  charm.Channel,
		Revision: charm.Revision,
		Base:     charm.Base,
		NumUnits: 1,
		Config:   opts,
	})
}

// Integrate relates the backend unit to the principal volume
// application.
type Integrate struct{}

// NewIntegrate creates the integration step.
func NewIntegrate() *Integrate { return &Integrate{} }

// Name implements engine.Step.
func (s *Integrate) Name() string { return "integrate" }

// Skip implements engine.Step.
func (s *Integrate) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	st, err := sc.Deployer.Status(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.RelatedTo(sc.Backend.Endpoint(), sc.Principal), nil
}

// Run implements engine.Step.
func (s *Integrate) Run(ctx context.Context, sc *engine.StepContext) error {
	return sc.Deployer.Integrate(ctx, sc.Name, sc.Backend.Endpoint(), sc.Principal, sc.PrincipalEndpoint)
}

// WaitForReady blocks until the backend unit reports active and
// settled, bounded by the wait policy. Exhausting the budget yields a
// timeout-class failure: the deployment was issued and stays in place,
// it just is not healthy yet.
type WaitForReady struct{}

// NewWaitForReady creates the readiness wait step.
func NewWaitForReady() *WaitForReady { return &WaitForReady{} }

// Name implements engine.Step.
func (s *WaitForReady) Name() string { return "wait-ready" }

// Skip implements engine.Step.
func (s *WaitForReady) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	st, err := sc.Deployer.Status(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Ready(), nil
}

// Run implements engine.Step.
func (s *WaitForReady) Run(ctx context.Context, sc *engine.StepContext) error {
	return deployer.WaitForStatus(ctx, sc.Deployer, sc.Name, deployer.ActiveAndSettled, sc.WaitPolicy)
}

// PersistRegistration writes the registration record, with credential
// literals masked. A record left behind by a concurrent add wins the
// race: the step overwrites it so the store converges on the last
// successful pipeline.
type PersistRegistration struct{}

// NewPersistRegistration creates the persistence step.
func NewPersistRegistration() *PersistRegistration { return &PersistRegistration{} }

// Name implements engine.Step.
func (s *PersistRegistration) Name() string { return "persist-registration" }

// Skip implements engine.Step.
func (s *PersistRegistration) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	_, err := sc.Store.GetRegistration(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Run implements engine.Step.
func (s *PersistRegistration) Run(ctx context.Context, sc *engine.StepContext) error {
	blob, err := sc.Config.Persistable()
	if err != nil {
		return err
	}
	rec := engine.Record{
		Name:      sc.Name,
		Type:      sc.Backend.Type(),
		Principal: sc.Principal,
		ModelUUID: sc.ModelUUID,
		Config:    blob,
	}
	err = sc.Store.CreateRegistration(ctx, rec)
	if engine.IsConflict(err) {
		return sc.Store.UpdateRegistration(ctx, rec)
	}
	return err
}

// DefaultDeploySteps is the canonical add-path step order shared by all
// backend types. When wait is false the readiness wait is dropped and
// persistence follows integration directly.
func DefaultDeploySteps(wait bool) []engine.Step {
	steps := []engine.Step{
		NewValidateConfig(),
		NewCheckNotExists(),
		NewDeployUnit(),
		NewIntegrate(),
	}
	if wait {
		steps = append(steps, NewWaitForReady())
	}
	return append(steps, NewPersistRegistration())
}
