package steps

import (
	"context"
	"fmt"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// ValidateExists confirms the target of a removal is known, either as a
// registration record or as a live deployment. Removal of a backend
// that exists in neither place fails with not-found; the caller decides
// whether that counts as success.
type ValidateExists struct{}

// NewValidateExists creates the removal guard.
func NewValidateExists() *ValidateExists { return &ValidateExists{} }

// Name implements engine.Step.
func (s *ValidateExists) Name() string { return "validate-exists" }

// Skip implements engine.Step. The guard always runs.
func (s *ValidateExists) Skip(_ context.Context, _ *engine.StepContext) (bool, error) {
	return false, nil
}

// Run implements engine.Step.
func (s *ValidateExists) Run(ctx context.Context, sc *engine.StepContext) error {
	_, err := sc.Store.GetRegistration(ctx, sc.Name)
	if err == nil {
		return nil
	}
	if !engine.IsNotFound(err) {
		return err
	}
	// No record. A live deployment left by an interrupted add still
	// qualifies for removal.
	_, err = sc.Deployer.Status(ctx, sc.Name)
	if err == nil {
		return nil
	}
	if engine.IsNotFound(err) {
		return engine.NewNotFoundError(
			fmt.Sprintf("storage backend %s is not registered", sc.Name), nil)
	}
	return err
}

// RemoveUnit removes the backend application and its units. The
// relation to the principal goes away with the application.
type RemoveUnit struct{}

// NewRemoveUnit creates the removal step.
func NewRemoveUnit() *RemoveUnit { return &RemoveUnit{} }

// Name implements engine.Step.
func (s *RemoveUnit) Name() string { return "remove-unit" }

// Skip implements engine.Step.
func (s *RemoveUnit) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	_, err := sc.Deployer.Status(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Run implements engine.Step.
func (s *RemoveUnit) Run(ctx context.Context, sc *engine.StepContext) error {
	err := sc.Deployer.Remove(ctx, sc.Name)
	if engine.IsNotFound(err) {
		// Raced with another removal.
		return nil
	}
	return err
}

// DeleteRegistration deletes the registration record.
type DeleteRegistration struct{}

// NewDeleteRegistration creates the deregistration step.
func NewDeleteRegistration() *DeleteRegistration { return &DeleteRegistration{} }

// Name implements engine.Step.
func (s *DeleteRegistration) Name() string { return "delete-registration" }

// Skip implements engine.Step.
func (s *DeleteRegistration) Skip(ctx context.Context, sc *engine.StepContext) (bool, error) {
	_, err := sc.Store.GetRegistration(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Run implements engine.Step.
func (s *DeleteRegistration) Run(ctx context.Context, sc *engine.StepContext) error {
	err := sc.Store.DeleteRegistration(ctx, sc.Name)
	if engine.IsNotFound(err) {
		return nil
	}
	return err
}

// DefaultRemoveSteps is the canonical remove-path step order shared by
// all backend types.
func DefaultRemoveSteps() []engine.Step {
	return []engine.Step{
		NewValidateExists(),
		NewRemoveUnit(),
		NewDeleteRegistration(),
	}
}
