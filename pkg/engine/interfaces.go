package engine

import (
	"context"
)

// Deployer is the boundary to the external deployment helper. It issues
// remote operations against the orchestration system that hosts the
// deployable units. Implementations must tolerate concurrent independent
// calls from multiple pipeline invocations.
type Deployer interface {
	// Deploy deploys a backend unit with the given specification.
	// Re-deploying an already-matching application is a no-op.
	Deploy(ctx context.Context, spec DeploySpec) error

	// GetConfig returns the live charm configuration of an application.
	GetConfig(ctx context.Context, app string) (map[string]string, error)

	// SetConfig updates charm configuration options on a live application.
	SetConfig(ctx context.Context, app string, values map[string]string) error

	// ResetConfig resets the given charm options to their defaults.
	ResetConfig(ctx context.Context, app string, keys []string) error

	// Integrate establishes the relation between two applications on the
	// given endpoints. Integrating an existing relation is a no-op.
	Integrate(ctx context.Context, appA, endpointA, appB, endpointB string) error

	// Remove removes an application and its units. Removing an absent
	// application returns a not-found error.
	Remove(ctx context.Context, app string) error

	// Status returns the live status of an application, or a not-found
	// error if the application is not deployed.
	Status(ctx context.Context, app string) (*AppStatus, error)

	// EnsureSecret publishes credential material under the given secret
	// name, creating or updating it, and grants the application access.
	// Charm configuration carries only the returned indirect reference.
	EnsureSecret(ctx context.Context, app, name string, content map[string]string) (string, error)
}

// DeploySpec describes a deployable unit to be created by the deployment
// helper. Sensitive configuration values must already be resolved to
// indirect secret references before they reach the spec.
type DeploySpec struct {
	// App is the application name, equal to the backend instance name.
	App string `json:"app"`

	// Charm is the charm providing the backend integration.
	Charm string `json:"charm"`

	// Channel is the charm channel to deploy from.
	Channel string `json:"channel"`

	// Revision pins a charm revision; zero means latest in channel.
	Revision int `json:"revision,omitempty"`

	// Base is the operating system base for the unit.
	Base string `json:"base,omitempty"`

	// NumUnits is the number of units to deploy.
	NumUnits int `json:"num_units"`

	// Config are the charm configuration options.
	Config map[string]string `json:"config,omitempty"`
}

// AppStatus is the live status of a deployed application.
type AppStatus struct {
	// App is the application name.
	App string `json:"app"`

	// Charm is the charm the application runs.
	Charm string `json:"charm"`

	// Workload is the workload status (active, waiting, blocked, error).
	Workload BackendStatus `json:"workload"`

	// Agent is the unit agent status; "idle" means settled.
	Agent string `json:"agent"`

	// Message is the workload status message, if any.
	Message string `json:"message,omitempty"`

	// Relations maps local endpoint names to the remote applications
	// related on them.
	Relations map[string][]string `json:"relations,omitempty"`

	// Config is the live charm configuration, when requested.
	Config map[string]string `json:"config,omitempty"`
}

// Ready reports whether the application is active and settled.
func (s *AppStatus) Ready() bool {
	return s.Workload == BackendStatusActive && s.Agent == "idle"
}

// RelatedTo reports whether the application has a relation to remote on
// the given local endpoint.
func (s *AppStatus) RelatedTo(endpoint, remote string) bool {
	for _, r := range s.Relations[endpoint] {
		if r == remote {
			return true
		}
	}
	return false
}

// Record is the durable registration record for a backend instance. A
// record exists if and only if the backend completed at least the
// integrate step of its deployment pipeline.
type Record struct {
	// Name is the primary key, globally unique within a deployment.
	Name string `json:"name"`

	// Type is the backend type tag.
	Type string `json:"type"`

	// Principal is the principal volume application the backend
	// integrates with.
	Principal string `json:"principal"`

	// ModelUUID is the model the backend unit is deployed in.
	ModelUUID string `json:"model-uuid"`

	// Config is the backend configuration as an opaque JSON blob with
	// credential literals masked.
	Config string `json:"config"`
}

// RegistrationStore is the boundary to the cluster-consistent store of
// registration records. The engine treats it purely as a durable
// name-keyed collection; replication is the store's concern.
type RegistrationStore interface {
	// ListRegistrations returns all records, optionally filtered by
	// principal ("" means all).
	ListRegistrations(ctx context.Context, principal string) ([]Record, error)

	// GetRegistration returns the record for name, or a not-found error.
	GetRegistration(ctx context.Context, name string) (*Record, error)

	// CreateRegistration persists a new record. Creating a duplicate
	// name returns a conflict error.
	CreateRegistration(ctx context.Context, rec Record) error

	// UpdateRegistration replaces an existing record.
	UpdateRegistration(ctx context.Context, rec Record) error

	// DeleteRegistration removes the record for name. Deleting an absent
	// record returns a not-found error; callers that need idempotent
	// delete treat that as success.
	DeleteRegistration(ctx context.Context, name string) error
}
