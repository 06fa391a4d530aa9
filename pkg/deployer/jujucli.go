package deployer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/overcast-cloud/backendctl/pkg/engine"
	"github.com/overcast-cloud/backendctl/pkg/telemetry"
)

// CommandRunner executes an external command and returns its combined
// stdout. Injected in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// JujuCLI implements engine.Deployer by driving the juju command line
// client against a single model.
type JujuCLI struct {
	model   string
	binary  string
	runner  CommandRunner
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// JujuCLIOption configures a JujuCLI deployer.
type JujuCLIOption func(*JujuCLI)

// WithRunner overrides the command runner.
func WithRunner(r CommandRunner) JujuCLIOption {
	return func(j *JujuCLI) { j.runner = r }
}

// WithCLILogger sets the deployer logger.
func WithCLILogger(logger zerolog.Logger) JujuCLIOption {
	return func(j *JujuCLI) { j.logger = logger }
}

// WithCLIMetrics sets the metrics collector for boundary calls.
func WithCLIMetrics(m *telemetry.Metrics) JujuCLIOption {
	return func(j *JujuCLI) { j.metrics = m }
}

// NewJujuCLI creates a deployer bound to the given model.
func NewJujuCLI(model string, opts ...JujuCLIOption) *JujuCLI {
	j := &JujuCLI{
		model:  model,
		binary: "juju",
		runner: defaultRunner,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Deploy implements engine.Deployer.
func (j *JujuCLI) Deploy(ctx context.Context, spec engine.DeploySpec) error {
	args := []string{"deploy", spec.Charm, spec.App, "--channel", spec.Channel}
	if spec.Revision > 0 {
		args = append(args, "--revision", strconv.Itoa(spec.Revision))
	}
	if spec.Base != "" {
		args = append(args, "--base", spec.Base)
	}
	if spec.NumUnits > 1 {
		args = append(args, "--num-units", strconv.Itoa(spec.NumUnits))
	}
	for k, v := range spec.Config {
		args = append(args, "--config", fmt.Sprintf("%s=%s", k, v))
	}
	_, err := j.run(ctx, "deploy", args...)
	return err
}

// GetConfig implements engine.Deployer.
func (j *JujuCLI) GetConfig(ctx context.Context, app string) (map[string]string, error) {
	out, err := j.run(ctx, "get_config", "config", app, "--format", "json")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Settings map[string]struct {
			Value any `json:"value"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, engine.NewDeploymentError("failed to parse application config", err).WithBackend(app)
	}
	config := make(map[string]string, len(parsed.Settings))
	for k, v := range parsed.Settings {
		if v.Value != nil {
			config[k] = fmt.Sprintf("%v", v.Value)
		}
	}
	return config, nil
}

// SetConfig implements engine.Deployer.
func (j *JujuCLI) SetConfig(ctx context.Context, app string, values map[string]string) error {
	args := []string{"config", app}
	for k, v := range values {
		args = append(args, fmt.Sprintf("%s=%s", k, v))
	}
	_, err := j.run(ctx, "set_config", args...)
	return err
}

// ResetConfig implements engine.Deployer.
func (j *JujuCLI) ResetConfig(ctx context.Context, app string, keys []string) error {
	args := []string{"config", app, "--reset", strings.Join(keys, ",")}
	_, err := j.run(ctx, "reset_config", args...)
	return err
}

// Integrate implements engine.Deployer.
func (j *JujuCLI) Integrate(ctx context.Context, appA, endpointA, appB, endpointB string) error {
	_, err := j.run(ctx, "integrate", "integrate",
		fmt.Sprintf("%s:%s", appA, endpointA),
		fmt.Sprintf("%s:%s", appB, endpointB))
	if err != nil && engine.IsConflict(err) {
		// Relation already established.
		return nil
	}
	return err
}

// Remove implements engine.Deployer.
func (j *JujuCLI) Remove(ctx context.Context, app string) error {
	_, err := j.run(ctx, "remove", "remove-application", app, "--no-prompt")
	return err
}

// Status implements engine.Deployer.
func (j *JujuCLI) Status(ctx context.Context, app string) (*engine.AppStatus, error) {
	out, err := j.run(ctx, "status", "status", app, "--format", "json")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Applications map[string]struct {
			Charm             string `json:"charm"`
			ApplicationStatus struct {
				Current string `json:"current"`
				Message string `json:"message"`
			} `json:"application-status"`
			Relations map[string][]relatedApp `json:"relations"`
			Units     map[string]struct {
				WorkloadStatus struct {
					Current string `json:"current"`
				} `json:"workload-status"`
				JujuStatus struct {
					Current string `json:"current"`
				} `json:"juju-status"`
			} `json:"units"`
		} `json:"applications"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, engine.NewDeploymentError("failed to parse status", err).WithBackend(app)
	}

	entry, ok := parsed.Applications[app]
	if !ok {
		return nil, engine.NewNotFoundError(fmt.Sprintf("application %s is not deployed", app), nil).WithBackend(app)
	}

	st := &engine.AppStatus{
		App:       app,
		Charm:     entry.Charm,
		Workload:  engine.BackendStatus(entry.ApplicationStatus.Current),
		Message:   entry.ApplicationStatus.Message,
		Relations: make(map[string][]string, len(entry.Relations)),
	}
	for endpoint, related := range entry.Relations {
		for _, r := range related {
			st.Relations[endpoint] = append(st.Relations[endpoint], r.Name)
		}
	}
	// The application is settled when every unit agent is idle.
	st.Agent = "idle"
	for _, u := range entry.Units {
		if u.JujuStatus.Current != "idle" {
			st.Agent = u.JujuStatus.Current
		}
	}
	return st, nil
}

// EnsureSecret implements engine.Deployer. The name must be a plain
// secret name; the returned reference carries the secret: prefix.
func (j *JujuCLI) EnsureSecret(ctx context.Context, app, name string, content map[string]string) (string, error) {
	args := []string{"add-secret", name}
	for k, v := range content {
		args = append(args, fmt.Sprintf("%s=%s", k, v))
	}
	out, err := j.run(ctx, "ensure_secret", args...)
	if err != nil {
		if !engine.IsConflict(err) {
			return "", err
		}
		updateArgs := append([]string{"update-secret", name}, args[2:]...)
		if _, err := j.run(ctx, "ensure_secret", updateArgs...); err != nil {
			return "", err
		}
		out = []byte(engine.SecretURI(name))
	}
	uri := strings.TrimSpace(string(out))
	if _, err := j.run(ctx, "ensure_secret", "grant-secret", name, app); err != nil && !engine.IsConflict(err) {
		return "", err
	}
	return uri, nil
}

// relatedApp tolerates both the list-of-names and list-of-objects
// encodings juju has used for application relations.
type relatedApp struct {
	Name string
}

func (r *relatedApp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Name = s
		return nil
	}
	var obj struct {
		RelatedApplication string `json:"related-application"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Name = obj.RelatedApplication
	return nil
}

func (j *JujuCLI) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	full := append(args, "--model", j.model)
	j.logger.Debug().Str("operation", op).Strs("args", args).Msg("Deployment helper call")
	out, err := j.runner(ctx, j.binary, full...)
	if j.metrics != nil {
		j.metrics.DeployerCall(op, err)
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// classify maps CLI failures onto the engine error taxonomy. Only
// infrastructure failures are marked transient; conflicts and missing
// entities keep their class so callers can branch on them.
func classify(op string, err error) error {
	msg := err.Error()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		msg = strings.TrimSpace(string(exitErr.Stderr))
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return engine.NewNotFoundError(msg, err)
	case strings.Contains(lower, "already exists"), strings.Contains(lower, "already established"):
		return engine.NewConflictError(msg, err)
	case strings.Contains(lower, "connection"), strings.Contains(lower, "timed out"),
		strings.Contains(lower, "temporarily unavailable"):
		return engine.NewTransientError(msg, err)
	default:
		return engine.NewDeploymentError(fmt.Sprintf("%s failed: %s", op, msg), err)
	}
}
