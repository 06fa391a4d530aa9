package steps

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock"

	"github.com/overcast-cloud/backendctl/pkg/deployer/deployertest"
	"github.com/overcast-cloud/backendctl/pkg/engine"
	"github.com/overcast-cloud/backendctl/pkg/stores"
)

// stubConfig is a minimal backend configuration for step tests.
type stubConfig struct {
	invalid bool
	options map[string]string
	secrets map[string]map[string]string
}

func (c *stubConfig) Validate() error {
	if c.invalid {
		return engine.NewValidationError("san-ip is required", nil)
	}
	return nil
}

func (c *stubConfig) CharmOptions(name string) map[string]string {
	out := map[string]string{"volume-backend-name": name}
	for group := range c.secrets {
		out[group+"-secret"] = engine.SecretRef(name, group)
	}
	for k, v := range c.options {
		out[k] = v
	}
	return out
}

func (c *stubConfig) SecretValues(string) map[string]map[string]string {
	return c.secrets
}

func (c *stubConfig) Persistable() (string, error) {
	masked := map[string]string{"volume-backend-name": engine.MaskSecret}
	blob, err := json.Marshal(masked)
	return string(blob), err
}

// stubBackend is a minimal backend plugin for step tests.
type stubBackend struct{}

func (stubBackend) Type() string        { return "stub" }
func (stubBackend) DisplayName() string { return "Stub Storage" }
func (stubBackend) Endpoint() string    { return "storage-backend" }
func (stubBackend) Charm() engine.CharmSpec {
	return engine.CharmSpec{Name: "cinder-volume-stub", Channel: "latest/edge", Base: "ubuntu@24.04"}
}
func (stubBackend) NewConfig() engine.BackendConfig   { return &stubConfig{} }
func (stubBackend) DeploySteps(wait bool) []engine.Step { return DefaultDeploySteps(wait) }
func (stubBackend) RemoveSteps() []engine.Step          { return DefaultRemoveSteps() }

type instantClock struct {
	clock.Clock
}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testContext(fake *deployertest.Fake, store engine.RegistrationStore) *engine.StepContext {
	return &engine.StepContext{
		RunID:             "test-run",
		Name:              "hitachi-vsp",
		Backend:           stubBackend{},
		Config:            &stubConfig{secrets: map[string]map[string]string{"san-credentials": {"username": "maintenance", "password": "hunter2"}}},
		Principal:         "cinder-volume",
		PrincipalEndpoint: "cinder-volume",
		ModelUUID:         "4a1b9c2e-0000-4000-8000-000000000001",
		Deployer:          fake,
		Store:             store,
		WaitPolicy:        engine.RetryPolicy{Attempts: 3, Delay: time.Millisecond, Clock: instantClock{clock.WallClock}},
		Statuses:          make(map[string]engine.StepStatus),
	}
}

func TestValidateConfigRejectsInvalid(t *testing.T) {
	sc := testContext(deployertest.New(), stores.NewMemoryStore())
	sc.Config = &stubConfig{invalid: true}

	err := NewValidateConfig().Run(context.Background(), sc)
	if !engine.IsValidation(err) {
		t.Fatalf("err = %v, want validation class", err)
	}
}

func TestValidateConfigMissing(t *testing.T) {
	sc := testContext(deployertest.New(), stores.NewMemoryStore())
	sc.Config = nil

	err := NewValidateConfig().Run(context.Background(), sc)
	if !engine.IsValidation(err) {
		t.Fatalf("err = %v, want validation class", err)
	}
}

func TestCheckNotExists(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore()
	sc := testContext(deployertest.New(), store)

	step := NewCheckNotExists()
	skip, err := step.Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true on unregistered name", skip, err)
	}

	if err := store.CreateRegistration(ctx, engine.Record{Name: "hitachi-vsp", Type: "stub", Principal: "cinder-volume"}); err != nil {
		t.Fatal(err)
	}
	skip, err = step.Skip(ctx, sc)
	if err != nil || skip {
		t.Fatalf("Skip = %v, %v, want false on registered name", skip, err)
	}
	if err := step.Run(ctx, sc); !engine.IsConflict(err) {
		t.Fatalf("Run = %v, want conflict class", err)
	}
}

func TestDeployUnitPublishesSecretsThenDeploys(t *testing.T) {
	ctx := context.Background()
	fake := deployertest.New()
	sc := testContext(fake, stores.NewMemoryStore())

	step := NewDeployUnit()
	skip, err := step.Skip(ctx, sc)
	if err != nil || skip {
		t.Fatalf("Skip = %v, %v, want false before deployment", skip, err)
	}

	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	secretName := engine.SecretName("hitachi-vsp", "san-credentials")
	content, ok := fake.Secrets[secretName]
	if !ok {
		t.Fatalf("secret %s not published, have %v", secretName, fake.Secrets)
	}
	if content["password"] != "hunter2" {
		t.Errorf("secret content = %v", content)
	}
	for published := range fake.Secrets {
		if strings.Contains(published, ":") {
			t.Errorf("secret name %q carries a reference prefix", published)
		}
	}
	if fake.Calls[0] != "ensure_secret" {
		t.Errorf("calls = %v, want secret published before deploy", fake.Calls)
	}
	if got := fake.Configs["hitachi-vsp"]["san-credentials-secret"]; got != engine.SecretURI(secretName) {
		t.Errorf("san-credentials-secret = %q, want the published reference %q", got, engine.SecretURI(secretName))
	}
	st, ok := fake.Apps["hitachi-vsp"]
	if !ok {
		t.Fatal("application not deployed")
	}
	if st.Charm != "cinder-volume-stub" {
		t.Errorf("charm = %q", st.Charm)
	}
	if got := fake.Configs["hitachi-vsp"]["volume-backend-name"]; got != "hitachi-vsp" {
		t.Errorf("volume-backend-name = %q", got)
	}

	skip, err = step.Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true once deployed", skip, err)
	}
}

func TestIntegrateSkipsExistingRelation(t *testing.T) {
	ctx := context.Background()
	fake := deployertest.New()
	sc := testContext(fake, stores.NewMemoryStore())

	if err := NewDeployUnit().Run(ctx, sc); err != nil {
		t.Fatal(err)
	}

	step := NewIntegrate()
	skip, err := step.Skip(ctx, sc)
	if err != nil || skip {
		t.Fatalf("Skip = %v, %v, want false before integration", skip, err)
	}

	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	skip, err = step.Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true once related", skip, err)
	}
}

func TestWaitForReadyTimesOut(t *testing.T) {
	ctx := context.Background()
	fake := deployertest.New()
	fake.Apps["hitachi-vsp"] = &engine.AppStatus{
		App:      "hitachi-vsp",
		Workload: engine.BackendStatusWaiting,
		Agent:    "executing",
	}
	sc := testContext(fake, stores.NewMemoryStore())

	step := NewWaitForReady()
	skip, err := step.Skip(ctx, sc)
	if err != nil || skip {
		t.Fatalf("Skip = %v, %v, want false while waiting", skip, err)
	}
	if err := step.Run(ctx, sc); !engine.IsTimeout(err) {
		t.Fatalf("Run = %v, want timeout class", err)
	}
}

func TestWaitForReadySkipsWhenAlreadyActive(t *testing.T) {
	ctx := context.Background()
	fake := deployertest.New()
	sc := testContext(fake, stores.NewMemoryStore())
	if err := NewDeployUnit().Run(ctx, sc); err != nil {
		t.Fatal(err)
	}

	skip, err := NewWaitForReady().Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true for settled application", skip, err)
	}
}

func TestPersistRegistration(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore()
	sc := testContext(deployertest.New(), store)

	step := NewPersistRegistration()
	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, err := store.GetRegistration(ctx, "hitachi-vsp")
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.Type != "stub" || rec.Principal != "cinder-volume" {
		t.Errorf("record = %+v", rec)
	}

	var blob map[string]string
	if err := json.Unmarshal([]byte(rec.Config), &blob); err != nil {
		t.Fatalf("config blob is not JSON: %v", err)
	}
	if blob["volume-backend-name"] != engine.MaskSecret {
		t.Errorf("credentials not masked: %v", blob)
	}

	skip, err := step.Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true once persisted", skip, err)
	}
}

func TestValidateExists(t *testing.T) {
	ctx := context.Background()
	fake := deployertest.New()
	store := stores.NewMemoryStore()
	sc := testContext(fake, store)

	step := NewValidateExists()
	if err := step.Run(ctx, sc); !engine.IsNotFound(err) {
		t.Fatalf("Run = %v, want not-found for unknown backend", err)
	}

	// A live deployment without a record still qualifies for removal.
	if err := NewDeployUnit().Run(ctx, sc); err != nil {
		t.Fatal(err)
	}
	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run with live app: %v", err)
	}

	// So does a record without a live deployment.
	if err := fake.Remove(ctx, "hitachi-vsp"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateRegistration(ctx, engine.Record{Name: "hitachi-vsp", Type: "stub", Principal: "cinder-volume"}); err != nil {
		t.Fatal(err)
	}
	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run with record only: %v", err)
	}
}

func TestRemoveUnit(t *testing.T) {
	ctx := context.Background()
	fake := deployertest.New()
	sc := testContext(fake, stores.NewMemoryStore())

	step := NewRemoveUnit()
	skip, err := step.Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true for absent application", skip, err)
	}

	if err := NewDeployUnit().Run(ctx, sc); err != nil {
		t.Fatal(err)
	}
	skip, err = step.Skip(ctx, sc)
	if err != nil || skip {
		t.Fatalf("Skip = %v, %v, want false for live application", skip, err)
	}
	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := fake.Apps["hitachi-vsp"]; ok {
		t.Error("application still deployed after removal")
	}
}

func TestDeleteRegistration(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore()
	sc := testContext(deployertest.New(), store)

	step := NewDeleteRegistration()
	skip, err := step.Skip(ctx, sc)
	if err != nil || !skip {
		t.Fatalf("Skip = %v, %v, want true for absent record", skip, err)
	}

	if err := store.CreateRegistration(ctx, engine.Record{Name: "hitachi-vsp", Type: "stub", Principal: "cinder-volume"}); err != nil {
		t.Fatal(err)
	}
	if err := step.Run(ctx, sc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := store.GetRegistration(ctx, "hitachi-vsp"); !engine.IsNotFound(err) {
		t.Fatalf("record still present: %v", err)
	}
}

func TestDefaultDeployStepOrder(t *testing.T) {
	names := func(list []engine.Step) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.Name()
		}
		return out
	}

	withWait := names(DefaultDeploySteps(true))
	want := []string{"validate-config", "check-not-exists", "deploy-unit", "integrate", "wait-ready", "persist-registration"}
	for i := range want {
		if withWait[i] != want[i] {
			t.Fatalf("deploy steps with wait = %v, want %v", withWait, want)
		}
	}

	noWait := names(DefaultDeploySteps(false))
	for _, n := range noWait {
		if n == "wait-ready" {
			t.Fatalf("deploy steps without wait = %v, must not contain wait-ready", noWait)
		}
	}
	if noWait[len(noWait)-1] != "persist-registration" {
		t.Fatalf("deploy steps without wait = %v, want persist-registration last", noWait)
	}
}
