// Package hitachi implements the Hitachi VSP storage backend type. It
// covers the full configuration surface of the cinder-volume-hitachi
// charm: connection parameters, protocol selection, host-group and
// zoning controls, copy and replication tuning, REST API settings, and
// the credential groups published as secrets.
package hitachi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/overcast-cloud/backendctl/pkg/engine"
	"github.com/overcast-cloud/backendctl/pkg/steps"
)

const (
	// TypeTag is the registry tag for this backend type.
	TypeTag = "hitachi"

	charmName     = "cinder-volume-hitachi"
	charmChannel  = "latest/edge"
	charmRevision = 2
	charmBase     = "ubuntu@24.04"
	endpoint      = "cinder-volume"

	// Credential group names. Each group becomes one secret per backend
	// instance.
	GroupSANCredentials        = "san-credentials"
	GroupCHAPCredentials       = "chap-credentials"
	GroupMirrorCHAPCredentials = "mirror-chap-credentials"
	GroupMirrorRESTCredentials = "mirror-rest-credentials"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the configuration schema of a Hitachi VSP backend. Unknown
// fields are rejected at decode time. Credential fields never reach the
// charm configuration directly; they are published as secrets and the
// charm receives indirect references.
type Config struct {
	// Mandatory connection parameters.
	StorageID string `yaml:"hitachi_storage_id" json:"hitachi_storage_id" validate:"required"`
	Pools     string `yaml:"hitachi_pools" json:"hitachi_pools" validate:"required"`
	SanIP     string `yaml:"san_ip" json:"san_ip" validate:"required,ip|fqdn"`

	// Backend identity.
	VolumeBackendName       string `yaml:"volume_backend_name" json:"volume_backend_name,omitempty"`
	BackendAvailabilityZone string `yaml:"backend_availability_zone" json:"backend_availability_zone,omitempty"`

	// Protocol selection.
	Protocol string `yaml:"protocol" json:"protocol" validate:"oneof=FC iSCSI"`

	// Host-group / zoning controls.
	TargetPorts        string `yaml:"hitachi_target_ports" json:"hitachi_target_ports,omitempty"`
	ComputeTargetPorts string `yaml:"hitachi_compute_target_ports" json:"hitachi_compute_target_ports,omitempty"`
	LdevRange          string `yaml:"hitachi_ldev_range" json:"hitachi_ldev_range,omitempty"`
	ZoningRequest      bool   `yaml:"hitachi_zoning_request" json:"hitachi_zoning_request,omitempty"`

	// Copy and replication tuning.
	CopySpeed              int `yaml:"hitachi_copy_speed" json:"hitachi_copy_speed,omitempty" validate:"min=1,max=15"`
	CopyCheckInterval      int `yaml:"hitachi_copy_check_interval" json:"hitachi_copy_check_interval,omitempty"`
	AsyncCopyCheckInterval int `yaml:"hitachi_async_copy_check_interval" json:"hitachi_async_copy_check_interval,omitempty"`

	// iSCSI authentication.
	UseChapAuth bool `yaml:"use_chap_auth" json:"use_chap_auth,omitempty"`

	// Array ranges and controls.
	DiscardZeroPage   bool   `yaml:"hitachi_discard_zero_page" json:"hitachi_discard_zero_page"`
	ExecRetryInterval int    `yaml:"hitachi_exec_retry_interval" json:"hitachi_exec_retry_interval,omitempty"`
	ExtendTimeout     int    `yaml:"hitachi_extend_timeout" json:"hitachi_extend_timeout,omitempty"`
	GroupCreate       bool   `yaml:"hitachi_group_create" json:"hitachi_group_create,omitempty"`
	GroupDelete       bool   `yaml:"hitachi_group_delete" json:"hitachi_group_delete,omitempty"`
	GroupNameFormat   string `yaml:"hitachi_group_name_format" json:"hitachi_group_name_format,omitempty"`
	HostModeOptions   string `yaml:"hitachi_host_mode_options" json:"hitachi_host_mode_options,omitempty"`
	LockTimeout       int    `yaml:"hitachi_lock_timeout" json:"hitachi_lock_timeout,omitempty"`
	LunRetryInterval  int    `yaml:"hitachi_lun_retry_interval" json:"hitachi_lun_retry_interval,omitempty"`
	LunTimeout        int    `yaml:"hitachi_lun_timeout" json:"hitachi_lun_timeout,omitempty"`
	PortScheduler     bool   `yaml:"hitachi_port_scheduler" json:"hitachi_port_scheduler,omitempty"`

	// Mirror / Global-Active Device settings.
	MirrorComputeTargetPorts  string `yaml:"hitachi_mirror_compute_target_ports" json:"hitachi_mirror_compute_target_ports,omitempty"`
	MirrorLdevRange           string `yaml:"hitachi_mirror_ldev_range" json:"hitachi_mirror_ldev_range,omitempty"`
	MirrorPairTargetNumber    int    `yaml:"hitachi_mirror_pair_target_number" json:"hitachi_mirror_pair_target_number,omitempty"`
	MirrorPool                string `yaml:"hitachi_mirror_pool" json:"hitachi_mirror_pool,omitempty"`
	MirrorRestAPIIP           string `yaml:"hitachi_mirror_rest_api_ip" json:"hitachi_mirror_rest_api_ip,omitempty" validate:"omitempty,ip|fqdn"`
	MirrorRestAPIPort         int    `yaml:"hitachi_mirror_rest_api_port" json:"hitachi_mirror_rest_api_port,omitempty"`
	MirrorRestPairTargetPorts string `yaml:"hitachi_mirror_rest_pair_target_ports" json:"hitachi_mirror_rest_pair_target_ports,omitempty"`
	MirrorSnapPool            string `yaml:"hitachi_mirror_snap_pool" json:"hitachi_mirror_snap_pool,omitempty"`
	MirrorSSLCertPath         string `yaml:"hitachi_mirror_ssl_cert_path" json:"hitachi_mirror_ssl_cert_path,omitempty"`
	MirrorSSLCertVerify       bool   `yaml:"hitachi_mirror_ssl_cert_verify" json:"hitachi_mirror_ssl_cert_verify,omitempty"`
	MirrorStorageID           string `yaml:"hitachi_mirror_storage_id" json:"hitachi_mirror_storage_id,omitempty"`
	MirrorTargetPorts         string `yaml:"hitachi_mirror_target_ports" json:"hitachi_mirror_target_ports,omitempty"`
	MirrorUseChapAuth         bool   `yaml:"hitachi_mirror_use_chap_auth" json:"hitachi_mirror_use_chap_auth,omitempty"`

	// Replication settings.
	PairTargetNumber                    int `yaml:"hitachi_pair_target_number" json:"hitachi_pair_target_number,omitempty"`
	PathGroupID                         int `yaml:"hitachi_path_group_id" json:"hitachi_path_group_id,omitempty"`
	QuorumDiskID                        int `yaml:"hitachi_quorum_disk_id" json:"hitachi_quorum_disk_id,omitempty"`
	ReplicationCopySpeed                int `yaml:"hitachi_replication_copy_speed" json:"hitachi_replication_copy_speed,omitempty" validate:"min=1,max=15"`
	ReplicationNumber                   int `yaml:"hitachi_replication_number" json:"hitachi_replication_number,omitempty"`
	ReplicationStatusCheckLongInterval  int `yaml:"hitachi_replication_status_check_long_interval" json:"hitachi_replication_status_check_long_interval,omitempty"`
	ReplicationStatusCheckShortInterval int `yaml:"hitachi_replication_status_check_short_interval" json:"hitachi_replication_status_check_short_interval,omitempty"`
	ReplicationStatusCheckTimeout       int `yaml:"hitachi_replication_status_check_timeout" json:"hitachi_replication_status_check_timeout,omitempty"`

	// REST API settings.
	RestAnotherLdevMappedRetryTimeout int    `yaml:"hitachi_rest_another_ldev_mapped_retry_timeout" json:"hitachi_rest_another_ldev_mapped_retry_timeout,omitempty"`
	RestConnectTimeout                int    `yaml:"hitachi_rest_connect_timeout" json:"hitachi_rest_connect_timeout,omitempty"`
	RestDisableIOWait                 bool   `yaml:"hitachi_rest_disable_io_wait" json:"hitachi_rest_disable_io_wait"`
	RestGetAPIResponseTimeout         int    `yaml:"hitachi_rest_get_api_response_timeout" json:"hitachi_rest_get_api_response_timeout,omitempty"`
	RestJobAPIResponseTimeout         int    `yaml:"hitachi_rest_job_api_response_timeout" json:"hitachi_rest_job_api_response_timeout,omitempty"`
	RestKeepSessionLoopInterval       int    `yaml:"hitachi_rest_keep_session_loop_interval" json:"hitachi_rest_keep_session_loop_interval,omitempty"`
	RestPairTargetPorts               string `yaml:"hitachi_rest_pair_target_ports" json:"hitachi_rest_pair_target_ports,omitempty"`
	RestServerBusyTimeout             int    `yaml:"hitachi_rest_server_busy_timeout" json:"hitachi_rest_server_busy_timeout,omitempty"`
	RestTCPKeepalive                  bool   `yaml:"hitachi_rest_tcp_keepalive" json:"hitachi_rest_tcp_keepalive"`
	RestTCPKeepcnt                    int    `yaml:"hitachi_rest_tcp_keepcnt" json:"hitachi_rest_tcp_keepcnt,omitempty"`
	RestTCPKeepidle                   int    `yaml:"hitachi_rest_tcp_keepidle" json:"hitachi_rest_tcp_keepidle,omitempty"`
	RestTCPKeepintvl                  int    `yaml:"hitachi_rest_tcp_keepintvl" json:"hitachi_rest_tcp_keepintvl,omitempty"`
	RestTimeout                       int    `yaml:"hitachi_rest_timeout" json:"hitachi_rest_timeout,omitempty"`
	RestoreTimeout                    int    `yaml:"hitachi_restore_timeout" json:"hitachi_restore_timeout,omitempty"`

	// Snapshot settings.
	SnapPool                string `yaml:"hitachi_snap_pool" json:"hitachi_snap_pool,omitempty"`
	StateTransitionTimeout  int    `yaml:"hitachi_state_transition_timeout" json:"hitachi_state_transition_timeout,omitempty"`

	// Primary array credentials. Always required; published as the
	// san-credentials secret.
	SanUsername string `yaml:"san_username" json:"san_username,omitempty" validate:"required"`
	SanPassword string `yaml:"san_password" json:"san_password,omitempty" validate:"required"`

	// CHAP credentials, mandatory as a pair when use_chap_auth is set.
	ChapUsername string `yaml:"chap_username" json:"chap_username,omitempty" validate:"required_if=UseChapAuth true,required_with=ChapPassword"`
	ChapPassword string `yaml:"chap_password" json:"chap_password,omitempty" validate:"required_if=UseChapAuth true,required_with=ChapUsername"`

	// Mirror credential pairs, each all-or-nothing.
	MirrorChapUsername string `yaml:"hitachi_mirror_chap_username" json:"hitachi_mirror_chap_username,omitempty" validate:"required_with=MirrorChapPassword"`
	MirrorChapPassword string `yaml:"hitachi_mirror_chap_password" json:"hitachi_mirror_chap_password,omitempty" validate:"required_with=MirrorChapUsername"`
	MirrorRestUsername string `yaml:"hitachi_mirror_rest_username" json:"hitachi_mirror_rest_username,omitempty" validate:"required_with=MirrorRestPassword"`
	MirrorRestPassword string `yaml:"hitachi_mirror_rest_password" json:"hitachi_mirror_rest_password,omitempty" validate:"required_with=MirrorRestUsername"`
}

// defaults mirrors the charm option defaults. Only values that differ
// from these reach the charm configuration.
func defaults() *Config {
	return &Config{
		Protocol:                            "FC",
		CopySpeed:                           3,
		CopyCheckInterval:                   3,
		AsyncCopyCheckInterval:              10,
		DiscardZeroPage:                     true,
		ExecRetryInterval:                   5,
		ExtendTimeout:                       600,
		LockTimeout:                         7200,
		LunRetryInterval:                    1,
		LunTimeout:                          50,
		MirrorRestAPIPort:                   443,
		ReplicationCopySpeed:                3,
		ReplicationStatusCheckLongInterval:  600,
		ReplicationStatusCheckShortInterval: 5,
		ReplicationStatusCheckTimeout:       86400,
		RestAnotherLdevMappedRetryTimeout:   600,
		RestConnectTimeout:                  30,
		RestDisableIOWait:                   true,
		RestGetAPIResponseTimeout:           1800,
		RestJobAPIResponseTimeout:           1800,
		RestKeepSessionLoopInterval:         180,
		RestServerBusyTimeout:               7200,
		RestTCPKeepalive:                    true,
		RestTCPKeepcnt:                      4,
		RestTCPKeepidle:                     60,
		RestTCPKeepintvl:                    15,
		RestTimeout:                         30,
		RestoreTimeout:                      86400,
		StateTransitionTimeout:              900,
	}
}

// Validate implements engine.BackendConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return engine.NewValidationError(describeValidationError(err), err)
	}
	return nil
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("field %s is required", fe.Field())
		case "required_if":
			return fmt.Sprintf("field %s is required when CHAP authentication is enabled", fe.Field())
		case "required_with":
			return fmt.Sprintf("field %s must be set together with its paired credential", fe.Field())
		case "oneof":
			return fmt.Sprintf("field %s must be one of: %s", fe.Field(), fe.Param())
		default:
			return fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag())
		}
	}
	return "configuration is invalid"
}

// CharmOptions implements engine.BackendConfig. Only explicitly set,
// non-default values reach the charm; credential literals are replaced
// by the secret references the credentials are published under.
func (c *Config) CharmOptions(name string) map[string]string {
	def := defaults()
	opts := map[string]string{}

	setStr := func(key, value, defValue string) {
		if value != "" && value != defValue {
			opts[key] = value
		}
	}
	// Decoding starts from defaults(), so any differing value was set by
	// the caller. Zero counts when the charm default is non-zero.
	setInt := func(key string, value, defValue int) {
		if value != defValue {
			opts[key] = strconv.Itoa(value)
		}
	}
	setBool := func(key string, value, defValue bool) {
		if value != defValue {
			opts[key] = strconv.FormatBool(value)
		}
	}

	opts["hitachi-storage-id"] = c.StorageID
	opts["hitachi-pools"] = c.Pools
	opts["san-ip"] = c.SanIP

	setStr("volume-backend-name", c.VolumeBackendName, def.VolumeBackendName)
	setStr("backend-availability-zone", c.BackendAvailabilityZone, def.BackendAvailabilityZone)
	setStr("protocol", c.Protocol, def.Protocol)
	setStr("hitachi-target-ports", c.TargetPorts, def.TargetPorts)
	setStr("hitachi-compute-target-ports", c.ComputeTargetPorts, def.ComputeTargetPorts)
	setStr("hitachi-ldev-range", c.LdevRange, def.LdevRange)
	setBool("hitachi-zoning-request", c.ZoningRequest, def.ZoningRequest)
	setInt("hitachi-copy-speed", c.CopySpeed, def.CopySpeed)
	setInt("hitachi-copy-check-interval", c.CopyCheckInterval, def.CopyCheckInterval)
	setInt("hitachi-async-copy-check-interval", c.AsyncCopyCheckInterval, def.AsyncCopyCheckInterval)
	setBool("use-chap-auth", c.UseChapAuth, def.UseChapAuth)
	setBool("hitachi-discard-zero-page", c.DiscardZeroPage, def.DiscardZeroPage)
	setInt("hitachi-exec-retry-interval", c.ExecRetryInterval, def.ExecRetryInterval)
	setInt("hitachi-extend-timeout", c.ExtendTimeout, def.ExtendTimeout)
	setBool("hitachi-group-create", c.GroupCreate, def.GroupCreate)
	setBool("hitachi-group-delete", c.GroupDelete, def.GroupDelete)
	setStr("hitachi-group-name-format", c.GroupNameFormat, def.GroupNameFormat)
	setStr("hitachi-host-mode-options", c.HostModeOptions, def.HostModeOptions)
	setInt("hitachi-lock-timeout", c.LockTimeout, def.LockTimeout)
	setInt("hitachi-lun-retry-interval", c.LunRetryInterval, def.LunRetryInterval)
	setInt("hitachi-lun-timeout", c.LunTimeout, def.LunTimeout)
	setBool("hitachi-port-scheduler", c.PortScheduler, def.PortScheduler)
	setStr("hitachi-mirror-compute-target-ports", c.MirrorComputeTargetPorts, def.MirrorComputeTargetPorts)
	setStr("hitachi-mirror-ldev-range", c.MirrorLdevRange, def.MirrorLdevRange)
	setInt("hitachi-mirror-pair-target-number", c.MirrorPairTargetNumber, def.MirrorPairTargetNumber)
	setStr("hitachi-mirror-pool", c.MirrorPool, def.MirrorPool)
	setStr("hitachi-mirror-rest-api-ip", c.MirrorRestAPIIP, def.MirrorRestAPIIP)
	setInt("hitachi-mirror-rest-api-port", c.MirrorRestAPIPort, def.MirrorRestAPIPort)
	setStr("hitachi-mirror-rest-pair-target-ports", c.MirrorRestPairTargetPorts, def.MirrorRestPairTargetPorts)
	setStr("hitachi-mirror-snap-pool", c.MirrorSnapPool, def.MirrorSnapPool)
	setStr("hitachi-mirror-ssl-cert-path", c.MirrorSSLCertPath, def.MirrorSSLCertPath)
	setBool("hitachi-mirror-ssl-cert-verify", c.MirrorSSLCertVerify, def.MirrorSSLCertVerify)
	setStr("hitachi-mirror-storage-id", c.MirrorStorageID, def.MirrorStorageID)
	setStr("hitachi-mirror-target-ports", c.MirrorTargetPorts, def.MirrorTargetPorts)
	setBool("hitachi-mirror-use-chap-auth", c.MirrorUseChapAuth, def.MirrorUseChapAuth)
	setInt("hitachi-pair-target-number", c.PairTargetNumber, def.PairTargetNumber)
	setInt("hitachi-path-group-id", c.PathGroupID, def.PathGroupID)
	setInt("hitachi-quorum-disk-id", c.QuorumDiskID, def.QuorumDiskID)
	setInt("hitachi-replication-copy-speed", c.ReplicationCopySpeed, def.ReplicationCopySpeed)
	setInt("hitachi-replication-number", c.ReplicationNumber, def.ReplicationNumber)
	setInt("hitachi-replication-status-check-long-interval", c.ReplicationStatusCheckLongInterval, def.ReplicationStatusCheckLongInterval)
	setInt("hitachi-replication-status-check-short-interval", c.ReplicationStatusCheckShortInterval, def.ReplicationStatusCheckShortInterval)
	setInt("hitachi-replication-status-check-timeout", c.ReplicationStatusCheckTimeout, def.ReplicationStatusCheckTimeout)
	setInt("hitachi-rest-another-ldev-mapped-retry-timeout", c.RestAnotherLdevMappedRetryTimeout, def.RestAnotherLdevMappedRetryTimeout)
	setInt("hitachi-rest-connect-timeout", c.RestConnectTimeout, def.RestConnectTimeout)
	setBool("hitachi-rest-disable-io-wait", c.RestDisableIOWait, def.RestDisableIOWait)
	setInt("hitachi-rest-get-api-response-timeout", c.RestGetAPIResponseTimeout, def.RestGetAPIResponseTimeout)
	setInt("hitachi-rest-job-api-response-timeout", c.RestJobAPIResponseTimeout, def.RestJobAPIResponseTimeout)
	setInt("hitachi-rest-keep-session-loop-interval", c.RestKeepSessionLoopInterval, def.RestKeepSessionLoopInterval)
	setStr("hitachi-rest-pair-target-ports", c.RestPairTargetPorts, def.RestPairTargetPorts)
	setInt("hitachi-rest-server-busy-timeout", c.RestServerBusyTimeout, def.RestServerBusyTimeout)
	setBool("hitachi-rest-tcp-keepalive", c.RestTCPKeepalive, def.RestTCPKeepalive)
	setInt("hitachi-rest-tcp-keepcnt", c.RestTCPKeepcnt, def.RestTCPKeepcnt)
	setInt("hitachi-rest-tcp-keepidle", c.RestTCPKeepidle, def.RestTCPKeepidle)
	setInt("hitachi-rest-tcp-keepintvl", c.RestTCPKeepintvl, def.RestTCPKeepintvl)
	setInt("hitachi-rest-timeout", c.RestTimeout, def.RestTimeout)
	setInt("hitachi-restore-timeout", c.RestoreTimeout, def.RestoreTimeout)
	setStr("hitachi-snap-pool", c.SnapPool, def.SnapPool)
	setInt("hitachi-state-transition-timeout", c.StateTransitionTimeout, def.StateTransitionTimeout)

	opts["san-credentials-secret"] = engine.SecretRef(name, GroupSANCredentials)
	if c.UseChapAuth {
		opts["chap-credentials-secret"] = engine.SecretRef(name, GroupCHAPCredentials)
	}
	if c.MirrorChapUsername != "" {
		opts["hitachi-mirror-chap-credentials-secret"] = engine.SecretRef(name, GroupMirrorCHAPCredentials)
	}
	if c.MirrorRestUsername != "" {
		opts["hitachi-mirror-rest-credentials-secret"] = engine.SecretRef(name, GroupMirrorRESTCredentials)
	}

	return opts
}

// SecretValues implements engine.BackendConfig. Keys are credential
// group names; the deployment step derives the secret name per group.
func (c *Config) SecretValues(_ string) map[string]map[string]string {
	secrets := map[string]map[string]string{
		GroupSANCredentials: {
			"username": c.SanUsername,
			"password": c.SanPassword,
		},
	}
	if c.UseChapAuth {
		secrets[GroupCHAPCredentials] = map[string]string{
			"username": c.ChapUsername,
			"password": c.ChapPassword,
		}
	}
	if c.MirrorChapUsername != "" {
		secrets[GroupMirrorCHAPCredentials] = map[string]string{
			"username": c.MirrorChapUsername,
			"password": c.MirrorChapPassword,
		}
	}
	if c.MirrorRestUsername != "" {
		secrets[GroupMirrorRESTCredentials] = map[string]string{
			"username": c.MirrorRestUsername,
			"password": c.MirrorRestPassword,
		}
	}
	return secrets
}

// Persistable implements engine.BackendConfig. Passwords are masked in
// the persisted blob; the literals live only in the published secrets.
func (c *Config) Persistable() (string, error) {
	masked := *c
	if masked.SanPassword != "" {
		masked.SanPassword = engine.MaskSecret
	}
	if masked.ChapPassword != "" {
		masked.ChapPassword = engine.MaskSecret
	}
	if masked.MirrorChapPassword != "" {
		masked.MirrorChapPassword = engine.MaskSecret
	}
	if masked.MirrorRestPassword != "" {
		masked.MirrorRestPassword = engine.MaskSecret
	}
	blob, err := json.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(blob), nil
}

// Backend is the Hitachi VSP backend plugin.
type Backend struct{}

// New creates the Hitachi backend plugin.
func New() *Backend { return &Backend{} }

// Type implements engine.Backend.
func (b *Backend) Type() string { return TypeTag }

// DisplayName implements engine.Backend.
func (b *Backend) DisplayName() string { return "Hitachi VSP Storage" }

// Charm implements engine.Backend.
func (b *Backend) Charm() engine.CharmSpec {
	return engine.CharmSpec{
		Name:     charmName,
		Channel:  charmChannel,
		Revision: charmRevision,
		Base:     charmBase,
	}
}

// Endpoint implements engine.Backend.
func (b *Backend) Endpoint() string { return endpoint }

// NewConfig implements engine.Backend. The zero schema carries the
// charm option defaults so strict decoding only overrides what the
// caller sets.
func (b *Backend) NewConfig() engine.BackendConfig { return defaults() }

// DeploySteps implements engine.Backend.
func (b *Backend) DeploySteps(wait bool) []engine.Step { return steps.DefaultDeploySteps(wait) }

// RemoveSteps implements engine.Backend.
func (b *Backend) RemoveSteps() []engine.Step { return steps.DefaultRemoveSteps() }
