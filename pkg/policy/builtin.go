package policy

// BuiltinPolicies returns the policies shipped with backendctl.
func BuiltinPolicies() []Policy {
	return []Policy{
		backendNamingPolicy(),
		credentialHygienePolicy(),
		chapWithoutISCSIPolicy(),
	}
}

// backendNamingPolicy enforces backend instance naming conventions.
func backendNamingPolicy() Policy {
	return Policy{
		Name:        "backend-naming",
		Description: "Enforces backend naming conventions (lowercase, alphanumeric, hyphens only)",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package backendctl.policies.naming

import rego.v1

deny contains violation if {
	name := input.name
	lower(name) != name
	violation := {
		"message": sprintf("backend name '%s' must be lowercase", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	name := input.name
	not regex.match("^[a-z][a-z0-9-]*$", name)
	violation := {
		"message": sprintf("backend name '%s' must start with a letter and contain only lowercase letters, numbers, and hyphens", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	name := input.name
	regex.match(".*-$", name)
	violation := {
		"message": sprintf("backend name '%s' must not end with a hyphen", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	count(input.name) > 63
	violation := {
		"message": sprintf("backend name '%s' must be at most 63 characters long", [input.name]),
		"severity": "error",
	}
}
`,
	}
}

// credentialHygienePolicy blocks credential literals from reaching the
// charm configuration: every *-secret option must carry an indirect
// secret reference.
func credentialHygienePolicy() Policy {
	return Policy{
		Name:        "credential-hygiene",
		Description: "Blocks plaintext credentials in charm configuration",
		Severity:    SeverityCritical,
		Enabled:     true,
		Rego: `package backendctl.policies.credentials

import rego.v1

deny contains violation if {
	some key, value in input.config
	endswith(key, "-secret")
	not startswith(value, "secret:")
	violation := {
		"message": sprintf("option '%s' must reference a secret, not carry a literal", [key]),
		"severity": "critical",
	}
}

deny contains violation if {
	some key, _ in input.config
	contains(key, "password")
	violation := {
		"message": sprintf("option '%s' must not pass a password through charm configuration", [key]),
		"severity": "critical",
	}
}
`,
	}
}

// chapWithoutISCSIPolicy flags CHAP authentication configured on a
// fibre-channel backend.
func chapWithoutISCSIPolicy() Policy {
	return Policy{
		Name:        "chap-protocol",
		Description: "Warns when CHAP authentication is enabled without the iSCSI protocol",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package backendctl.policies.chap

import rego.v1

deny contains violation if {
	input.config["use-chap-auth"] == "true"
	object.get(input.config, "protocol", "FC") != "iSCSI"
	violation := {
		"message": "CHAP authentication has no effect without the iSCSI protocol",
		"severity": "warning",
	}
}
`,
	}
}
