// Package file loads caseflow's configuration from a TOML file
// (default ~/.caseflow/config.toml) with CASEFLOW_* environment overrides.
package file
