// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// camdelegate binaries.
//
// Configuration comes from a single file named by the --config flag or
// the CAMDELEGATE_CONFIG environment variable. With neither set the
// binaries run on [Default]. There is no file discovery.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// without its own section refuses background activity starts.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PID}, ${CAMDELEGATE_RUNTIME}, ${CAMDELEGATE_STATE} and
// ${VAR:-default} patterns are expanded. No other environment
// variables override config values.
//
// This package depends on no other camdelegate packages.
package config
