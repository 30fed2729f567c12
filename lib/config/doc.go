// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for umlaut
// binaries.
//
// Configuration comes from a single file named by either a --config
// flag (via [LoadFile]) or the UMLAUT_CONFIG environment variable (via
// [Load]). [Resolve] picks between the two and falls back to
// [Default] when neither is given. There is no ~/.config discovery and
// no automatic file search.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches.
//
// Variable expansion runs on path fields after loading: ${HOME},
// ${UMLAUT_ROOT} and ${VAR:-default} patterns are expanded.
//
// This package depends on no other umlaut packages.
package config
