// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity of umlaut binaries.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected with
// -ldflags -X at build time and default to "unknown" / "0.1.0-dev" in
// development builds and tests. [Info] is what every binary prints for
// --version; [Full] adds the Go toolchain and platform.
package version
