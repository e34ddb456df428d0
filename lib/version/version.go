// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version string reported by the
// --version flag of VolumeFS binaries.
package version

// version is overridden at build time:
//
//	go build -ldflags "-X github.com/volumefs/volumefs/lib/version.version=v0.3.0"
var version = "dev"

// Info returns the version string for this build.
func Info() string {
	return version
}
