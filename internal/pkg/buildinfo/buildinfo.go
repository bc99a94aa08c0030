// Package buildinfo holds compile-time constants describing this jump
// build, adapted from apptainer's internal/pkg/buildcfg package of
// linker-injected constants (PACKAGE_VERSION, etc.), trimmed to the handful
// the jump itself actually needs to answer `--version`, fill `jump.version`
// in a freshly assembled manifest, and answer `scie.platform` placeholders.
package buildinfo

import "runtime"

// Version is overridden at link time via:
//
//	go build -ldflags "-X github.com/a-scie/jump/internal/pkg/buildinfo.Version=v1.2.3"
var Version = "0.0.0-dev"

// Arch and OS identify the platform triple the running jump was compiled
// for, consumed by the {scie.platform}, {scie.platform.arch} and
// {scie.platform.os} placeholders (spec.md §4.3).
func Arch() string { return runtime.GOARCH }
func OS() string    { return runtime.GOOS }

// Platform returns the "os-arch" triple used for {scie.platform}.
func Platform() string { return OS() + "-" + Arch() }
