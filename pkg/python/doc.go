// Package python manages the project's Python toolchain through uv.
//
// Environment setup pins the interpreter version and syncs dependencies from
// the committed lock file without re-resolving, so every machine materializes
// the same environment. The torch installer picks wheels from the build-tag
// index chosen by the accel package and verifies the install by importing
// torch in the synced interpreter.
//
// All process execution goes through the Runner interface so tests can swap
// in a recorder instead of spawning uv.
package python
