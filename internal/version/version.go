// Package version holds the build-time version string, overridden via
// -ldflags "-X github.com/amenzel91/catalyst-bot/internal/version.Version=..."
// by the release build. No ecosystem library exists in the pack for this
// (it is a one-line var, not a concern any ambient dependency covers).
package version

// Version defaults to "dev" for local builds.
var Version = "dev"
