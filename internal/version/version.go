// ABOUTME: Build and product metadata
// ABOUTME: Surfaced by the CLI --version flag
package version

// Version is the semantic version, overridable at build time via
// -ldflags "-X .../internal/version.Version=..."
var Version = "0.1.0"

// Product is the user-facing product name
const Product = "virtmic"
