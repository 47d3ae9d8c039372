// ABOUTME: Version information for soundsystem
// ABOUTME: Product, manufacturer and version strings reported by the CLIs and control channel
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the product name
	Product = "soundsystem"

	// Manufacturer is reported to control clients
	Manufacturer = "soundsystem-go"
)

// String returns the product name followed by its version
func String() string {
	return Product + " " + Version
}
