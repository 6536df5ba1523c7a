// ABOUTME: Version information for peakd binaries
// ABOUTME: Reported by -version, the TUI and mDNS TXT records
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the product name
	Product = "peakd"

	// Manufacturer identifies who ships the binaries
	Manufacturer = "Sendspin"
)

// String returns "peakd 0.3.0"
func String() string {
	return Product + " " + Version
}
