// ABOUTME: Version and product constants
// ABOUTME: Shown by --version and in the monitor header
package version

const (
	Version      = "0.3.0"
	Product      = "heos-monitor"
	Manufacturer = "heos-go"
)

// String returns "product version"
func String() string {
	return Product + " " + Version
}
