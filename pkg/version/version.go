package version

// Build holds the build identifier, injected via -ldflags "-X vpnctl/pkg/version.Build=...". Default "dev".
var Build = "dev"

// String formats the build for the version command.
func String() string {
	return "vpnctl " + Build
}
