package version

const (
	version = "v0.1.0"

	// ElectrumProtocol is the electrum protocol version the client speaks.
	ElectrumProtocol = "1.4"
)

// GitCommit is set at build time.
var GitCommit string

// GetCurrentVersion returns the hardcoded implementation version.
func GetCurrentVersion() string {
	return version
}

// UserAgent is the client name sent in server.version.
func UserAgent() string {
	if GitCommit == "" {
		return "electrumpay/" + version
	}
	return "electrumpay/" + version + "-" + GitCommit
}

// SupportsProtocol reports whether a protocol version negotiated with a
// server is at least ElectrumProtocol.
func SupportsProtocol(negotiated string) (bool, error) {
	return AtLeast(negotiated, ElectrumProtocol)
}
