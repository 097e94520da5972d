//nolint:revive // types is a common Go package naming convention
package types

// Version is the release version stamped into reports, archives and the CLI.
const Version = "0.3.0"

// ReportVersion is the schema version of the JSON run report.
const ReportVersion = "1"

// AppID identifies sieve to remote services (HTTP User-Agent, AWS app ID).
const AppID = "sieve/" + Version
