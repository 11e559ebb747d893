package deploy

// defaultConfigTOML is the commented default main configuration document.
const defaultConfigTOML = `# mailing_server configuration
# The service reads this file from its working directory.

[smtp]
username = "no-reply@example.com"
password = "change-me"
server = "mail.ramfield.net"
port = 465
to = "admin@example.com"
from = "no-reply@example.com"

[app]
loop_interval_seconds = 30
rate_limit = 5
# bind = "0.0.0.0:1827"
# queue_ttl_seconds = 300
# log_level = "info"
# metrics_bind = "127.0.0.1:9109"
`

// defaultOverridesTOML is the default overrides document. Values set here
// are merged over Config.toml at load time.
const defaultOverridesTOML = `# mailing_server local overrides
# Settings here take precedence over Config.toml.
`

// GenerateDefaultDocument returns the default content for a named
// configuration document. Unknown names yield an empty document.
func GenerateDefaultDocument(name string) string {
	switch name {
	case "Config.toml":
		return defaultConfigTOML
	case "Overrides.toml":
		return defaultOverridesTOML
	default:
		return ""
	}
}
