package config

import (
	"fmt"
	"os"
)

func Template() string {
	return fetchTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(fetchTemplate), 0o600)
}

const fetchTemplate = `# seqfetch configuration
host = "localhost"
port = 3000
output = "output.json"

# metrics_addr = "127.0.0.1:9108"
# log_level = "info"

connect_timeout = "5s"
write_timeout = "5s"
# 0s waits forever for the server to close the stream.
idle_timeout = "30s"

max_connect_attempts = 3
max_resend_rounds = 5
# Highest sequence the gap scan covers. Packets above it are still written,
# but the run fails unless allow_partial is set.
max_sequence = 65535

# "last-write-wins" or "reject"
duplicate_policy = "last-write-wins"
allow_partial = false

[backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true
`
