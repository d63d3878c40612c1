package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigFile is the project-level config file name.
const DefaultConfigFile = ".crashdump.yaml"

// DefaultConfigYAML is written by `juju-k8s-crashdump init`. Every value
// matches the loader defaults.
const DefaultConfigYAML = `# juju-k8s-crashdump configuration
#
# Every key can be overridden with a CRASHDUMP_* environment variable,
# e.g. CRASHDUMP_RETRY_COUNT=4, or with the matching command line flag.

log:
  level: info      # debug, info, warn, error
  format: auto     # auto, text, json

# Each failed juju/kubectl call is retried count times, delay apart.
retry:
  count: 2
  delay: 1s

collect:
  # Partitions and resource kinds collected concurrently. 1 is sequential.
  max_parallel: 4
  # Upper bound on concurrently running juju/kubectl processes.
  max_processes: 4
  # Process starts per second, 0 for no limit.
  spawn_rate: 0
  # Abort on the first failed artifact instead of recording a placeholder.
  fail_fast: false
  # Deadline for the whole run, 0s for none.
  timeout: 0s
  # Models with this name are covered by the controller partition.
  controller_marker: controller
  # Record facts about the collecting host in _crashdump/host.json.
  host_facts: true

tools:
  juju: juju
  kubectl: kubectl

output:
  # Defaults to <cwd>/<timestamp>.tar.gz
  path: ""
  level: -1

# Optional upload of the archive to S3-compatible storage.
upload:
  endpoint: ""     # host[:port], empty disables upload
  bucket: ""
  prefix: ""
  region: ""
  access_key: ""
  secret_key: ""
  use_ssl: true
`

// WriteDefault writes DefaultConfigYAML to path. An existing file is only
// replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking config file: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(DefaultConfigYAML); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
