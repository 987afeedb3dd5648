// Package config loads the fork database's tunables from an .ini file,
// using the Section(...).MapTo(...) style.
package config

import "gopkg.in/ini.v1"

// Config holds the host-configurable knobs around the fork database: where
// its snapshot file lives and a snapshot version window. Nothing in this
// module reads these values; forkdb's snapshot loader checks versions
// against its own MinSupportedVersion/MaxSupportedVersion constants.
type Config struct {
	DataDir             string `ini:"data_dir"`
	SnapshotFile        string `ini:"snapshot_file"`
	MinSupportedVersion uint32 `ini:"min_supported_version"`
	MaxSupportedVersion uint32 `ini:"max_supported_version"`
}

// Default returns the out-of-the-box configuration used when no .ini file
// is supplied.
func Default() *Config {
	return &Config{
		DataDir:             "./data",
		SnapshotFile:        "fork_db.dat",
		MinSupportedVersion: 1,
		MaxSupportedVersion: 1,
	}
}

// Load reads the [forkdb] section of path, falling back to Default() for any
// field left unset in the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	section := f.Section("forkdb")
	if err := section.MapTo(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
