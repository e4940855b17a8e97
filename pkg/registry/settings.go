package registry

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/depstack/pkg/errors"
)

// DefaultURL is the official registry endpoint used when no configuration
// overrides it.
const DefaultURL = "https://registry.depstack.dev"

// Settings is the [registry] section of the global configuration file.
type Settings struct {
	// Path points at a local filesystem registry. When set, packages are
	// looked up under <path>/<namespace>/<name>/<version>/ and no network
	// requests are made.
	Path string `toml:"path"`
	// URL is the remote registry base. Defaults to DefaultURL.
	URL string `toml:"url"`
	// CachePath is the root of the per-user download cache. Defaults to
	// <user-cache-dir>/depstack/registry.
	CachePath string `toml:"cache-path"`
}

type configFile struct {
	Registry Settings `toml:"registry"`
}

// LoadSettings reads the global configuration. When override is empty the
// file is looked up at <user-config-dir>/depstack/config.toml. A missing
// file yields defaults; malformed content is an error.
func LoadSettings(override string) (Settings, error) {
	path := override
	if path == "" {
		dir, err := os.UserConfigDir()
		if err == nil {
			path = filepath.Join(dir, "depstack", "config.toml")
		}
	}

	var cfg configFile
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No configuration file: defaults apply.
		case err != nil:
			return Settings{}, errors.Wrap(errors.ErrCodeInternal, err, "read config %s", path)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Settings{}, errors.Wrap(errors.ErrCodeInternal, err, "parse config %s", path)
			}
		}
	}

	s := cfg.Registry
	if s.URL == "" {
		s.URL = DefaultURL
	}
	if s.CachePath == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			s.CachePath = filepath.Join(dir, "depstack", "registry")
		}
	}
	return s, nil
}
