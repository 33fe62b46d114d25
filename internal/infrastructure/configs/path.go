package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/codenexus/internal/infrastructure/env"
)

// DetermineConfigPath resolves the config file from the --config flag, the
// CODENEXUS_CONFIG variable, or a list of well known locations. An empty
// result means "defaults only".
func DetermineConfigPath(fs *flag.FlagSet, args []string) string {
	var configPath string

	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configPath = f.Value.String()
		}
	}

	if configPath == "" {
		configPath = env.GetString("CODENEXUS_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"../../config.yaml", // keep for local dev
			"/etc/codenexus/config.yaml",
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
