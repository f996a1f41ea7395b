// MCP server configuration file support.
//
// The file uses the common "mcpServers" layout:
//
//	{
//	  "mcpServers": {
//	    "filesystem": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
)

// Config is the parsed configuration file.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig describes how to launch one server.
type ServerConfig struct {
	Name    string            `json:"-"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

var serverName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// LoadConfig reads a configuration file. An empty path yields an empty
// configuration.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read MCP config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse MCP config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	for name, s := range c.MCPServers {
		if !serverName.MatchString(name) {
			errs = append(errs, fmt.Errorf("server name %q must match %s", name, serverName))
		}
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("server %q has no command", name))
		}
	}
	return errors.Join(errs...)
}

// Servers returns the configured servers sorted by name.
func (c Config) Servers() []ServerConfig {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServerConfig, len(names))
	for i, name := range names {
		s := c.MCPServers[name]
		s.Name = name
		out[i] = s
	}
	return out
}
