/*
	remote-flasher
	Copyright (c) 2026 OpenBlock Community.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config loads the remote flasher settings from the configuration
// file, the environment and the defaults, in this order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/session"
	"github.com/openblockcc/remote-flasher/transport"
	"github.com/spf13/viper"
)

// FileName is the name of the configuration file inside the data dir.
const FileName = "remote-flasher-config.json"

// EnvPrefix is prepended to every environment variable, e.g.
// REMOTE_FLASHER_TIMEOUT.
const EnvPrefix = "REMOTE_FLASHER"

// RemoteFlasherConfig tells whether flashing through the remote service is
// turned on and where the service lives.
type RemoteFlasherConfig struct {
	Enabled     bool   `json:"enabled"`
	ServerURL   string `json:"serverUrl"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Active reports whether the remote service should be used.
func (c RemoteFlasherConfig) Active() bool {
	return c.Enabled && strings.TrimSpace(c.ServerURL) != ""
}

// Reset holds the reset line timings.
type Reset struct {
	BootloaderPulse  time.Duration `mapstructure:"bootloader-pulse"`
	BootloaderSettle time.Duration `mapstructure:"bootloader-settle"`
	ReleasePulse     time.Duration `mapstructure:"release-pulse"`
	RestartPulse     time.Duration `mapstructure:"restart-pulse"`
}

// Config is the whole set of settings.
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServerURL   string `mapstructure:"serverUrl"`
	LastUpdated string `mapstructure:"lastUpdated"`

	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UploadTimeout  time.Duration `mapstructure:"upload-timeout"`

	CurlPath string `mapstructure:"curl-path"`
	Fallback bool   `mapstructure:"fallback"`

	Reset Reset `mapstructure:"reset"`

	SuccessPhrases   []string `mapstructure:"success-phrases"`
	FailurePhrases   []string `mapstructure:"failure-phrases"`
	MinServerVersion string   `mapstructure:"min-server-version"`

	BuildDir           string   `mapstructure:"build-dir"`
	FirmwareExtensions []string `mapstructure:"firmware-extensions"`
	HistoryDB          string   `mapstructure:"history-db"`

	// DataDir is where the configuration file lives, it is not read from it
	DataDir *paths.Path `mapstructure:"-" json:"-"`
}

// DefaultDataDir returns ~/.remote-flasher.
func DefaultDataDir() *paths.Path {
	home, err := os.UserHomeDir()
	if err != nil {
		return paths.TempDir().Join(".remote-flasher")
	}
	return paths.New(home, ".remote-flasher")
}

// New prepares a viper instance with the defaults, the environment binding
// and the configuration file found in dataDir.
func New(dataDir *paths.Path) *viper.Viper {
	v := viper.New()
	setDefaults(v, dataDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("serverUrl", EnvPrefix+"_SERVER_URL")

	v.SetConfigFile(dataDir.Join(FileName).String())
	v.SetConfigType("json")
	return v
}

func setDefaults(v *viper.Viper, dataDir *paths.Path) {
	timeouts := transport.DefaultTimeouts()
	timing := session.DefaultTiming()
	phrases := progress.DefaultPhrases()

	v.SetDefault("enabled", false)
	v.SetDefault("serverUrl", "")
	v.SetDefault("connect-timeout", timeouts.Connect)
	v.SetDefault("timeout", timeouts.Total)
	v.SetDefault("upload-timeout", timeouts.Upload)
	v.SetDefault("curl-path", "curl")
	v.SetDefault("fallback", true)
	v.SetDefault("reset.bootloader-pulse", timing.BootloaderPulse)
	v.SetDefault("reset.bootloader-settle", timing.BootloaderSettle)
	v.SetDefault("reset.release-pulse", timing.ReleasePulse)
	v.SetDefault("reset.restart-pulse", timing.RestartPulse)
	v.SetDefault("success-phrases", phrases.Success)
	v.SetDefault("failure-phrases", phrases.Failure)
	v.SetDefault("min-server-version", "")
	v.SetDefault("build-dir", "")
	v.SetDefault("firmware-extensions", []string{".hex"})
	v.SetDefault("history-db", dataDir.Join("history.db").String())
}

// Load reads the configuration file, when present, and decodes the
// resulting settings.
func Load(v *viper.Viper, dataDir *paths.Path) (*Config, error) {
	if file := v.ConfigFileUsed(); file != "" && paths.New(file).Exist() {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading configuration file %s: %w", file, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.DataDir = dataDir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for errors.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 || c.Timeout <= 0 || c.UploadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.CurlPath == "" {
		return fmt.Errorf("curl-path cannot be empty")
	}
	if len(c.SuccessPhrases) == 0 {
		return fmt.Errorf("success-phrases cannot be empty")
	}
	r := c.Reset
	if r.BootloaderPulse < 0 || r.BootloaderSettle < 0 || r.ReleasePulse < 0 || r.RestartPulse < 0 {
		return fmt.Errorf("reset timings cannot be negative")
	}
	return nil
}

// Remote returns the enabled flag and the service URL.
func (c *Config) Remote() RemoteFlasherConfig {
	return RemoteFlasherConfig{Enabled: c.Enabled, ServerURL: c.ServerURL, LastUpdated: c.LastUpdated}
}

// Timeouts returns the transport deadlines.
func (c *Config) Timeouts() transport.Timeouts {
	return transport.Timeouts{Connect: c.ConnectTimeout, Total: c.Timeout, Upload: c.UploadTimeout}
}

// Timing returns the reset line timings.
func (c *Config) Timing() session.Timing {
	return session.Timing{
		BootloaderPulse:  c.Reset.BootloaderPulse,
		BootloaderSettle: c.Reset.BootloaderSettle,
		ReleasePulse:     c.Reset.ReleasePulse,
		RestartPulse:     c.Reset.RestartPulse,
	}
}

// Phrases returns the texts that tell how a streamed flash ended.
func (c *Config) Phrases() progress.Phrases {
	return progress.Phrases{Success: c.SuccessPhrases, Failure: c.FailurePhrases}
}

// Save stores the enabled flag and the service URL in the configuration
// file of dataDir. Other settings already in the file are kept.
func Save(dataDir *paths.Path, remote RemoteFlasherConfig, now time.Time) error {
	if err := dataDir.MkdirAll(); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	file := dataDir.Join(FileName)

	settings := map[string]interface{}{}
	if file.Exist() {
		data, err := file.ReadFile()
		if err != nil {
			return fmt.Errorf("reading configuration file: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &settings); err != nil {
				return fmt.Errorf("parsing configuration file %s: %w", file, err)
			}
		}
	}
	settings["enabled"] = remote.Enabled
	settings["serverUrl"] = strings.TrimSpace(remote.ServerURL)
	settings["lastUpdated"] = now.UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := file.WriteFile(append(data, '\n')); err != nil {
		return fmt.Errorf("writing configuration file: %w", err)
	}
	return nil
}
