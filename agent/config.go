// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"

	"github.com/netdata/zbxmongo/pkg/confopt"
)

// Config is the poll configuration. Values come from DefaultConfig, then the
// optional config file, then command line flags.
type Config struct {
	// Hostname is the host name items are reported under in Zabbix.
	Hostname string `yaml:"hostname"`

	DBHost string `yaml:"db_host"`
	DBPort int    `yaml:"db_port"`

	ZabbixServer string `yaml:"zabbix_server"`
	ZabbixPort   int    `yaml:"zabbix_port"`
	ZabbixSender string `yaml:"zabbix_sender"`

	Timeout        confopt.Duration `yaml:"timeout"`
	RetryDelay     confopt.Duration `yaml:"retry_delay"`
	ReconnectDelay confopt.Duration `yaml:"reconnect_delay"`
	SendRetryDelay confopt.Duration `yaml:"send_retry_delay"`
	UpdateEvery    confopt.Duration `yaml:"update_every"`

	PIDDir    string `yaml:"pid_dir"`
	DebugMode bool   `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		DBHost:         "localhost",
		DBPort:         27017,
		ZabbixSender:   "zabbix_sender",
		Timeout:        confopt.Duration(time.Second * 5),
		RetryDelay:     confopt.Duration(time.Second * 5),
		ReconnectDelay: confopt.Duration(time.Second * 5),
		SendRetryDelay: confopt.Duration(time.Second * 10),
		UpdateEvery:    confopt.Duration(time.Second * 10),
		PIDDir:         "/tmp",
	}
}

// LoadConfig reads path over the defaults. A leading "~" is expanded.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	path, err := homedir.Expand(path)
	if err != nil {
		return cfg, err
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.UnmarshalStrict(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("parse '%s': %w", path, err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.ZabbixServer == "" {
		return errors.New("zabbix server is not set")
	}
	if c.Hostname == "" {
		return errors.New("reporting hostname is not set")
	}
	if c.DBHost == "" {
		return errors.New("database host is not set")
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("invalid database port %d", c.DBPort)
	}
	if c.ZabbixPort < 0 || c.ZabbixPort > 65535 {
		return fmt.Errorf("invalid zabbix port %d", c.ZabbixPort)
	}
	for name, d := range map[string]confopt.Duration{
		"timeout":          c.Timeout,
		"retry_delay":      c.RetryDelay,
		"reconnect_delay":  c.ReconnectDelay,
		"send_retry_delay": c.SendRetryDelay,
		"update_every":     c.UpdateEvery,
	} {
		if d <= 0 {
			return fmt.Errorf("'%s' must be positive, got %s", name, d)
		}
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("hostname=%s, db=%s:%d, zabbix=%s:%d, sender=%s, update_every=%s",
		c.Hostname, c.DBHost, c.DBPort, c.ZabbixServer, c.ZabbixPort, c.ZabbixSender, c.UpdateEvery)
}
