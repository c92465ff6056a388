package factory

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/carrodher/loadBalancer/internal/logger"
)

// ReadConfig loads a yaml config from path, fills defaults and validates it.
func ReadConfig(path string) (*Config, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(content)
}

func ParseConfig(content []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.SetDefaults()
	if _, err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.CfgLog.Infof("config version [%s] loaded", cfg.GetVersion())
	return cfg, nil
}
