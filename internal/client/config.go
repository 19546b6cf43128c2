package client

import (
	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/snapi"
)

// Config is everything a client session needs: the project and the instance it syncs with.
type Config struct {
	Project *config.Config
	Remote  *snapi.Config
}

func (c *Config) Validate() error {
	if c.Project == nil {
		return config.ErrNoConfig
	}
	if err := c.Project.Validate(); err != nil {
		return err
	}
	if c.Remote == nil {
		return snapi.ErrNoInstance
	}
	return c.Remote.Validate()
}
