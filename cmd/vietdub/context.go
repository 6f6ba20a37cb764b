package main

import (
	"strings"
	"sync"

	"vietdub/internal/api"
	"vietdub/internal/config"
	"vietdub/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withJobs opens the shared queue database and hands a JobService to fn.
// The CLI and daemon coordinate through SQLite, so commands work whether or
// not the daemon is running; cancellation flags are picked up by the daemon
// on its next poll.
func (c *commandContext) withJobs(fn func(*config.Config, *queue.Store, *api.JobService) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store, api.NewJobService(store, cfg))
}
