package config

import (
	"fmt"
	"time"

	"github.com/grovetools/modelcore/errors"
	"github.com/moby/patternmatcher"
)

// Validate checks the semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if err := validateDuration("poll_interval", c.PollInterval); err != nil {
		return err
	}
	if err := validateDuration("watch.debounce", c.Watch.Debounce); err != nil {
		return err
	}

	switch c.Reclaim {
	case ReclaimAsync, ReclaimSync:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("reclaim must be '%s' or '%s'", ReclaimAsync, ReclaimSync)).
			WithDetail("reclaim", c.Reclaim)
	}

	if _, err := patternmatcher.New(c.Watch.Ignore); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid watch.ignore pattern").
			WithDetail("patterns", c.Watch.Ignore)
	}

	return nil
}

func validateDuration(field, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, fmt.Sprintf("%s is not a duration", field)).
			WithDetail(field, value)
	}
	if d <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("%s must be positive", field)).
			WithDetail(field, value)
	}
	return nil
}
