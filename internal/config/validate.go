// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator instance. The validator caches
// struct metadata, so one instance serves the whole process.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %s failed %q validation", first.Namespace(), first.Tag())
		}
		return err
	}

	seen := make(map[string]struct{}, len(c.Profiles))
	for _, p := range c.Profiles {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate profile name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	if len(c.Mappings.Sources) == 0 && c.Mappings.CustomSource == "" {
		return fmt.Errorf("mappings: at least one source or a custom source is required")
	}

	if c.Sync.PollInterval > 0 && c.Sync.Interval > 0 && c.Sync.PollInterval > c.Sync.Interval {
		return fmt.Errorf("sync: poll_interval (%s) must not exceed interval (%s)",
			c.Sync.PollInterval, c.Sync.Interval)
	}

	if c.Backup.Enabled && c.Backup.Dir == "" {
		return fmt.Errorf("backup: dir is required when backups are enabled")
	}

	return nil
}

// asValidationErrors unwraps a validator.ValidationErrors from err.
func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}
