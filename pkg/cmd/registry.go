// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/lariat-run/lariat/pkg/registry"
)

// NewRegistry builds a registry with all built-in node workers registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.New(logger)
	reg.RegisterDefaultWorkers()

	return reg
}
