//go:build !linux

package collectors

import (
	"context"
	"fmt"
	"runtime"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

func (c *collector) cpu(ctx context.Context, env plugin.LegacyEnv) error {
	return fmt.Errorf("cpu facts are not supported on %s", runtime.GOOS)
}

func (c *collector) memory(ctx context.Context, env plugin.LegacyEnv) error {
	return fmt.Errorf("memory facts are not supported on %s", runtime.GOOS)
}

func (c *collector) network(ctx context.Context, env plugin.LegacyEnv) error {
	return fmt.Errorf("network facts are not supported on %s", runtime.GOOS)
}
