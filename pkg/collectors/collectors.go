// Package collectors provides plugins implemented in Go that read the local
// host directly. They are registered after file plugins, so a plugin file
// with the same identifier replaces the built-in one.
//
// Every collector reads below a root directory, normally "/", so tests can
// point them at a fixture tree. The proc and sys parsers come from
// prometheus/procfs.
package collectors

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

// Source is reported as the origin of built-in plugins.
const Source = "builtin"

// Plugins returns the built-in collectors reading below root.
func Plugins(root string) []plugin.Plugin {
	c := &collector{root: root, fsys: os.DirFS(root)}
	return []plugin.Plugin{
		plugin.NewLegacy("os", Source, c.os),
		plugin.NewLegacy("hostname", Source, c.hostname),
		plugin.NewLegacy("linux::cpu", Source, c.cpu),
		plugin.NewLegacy("linux::memory", Source, c.memory),
		plugin.NewLegacy("linux::network", Source, c.network),
		plugin.NewModern("linux::platform", Source,
			[]string{"platform", "platform_family", "platform_version"}, nil, c.platform),
		plugin.NewModern("linux::kernel", Source,
			[]string{"kernel"}, nil, c.kernel),
	}
}

type collector struct {
	root string
	fsys fs.FS
}

func (c *collector) readTrimmed(name string) (string, error) {
	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *collector) os(ctx context.Context, env plugin.LegacyEnv) error {
	if err := env.Set("os", runtime.GOOS); err != nil {
		return err
	}
	release, err := c.readTrimmed("proc/sys/kernel/osrelease")
	if err != nil {
		return nil
	}
	return env.Set("os_version", release)
}

func (c *collector) hostname(ctx context.Context, env plugin.LegacyEnv) error {
	name, err := c.readTrimmed("proc/sys/kernel/hostname")
	if err != nil {
		name, err = c.readTrimmed("etc/hostname")
		if err != nil {
			return fmt.Errorf("failed to read hostname: %w", err)
		}
	}

	if err := env.Set("hostname", name); err != nil {
		return err
	}
	if domain, err := c.readTrimmed("proc/sys/kernel/domainname"); err == nil && domain != "" && domain != "(none)" {
		return env.Set("fqdn", name+"."+domain)
	}
	return nil
}

func (c *collector) platform(ctx context.Context, env plugin.Env) error {
	data, err := fs.ReadFile(c.fsys, "etc/os-release")
	if err != nil {
		return fmt.Errorf("failed to read os-release: %w", err)
	}
	release := parseOSRelease(data)

	id := release["ID"]
	if id == "" {
		id = "linux"
	}
	family := id
	if like := strings.Fields(release["ID_LIKE"]); len(like) > 0 {
		family = like[0]
	}

	if err := env.Set("platform", id); err != nil {
		return err
	}
	if err := env.Set("platform_family", family); err != nil {
		return err
	}
	return env.Set("platform_version", release["VERSION_ID"])
}

func (c *collector) kernel(ctx context.Context, env plugin.Env) error {
	kernel := map[string]any{"machine": runtime.GOARCH}
	files := map[string]string{
		"name":    "proc/sys/kernel/ostype",
		"release": "proc/sys/kernel/osrelease",
		"version": "proc/sys/kernel/version",
	}
	for attr, name := range files {
		if value, err := c.readTrimmed(name); err == nil {
			kernel[attr] = value
		}
	}
	if _, ok := kernel["name"]; !ok {
		return fmt.Errorf("failed to read kernel type")
	}
	return env.Set("kernel", kernel)
}

// parseOSRelease parses KEY=value lines, removing shell quoting.
func parseOSRelease(data []byte) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		} else {
			value = strings.Trim(value, `'"`)
		}
		out[key] = value
	}
	return out
}
