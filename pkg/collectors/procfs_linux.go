package collectors

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"

	"github.com/openfroyo/hostfacts/pkg/plugin"
)

func (c *collector) proc() (procfs.FS, error) {
	return procfs.NewFS(filepath.Join(c.root, "proc"))
}

func (c *collector) cpu(ctx context.Context, env plugin.LegacyEnv) error {
	pfs, err := c.proc()
	if err != nil {
		return fmt.Errorf("failed to open procfs: %w", err)
	}
	infos, err := pfs.CPUInfo()
	if err != nil {
		return fmt.Errorf("failed to read cpuinfo: %w", err)
	}

	cpu := map[string]any{"total": len(infos)}
	physical := make(map[string]bool)
	for _, info := range infos {
		if info.PhysicalID != "" {
			physical[info.PhysicalID] = true
		}
	}
	if len(physical) > 0 {
		cpu["real"] = len(physical)
	}
	if len(infos) > 0 {
		first := infos[0]
		if first.ModelName != "" {
			cpu["model_name"] = first.ModelName
		}
		if first.VendorID != "" {
			cpu["vendor_id"] = first.VendorID
		}
		if first.CPUMHz > 0 {
			cpu["mhz"] = first.CPUMHz
		}
	}
	return env.Set("cpu", cpu)
}

func (c *collector) memory(ctx context.Context, env plugin.LegacyEnv) error {
	pfs, err := c.proc()
	if err != nil {
		return fmt.Errorf("failed to open procfs: %w", err)
	}
	mem, err := pfs.Meminfo()
	if err != nil {
		return fmt.Errorf("failed to read meminfo: %w", err)
	}

	// Meminfo reports kB.
	fields := []struct {
		attr string
		kb   *uint64
	}{
		{"total_mb", mem.MemTotal},
		{"free_mb", mem.MemFree},
		{"available_mb", mem.MemAvailable},
		{"swap/total_mb", mem.SwapTotal},
		{"swap/free_mb", mem.SwapFree},
	}
	for _, f := range fields {
		if f.kb == nil {
			continue
		}
		if err := env.Set("memory/"+f.attr, int64(*f.kb/1024)); err != nil {
			return err
		}
	}
	return nil
}

// network reports each interface under sys/class/net. The loopback device
// is included.
func (c *collector) network(ctx context.Context, env plugin.LegacyEnv) error {
	sfs, err := sysfs.NewFS(filepath.Join(c.root, "sys"))
	if err != nil {
		return fmt.Errorf("failed to open sysfs: %w", err)
	}
	ifaces, err := sfs.NetClass()
	if err != nil {
		return fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for name, nc := range ifaces {
		if err := ctx.Err(); err != nil {
			return err
		}

		iface := make(map[string]any)
		if nc.Address != "" {
			iface["mac_address"] = nc.Address
		}
		if nc.OperState != "" {
			iface["state"] = nc.OperState
		}
		if nc.MTU != nil {
			iface["mtu"] = *nc.MTU
		}
		if err := env.Set("network/interfaces/"+name, iface); err != nil {
			return err
		}
	}
	return nil
}
