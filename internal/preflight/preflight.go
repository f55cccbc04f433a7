// Package preflight checks that the SSH ports of a configured host
// pool are reachable before a test session starts, so resource
// problems surface as one scan instead of per-test connection
// timeouts.
package preflight

import (
	"context"
	"fmt"
	"log"
	"strconv"

	nmap "github.com/Ullaakut/nmap/v3"

	"multihost/internal/topology"
)

// Result is the reachability verdict for one host's SSH port.
type Result struct {
	Hostname string
	Addr     string
	Port     int
	Open     bool
}

// Check scans the SSH port of every host in the pool and reports which
// ones are reachable. Hosts are scanned by resolved IP, grouped by
// port.
func Check(ctx context.Context, cfg *topology.Config) ([]Result, error) {
	var results []Result
	for port, hosts := range portGroups(cfg) {
		open, err := scanPort(ctx, hostIPs(hosts), port)
		if err != nil {
			return nil, err
		}
		for _, h := range hosts {
			results = append(results, Result{
				Hostname: h.Hostname,
				Addr:     h.IP,
				Port:     port,
				Open:     open[h.IP],
			})
		}
	}
	return results, nil
}

// portGroups buckets the pool's hosts by SSH port so each port needs
// only one scan.
func portGroups(cfg *topology.Config) map[int][]*topology.Host {
	groups := make(map[int][]*topology.Host)
	for _, d := range cfg.Domains {
		for _, h := range d.Hosts {
			groups[h.Port] = append(groups[h.Port], h)
		}
	}
	return groups
}

func hostIPs(hosts []*topology.Host) []string {
	seen := make(map[string]bool, len(hosts))
	var ips []string
	for _, h := range hosts {
		if !seen[h.IP] {
			seen[h.IP] = true
			ips = append(ips, h.IP)
		}
	}
	return ips
}

// scanPort runs one nmap scan and returns the set of addresses with
// the port open.
func scanPort(ctx context.Context, targets []string, port int) (map[string]bool, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(targets...),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan port %d: %w", port, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("preflight: nmap warnings: %v", *warnings)
	}

	open := make(map[string]bool)
	for _, host := range result.Hosts {
		portOpen := false
		for _, p := range host.Ports {
			if int(p.ID) == port && p.State.State == "open" {
				portOpen = true
				break
			}
		}
		if !portOpen {
			continue
		}
		for _, addr := range host.Addresses {
			open[addr.Addr] = true
		}
	}
	return open, nil
}
