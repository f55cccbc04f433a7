package topology

import (
	"fmt"
	"sort"
)

// Domain is a named group of hosts sharing a type, representing one
// logical test deployment.
type Domain struct {
	Config *Config
	Type   string
	Name   string
	Hosts  []*Host
}

// StaticRoles lists the roles considered standard for this domain
// type. Roles outside this set are reported by ExtraRoles.
func (d *Domain) StaticRoles() []string {
	return []string{"master"}
}

// Roles returns the deduplicated, sorted set of roles present in this
// domain.
func (d *Domain) Roles() []string {
	seen := make(map[string]bool, len(d.Hosts))
	var roles []string
	for _, h := range d.Hosts {
		if !seen[h.Role] {
			seen[h.Role] = true
			roles = append(roles, h.Role)
		}
	}
	sort.Strings(roles)
	return roles
}

// ExtraRoles returns the roles present in this domain that are not
// part of StaticRoles.
func (d *Domain) ExtraRoles() []string {
	static := make(map[string]bool)
	for _, r := range d.StaticRoles() {
		static[r] = true
	}
	var extra []string
	for _, r := range d.Roles() {
		if !static[r] {
			extra = append(extra, r)
		}
	}
	return extra
}

// HostsByRole returns all hosts of the given role, preserving host
// order.
func (d *Domain) HostsByRole(role string) []*Host {
	var hosts []*Host
	for _, h := range d.Hosts {
		if h.Role == role {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// HostByRole returns the first host of the given role.
func (d *Domain) HostByRole(role string) (*Host, error) {
	for _, h := range d.Hosts {
		if h.Role == role {
			return h, nil
		}
	}
	return nil, fmt.Errorf("role %q in domain %s: %w", role, d.Name, ErrNotFound)
}

// HostByName returns the first host whose hostname, external hostname,
// or shortname equals name.
func (d *Domain) HostByName(name string) (*Host, error) {
	for _, h := range d.Hosts {
		if name == h.Hostname || name == h.ExternalHostname || name == h.Shortname {
			return h, nil
		}
	}
	return nil, fmt.Errorf("host %q in domain %s: %w", name, d.Name, ErrNotFound)
}

// fits reports whether this domain can satisfy the descriptor: the
// type matches and every requested role has at least the requested
// number of hosts.
func (d *Domain) fits(desc Descriptor) bool {
	if d.Type != desc.domainType() {
		return false
	}
	for role, n := range desc.Hosts {
		if len(d.HostsByRole(role)) < n {
			return false
		}
	}
	return true
}

// pruned selects hosts to exactly satisfy the per-role counts, keeping
// the first N hosts of each role in existing order. The second return
// value maps roles to counts still short, if any.
func (d *Domain) pruned(counts map[string]int) ([]*Host, map[string]int) {
	remaining := make(map[string]int, len(counts))
	for role, n := range counts {
		remaining[role] = n
	}
	var kept []*Host
	for _, h := range d.Hosts {
		if remaining[h.Role] > 0 {
			kept = append(kept, h)
			remaining[h.Role]--
		}
	}
	missing := make(map[string]int)
	for role, n := range remaining {
		if n > 0 {
			missing[role] = n
		}
	}
	if len(missing) > 0 {
		return nil, missing
	}
	return kept, nil
}

func domainFromDict(cfg *Config, entry any) (*Domain, error) {
	m, ok := asStringMap(entry)
	if !ok {
		return nil, configErrorf("domain entry must be a mapping, got %T", entry)
	}
	d := newDict("domain", m)

	name, err := d.popString("name", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, configErrorf("domain: missing required key \"name\"")
	}
	d.name = "domain " + name

	typ, err := d.popString("type", DefaultDomainType)
	if err != nil {
		return nil, err
	}

	dom := &Domain{Config: cfg, Type: typ, Name: name}

	hosts, ok, err := d.popList("hosts")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, configErrorf("domain %s: missing required key \"hosts\"", name)
	}
	for _, hostEntry := range hosts {
		h, err := hostFromDict(dom, hostEntry)
		if err != nil {
			return nil, err
		}
		dom.Hosts = append(dom.Hosts, h)
	}

	if err := d.checkEmpty(); err != nil {
		return nil, err
	}
	return dom, nil
}

func (d *Domain) toDict() map[string]any {
	hosts := make([]any, 0, len(d.Hosts))
	for _, h := range d.Hosts {
		hosts = append(hosts, h.toDict())
	}
	return map[string]any{
		"type":  d.Type,
		"name":  d.Name,
		"hosts": hosts,
	}
}
