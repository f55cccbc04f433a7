package topology

import (
	"fmt"
	"sort"
	"strings"
)

// Descriptor declares what a test wants from one domain: a domain type
// and the number of hosts required per role.
type Descriptor struct {
	Type  string
	Hosts map[string]int
}

func (d Descriptor) domainType() string {
	if d.Type == "" {
		return DefaultDomainType
	}
	return d.Type
}

func (d Descriptor) String() string {
	parts := make([]string, 0, len(d.Hosts))
	for role, n := range d.Hosts {
		parts = append(parts, fmt.Sprintf("%s=%d", role, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("{type: %s, hosts: %s}", d.domainType(), strings.Join(parts, ", "))
}

// Filter destructively selects and reorders domains to satisfy the
// descriptors, in descriptor order, and prunes each selected domain's
// hosts down to exactly the requested per-role counts. Domains and
// hosts not matched by any descriptor are discarded.
//
// Matching is greedy first-fit: for each descriptor, the first domain
// of the right type whose role counts suffice is taken, which may
// starve a later descriptor that only a taken domain could satisfy.
// The greedy scan cannot disambiguate two descriptors of the same
// type, so duplicate types are rejected up front.
//
// The visible state is all-or-nothing: on any error the Config is left
// unmodified.
func (c *Config) Filter(descriptions []Descriptor) error {
	seen := make(map[string]bool, len(descriptions))
	for _, desc := range descriptions {
		t := desc.domainType()
		if seen[t] {
			return configErrorf("duplicate domain type %q in filter request", t)
		}
		seen[t] = true
	}

	pool := append([]*Domain(nil), c.Domains...)
	matched := make([]*Domain, 0, len(descriptions))
	staged := make(map[*Domain][]*Host, len(descriptions))

	for i, desc := range descriptions {
		found := -1
		for j, dom := range pool {
			if dom.fits(desc) {
				found = j
				break
			}
		}
		if found < 0 {
			return &ResourceError{Index: i, Descriptor: desc}
		}
		dom := pool[found]
		kept, missing := dom.pruned(desc.Hosts)
		if len(missing) > 0 {
			return &ResourceError{Index: i, Descriptor: desc, Missing: missing}
		}
		staged[dom] = kept
		matched = append(matched, dom)
		pool = append(pool[:found], pool[found+1:]...)
	}

	for _, dom := range matched {
		dom.Hosts = staged[dom]
	}
	c.Domains = matched
	return nil
}
