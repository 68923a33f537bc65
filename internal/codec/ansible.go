package codec

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"fleetwall/internal/domain"
)

// AnsibleCodec imports device groups from an Ansible YAML inventory and
// exports groups back to one. Rules and address lists are not part of an
// inventory.
type AnsibleCodec struct{}

// NewAnsibleCodec creates a new Ansible codec
func NewAnsibleCodec() *AnsibleCodec {
	return &AnsibleCodec{}
}

// Format returns the codec format identifier
func (c *AnsibleCodec) Format() string {
	return "ansible-inventory"
}

// ansibleInventory represents the Ansible inventory structure
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
	Hosts    map[string]ansibleHost     `yaml:"hosts,omitempty"`
	Vars     map[string]interface{}     `yaml:"vars,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
	Vars  map[string]interface{} `yaml:"vars,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string                 `yaml:"ansible_host,omitempty"`
	Vars        map[string]interface{} `yaml:",inline"`
}

// ungroupedGroup holds hosts listed directly under all
const ungroupedGroup = "ungrouped"

// Parse reads an inventory. Every child group becomes a device group; hosts
// are ordered by name since inventory maps carry no order.
func (c *AnsibleCodec) Parse(r io.Reader) (*domain.Definitions, error) {
	var inv ansibleInventory
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to parse Ansible inventory: %w", err)
	}

	defs := &domain.Definitions{}

	names := make([]string, 0, len(inv.All.Children))
	for name := range inv.All.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := inv.All.Children[name]
		defs.Groups = append(defs.Groups, c.toGroup(name, group.Hosts, mergeVars(inv.All.Vars, group.Vars)))
	}
	if len(inv.All.Hosts) > 0 {
		defs.Groups = append(defs.Groups, c.toGroup(ungroupedGroup, inv.All.Hosts, inv.All.Vars))
	}

	if problems := defs.Check(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid inventory: %w", errors.Join(problems...))
	}
	return defs, nil
}

func (c *AnsibleCodec) toGroup(name string, hosts map[string]ansibleHost, groupVars map[string]interface{}) domain.DeviceGroup {
	group := domain.DeviceGroup{ID: name, Name: name}

	hostIDs := make([]string, 0, len(hosts))
	for id := range hosts {
		hostIDs = append(hostIDs, id)
	}
	sort.Strings(hostIDs)

	for _, id := range hostIDs {
		host := hosts[id]
		vars := mergeVars(groupVars, host.Vars)

		device := domain.Device{ID: id, Address: host.AnsibleHost}
		if device.Address == "" {
			// inventory hostname doubles as the address
			device.Address = id
		}
		device.Port = intVar(vars["ansible_port"])
		device.Family = networkOSFamily(vars["ansible_network_os"])
		group.Devices = append(group.Devices, device)
	}
	return group
}

// Export writes device groups as an inventory
func (c *AnsibleCodec) Export(groups []domain.DeviceGroup, w io.Writer) error {
	inv := ansibleInventory{
		All: ansibleGroup{Children: make(map[string]ansibleGroupDef)},
	}

	for _, g := range groups {
		def := ansibleGroupDef{Hosts: make(map[string]ansibleHost)}
		for _, d := range g.Devices {
			host := ansibleHost{AnsibleHost: d.Address, Vars: make(map[string]interface{})}
			if d.Port != 0 {
				host.Vars["ansible_port"] = d.Port
			}
			if d.Family == "routeros" {
				host.Vars["ansible_network_os"] = "community.routeros.routeros"
			}
			def.Hosts[d.ID] = host
		}
		inv.All.Children[g.ID] = def
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode Ansible inventory: %w", err)
	}
	return nil
}

func mergeVars(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func intVar(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

// networkOSFamily maps ansible_network_os values to parser families
func networkOSFamily(v interface{}) string {
	s, _ := v.(string)
	s = strings.ToLower(s)
	switch {
	case s == "":
		return ""
	case strings.HasSuffix(s, "routeros"):
		return "routeros"
	default:
		return s
	}
}
