// Package loader reads rule, address-list and device-group definitions from
// YAML files.
package loader

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fleetwall/internal/domain"
)

// DefinitionsYAML represents the YAML file structure. Sections are
// sequences so declaration order survives the round trip.
type DefinitionsYAML struct {
	Version      string            `yaml:"version"`
	AddressLists []AddressListYAML `yaml:"address_lists,omitempty"`
	Groups       []GroupYAML       `yaml:"groups,omitempty"`
	Rules        []RuleYAML        `yaml:"rules,omitempty"`
}

// AddressListYAML represents an address list
type AddressListYAML struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Entries     []string `yaml:"entries"`
}

// GroupYAML represents a device group
type GroupYAML struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name,omitempty"`
	Devices []DeviceYAML `yaml:"devices"`
}

// DeviceYAML represents a device within a group
type DeviceYAML struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port,omitempty"`
	Family  string `yaml:"family,omitempty"`
}

// RuleYAML represents a firewall rule
type RuleYAML struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name,omitempty"`
	Description    string `yaml:"description,omitempty"`
	Group          string `yaml:"group,omitempty"`
	Chain          string `yaml:"chain"`
	Action         string `yaml:"action"`
	SrcAddress     string `yaml:"src_address,omitempty"`
	SrcAddressList string `yaml:"src_address_list,omitempty"`
	DstAddress     string `yaml:"dst_address,omitempty"`
	DstAddressList string `yaml:"dst_address_list,omitempty"`
	Protocol       string `yaml:"protocol,omitempty"`
	Port           string `yaml:"port,omitempty"`
	Comment        string `yaml:"comment,omitempty"`
}

// LoadYAML loads and checks definitions from a YAML file
func LoadYAML(path string) (*domain.Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseYAML(data)
}

// ParseYAML parses definitions from YAML bytes. Every definition is checked
// and all problems are returned joined.
func ParseYAML(data []byte) (*domain.Definitions, error) {
	var y DefinitionsYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	defs := convertYAMLToDefinitions(&y)
	if problems := defs.Check(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid definitions: %w", errors.Join(problems...))
	}
	return defs, nil
}

func convertYAMLToDefinitions(y *DefinitionsYAML) *domain.Definitions {
	defs := &domain.Definitions{}

	for _, l := range y.AddressLists {
		defs.AddressLists = append(defs.AddressLists, domain.AddressList{
			Name:        l.Name,
			Description: l.Description,
			Entries:     l.Entries,
		})
	}

	for _, g := range y.Groups {
		group := domain.DeviceGroup{ID: g.ID, Name: g.Name}
		for _, d := range g.Devices {
			group.Devices = append(group.Devices, domain.Device{
				ID:      d.ID,
				Name:    d.Name,
				Address: d.Address,
				Port:    d.Port,
				Family:  d.Family,
			})
		}
		defs.Groups = append(defs.Groups, group)
	}

	for _, r := range y.Rules {
		defs.Rules = append(defs.Rules, domain.FirewallRule{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			GroupID:     r.Group,
			Chain:       domain.Chain(r.Chain),
			Action:      domain.Action(r.Action),
			Source:      domain.AddressSpec{Address: r.SrcAddress, AddressList: r.SrcAddressList},
			Destination: domain.AddressSpec{Address: r.DstAddress, AddressList: r.DstAddressList},
			Protocol:    r.Protocol,
			Port:        r.Port,
			Comment:     r.Comment,
		})
	}

	return defs
}

// MarshalYAML renders definitions in the file format LoadYAML reads
func MarshalYAML(defs *domain.Definitions) ([]byte, error) {
	y := DefinitionsYAML{Version: "1"}

	for _, l := range defs.AddressLists {
		y.AddressLists = append(y.AddressLists, AddressListYAML{
			Name:        l.Name,
			Description: l.Description,
			Entries:     l.Entries,
		})
	}

	for _, g := range defs.Groups {
		group := GroupYAML{ID: g.ID, Name: g.Name}
		for _, d := range g.Devices {
			group.Devices = append(group.Devices, DeviceYAML(d))
		}
		y.Groups = append(y.Groups, group)
	}

	for _, r := range defs.Rules {
		y.Rules = append(y.Rules, RuleYAML{
			ID:             r.ID,
			Name:           r.Name,
			Description:    r.Description,
			Group:          r.GroupID,
			Chain:          string(r.Chain),
			Action:         string(r.Action),
			SrcAddress:     r.Source.Address,
			SrcAddressList: r.Source.AddressList,
			DstAddress:     r.Destination.Address,
			DstAddressList: r.Destination.AddressList,
			Protocol:       r.Protocol,
			Port:           r.Port,
			Comment:        r.Comment,
		})
	}

	return yaml.Marshal(&y)
}
