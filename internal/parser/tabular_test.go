package parser

import (
	"reflect"
	"strings"
	"testing"

	"fleetwall/internal/domain"
)

func routerOS() *Parser {
	return New(DefaultFamilies()[FamilyRouterOS])
}

func TestParseScenario(t *testing.T) {
	input := "Flags: R - RUNNING\r\nColumns: NAME, TYPE\r\n0 R ether2 ether\r\n1   eoip1 eoip\r\n"

	records := routerOS().Parse(input)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}

	want := []struct {
		index             int
		flags, name, typ string
	}{
		{0, "R", "ether2", "ether"},
		{1, "", "eoip1", "eoip"},
	}
	for i, w := range want {
		got := records[i]
		if got.Index != w.index || got.Flags != w.flags || got.Name != w.name || got.Type != w.typ {
			t.Errorf("record %d = %+v, want %+v", i, got, w)
		}
	}
	if !records[0].HasFlag('R') || records[1].HasFlag('R') {
		t.Error("unexpected running flags")
	}
}

func TestParseEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNames []string
	}{
		{
			name:      "empty input",
			input:     "",
			wantNames: nil,
		},
		{
			name:      "no header marker",
			input:     "0 R ether1 ether\n1 R ether2 ether\n",
			wantNames: nil,
		},
		{
			name:      "header with zero rows",
			input:     "Flags: X - DISABLED\nColumns: NAME, TYPE\n",
			wantNames: nil,
		},
		{
			name:      "final line without newline",
			input:     "Columns: NAME, TYPE\n0 ether1 ether\n1 ether2 ether",
			wantNames: []string{"ether1", "ether2"},
		},
		{
			name:      "header repeat and noise skipped",
			input:     "Columns: NAME, TYPE\n#   NAME   TYPE\n0 R ether1 ether\nfoo bar baz\n1 R ether2 ether\n",
			wantNames: []string{"ether1", "ether2"},
		},
		{
			name:      "blank lines ignored",
			input:     "Columns: NAME, TYPE\n\n0 ether1 ether\n   \n1 ether2 ether\n",
			wantNames: []string{"ether1", "ether2"},
		},
		{
			name:      "negative index skipped",
			input:     "Columns: NAME, TYPE\n-1 ether0 ether\n0 ether1 ether\n",
			wantNames: []string{"ether1"},
		},
		{
			name:      "duplicate index skipped",
			input:     "Columns: NAME, TYPE\n0 ether1 ether\n0 ether9 ether\n",
			wantNames: []string{"ether1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := routerOS().Parse(tt.input)
			var names []string
			for _, r := range records {
				names = append(names, r.Name)
			}
			if !reflect.DeepEqual(names, tt.wantNames) {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
		})
	}
}

func TestParseNumericSecondTokenIsNotFlags(t *testing.T) {
	input := "Columns: MTU, NAME\n0 1500 ether1\n"

	records := routerOS().Parse(input)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Flags != "" {
		t.Errorf("expected no flags, got %q", r.Flags)
	}
	if r.Value("mtu") != "1500" || r.Name != "ether1" {
		t.Errorf("unexpected mapping %+v", r.Values)
	}
}

func TestParseLastColumnAbsorbsRemainder(t *testing.T) {
	input := "Columns: TYPE, MTU, NAME\n0 R ether 1500 uplink to core switch\n"

	records := routerOS().Parse(input)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if got := records[0].Name; got != "uplink to core switch" {
		t.Errorf("expected multi-word name, got %q", got)
	}
	if records[0].Value("MTU") != "1500" {
		t.Errorf("expected MTU 1500, got %q", records[0].Value("MTU"))
	}
}

func TestParseNonIntegerLineDoesNotShiftOthers(t *testing.T) {
	base := "Columns: NAME, TYPE\n0 R ether1 ether\n1 R ether2 ether\n"
	noisy := "Columns: NAME, TYPE\n0 R ether1 ether\nx1 R bogus ether\n1 R ether2 ether\n"

	clean := routerOS().Parse(base)
	result := routerOS().ParseDetailed(noisy)

	if !reflect.DeepEqual(clean, result.Records) {
		t.Errorf("noise changed records: %+v vs %+v", clean, result.Records)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Line != 3 {
		t.Errorf("expected one skip on line 3, got %+v", result.Skipped)
	}
}

func TestParseFlagPolicyPerFamily(t *testing.T) {
	input := "Columns: NAME, TYPE\n0 R ether\n"

	t.Run("plain family has no flags column", func(t *testing.T) {
		records := New(DefaultFamilies()[FamilyPlain]).Parse(input)
		if len(records) != 1 || records[0].Name != "R" || records[0].Type != "ether" {
			t.Errorf("unexpected records %+v", records)
		}
	})

	t.Run("flags never consume the only value", func(t *testing.T) {
		records := routerOS().Parse("Columns: NAME\n0 R\n")
		if len(records) != 1 || records[0].Name != "R" || records[0].Flags != "" {
			t.Errorf("unexpected records %+v", records)
		}
	})

	t.Run("legend teaches codes", func(t *testing.T) {
		p := New(Options{LearnFlags: true})
		records := p.Parse("Flags: D - DYNAMIC; X - DISABLED\nColumns: NAME, TYPE\n0 DX vlan10 vlan\n1 R ether1 ether\n")
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Flags != "DX" || records[0].Name != "vlan10" {
			t.Errorf("unexpected first record %+v", records[0])
		}
		if records[1].Flags != "" || records[1].Name != "R" {
			t.Errorf("R is not in the legend, got %+v", records[1])
		}
	})
}

func TestFormatRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		input string
	}{
		{
			name:  "static codes",
			opts:  DefaultFamilies()[FamilyRouterOS],
			input: "Flags: X - DISABLED, R - RUNNING\nColumns: NAME, TYPE, MTU\n0 R ether1 ether 1500\n1 X wlan1 wlan 1500\n2   bridge bridge 1500\n",
		},
		{
			name:  "codes learned from legend",
			opts:  Options{LearnFlags: true},
			input: "Flags: D - DYNAMIC\nColumns: NAME, TYPE\n0 D vlan10 vlan\n1 ether2 ether\n",
		},
		{
			name:  "no flags column",
			opts:  Options{},
			input: "Columns: NAME, COMMENT\n0 ether1 uplink to core\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.opts)
			first := p.ParseDetailed(tt.input)
			second := p.ParseDetailed(Format(first.Columns, first.Records))

			if !reflect.DeepEqual(first.Columns, second.Columns) {
				t.Errorf("columns differ: %v vs %v", first.Columns, second.Columns)
			}
			if !reflect.DeepEqual(first.Records, second.Records) {
				t.Errorf("records differ:\n%+v\n%+v", first.Records, second.Records)
			}
		})
	}
}

func TestFormatLegend(t *testing.T) {
	records := []domain.InterfaceRecord{
		{Index: 0, Flags: "DR", Values: map[string]string{"name": "a"}},
		{Index: 1, Flags: "R", Values: map[string]string{"name": "b"}},
	}
	out := Format([]string{"NAME"}, records)
	if !strings.HasPrefix(out, "Flags: D - D, R - R\nColumns: NAME\n") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFamilies(t *testing.T) {
	fams := NewFamilies(map[string]Options{"SwOS": {FlagCodes: "E"}})

	if got := fams.Options("swos").FlagCodes; got != "E" {
		t.Errorf("expected override, got %q", got)
	}
	if got := fams.Options("unknown"); !reflect.DeepEqual(got, DefaultFamilies()[FamilyRouterOS]) {
		t.Errorf("expected routeros fallback, got %+v", got)
	}
	if records := fams.Parser("plain").Parse(""); len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
