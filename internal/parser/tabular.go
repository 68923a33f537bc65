// Package parser turns the tabular text printed by device command sessions
// into typed records.
//
// Device output looks like:
//
//	Flags: R - RUNNING
//	Columns: NAME, TYPE, MTU
//	#   NAME     TYPE   MTU
//	0 R ether1   ether  1500
//	1   eoip1    eoip   1458
//
// Everything before the Columns: header is discarded. Malformed rows are
// skipped and reported, never fatal.
package parser

import (
	"strconv"
	"strings"
	"unicode"

	"fleetwall/internal/domain"
)

const (
	columnsMarker = "Columns:"
	flagsMarker   = "Flags:"
	headerRepeat  = "#"
)

// Options controls per-firmware-family parsing policy
type Options struct {
	// FlagCodes lists the single-letter codes accepted in the flags column.
	// Empty means the family prints no flags column.
	FlagCodes string `yaml:"flag_codes"`
	// LearnFlags adds codes named by the "Flags:" legend line
	LearnFlags bool `yaml:"learn_flags"`
}

// Result is the detailed outcome of a parse
type Result struct {
	Columns []string                 `json:"columns"`
	Records []domain.InterfaceRecord `json:"records"`
	Skipped []domain.ParseSkip       `json:"skipped,omitempty"`
}

// Parser parses tabular output for one firmware family
type Parser struct {
	opts Options
}

// New creates a parser with the given options
func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

// Parse returns the records found in raw. It never fails; unusable lines
// are dropped.
func (p *Parser) Parse(raw string) []domain.InterfaceRecord {
	return p.ParseDetailed(raw).Records
}

// ParseDetailed returns records along with the columns and skipped lines
func (p *Parser) ParseDetailed(raw string) *Result {
	result := &Result{Records: make([]domain.InterfaceRecord, 0)}
	codes := p.opts.FlagCodes
	seen := make(map[int]bool)
	inData := false

	for i, line := range splitLines(raw) {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if !inData {
			switch {
			case strings.Contains(trimmed, columnsMarker):
				result.Columns = parseColumns(trimmed)
				inData = len(result.Columns) > 0
			case p.opts.LearnFlags && strings.HasPrefix(trimmed, flagsMarker):
				codes = mergeCodes(codes, parseLegend(trimmed))
			}
			continue
		}

		if trimmed == "" {
			continue
		}

		record, reason := p.parseRow(trimmed, result.Columns, codes)
		if reason == "" && seen[record.Index] {
			reason = "duplicate index"
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, domain.ParseSkip{Line: lineNo, Text: line, Reason: reason})
			continue
		}
		seen[record.Index] = true
		result.Records = append(result.Records, record)
	}

	return result
}

// parseRow maps one data line onto the declared columns.
// A non-empty reason means the line was skipped.
func (p *Parser) parseRow(line string, columns []string, codes string) (domain.InterfaceRecord, string) {
	var record domain.InterfaceRecord

	tokens := strings.Fields(line)
	if tokens[0] == headerRepeat {
		return record, "header repeat"
	}
	index, err := strconv.Atoi(tokens[0])
	if err != nil || index < 0 || !isDigits(tokens[0]) {
		return record, "first token is not a non-negative integer"
	}
	record.Index = index
	tokens = tokens[1:]

	if len(tokens) > 1 && isFlagToken(tokens[0], codes) {
		record.Flags = tokens[0]
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return record, "no column values"
	}

	record.Values = make(map[string]string, len(columns))
	for i, col := range columns {
		if i >= len(tokens) {
			break
		}
		value := tokens[i]
		if i == len(columns)-1 {
			// The last column swallows the rest so multi-word names survive.
			value = strings.Join(tokens[i:], " ")
		}
		record.Values[strings.ToLower(col)] = value
	}

	record.Name = record.Values["name"]
	record.Type = record.Values["type"]
	return record, ""
}

// Format renders records as a Columns: header followed by one row per
// record, in the layout Parse accepts. A Flags: legend naming every code
// in use comes first so families that learn codes read them back.
func Format(columns []string, records []domain.InterfaceRecord) string {
	var b strings.Builder
	if legend := formatLegend(records); legend != "" {
		b.WriteString(legend + "\n")
	}
	b.WriteString(columnsMarker + " " + strings.Join(columns, ", ") + "\n")
	for _, r := range records {
		b.WriteString(strconv.Itoa(r.Index))
		if r.Flags != "" {
			b.WriteString(" " + r.Flags)
		}
		for _, col := range columns {
			if v := r.Value(col); v != "" {
				b.WriteString(" " + v)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatLegend lists each flag code once, in order of first use
func formatLegend(records []domain.InterfaceRecord) string {
	var codes string
	for _, r := range records {
		codes = mergeCodes(codes, r.Flags)
	}
	if codes == "" {
		return ""
	}
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, string(code)+" - "+string(code))
	}
	return flagsMarker + " " + strings.Join(parts, ", ")
}

func splitLines(raw string) []string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func parseColumns(line string) []string {
	idx := strings.Index(line, columnsMarker)
	rest := line[idx+len(columnsMarker):]

	var columns []string
	for _, col := range strings.Split(rest, ",") {
		if col = strings.TrimSpace(col); col != "" {
			columns = append(columns, col)
		}
	}
	return columns
}

// parseLegend extracts codes from "Flags: D - DYNAMIC; X - DISABLED, R - RUNNING"
func parseLegend(line string) string {
	rest := strings.TrimPrefix(line, flagsMarker)
	var codes []rune
	for _, part := range strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == ';' }) {
		fields := strings.Fields(part)
		if len(fields) >= 2 && fields[1] == "-" && len([]rune(fields[0])) == 1 {
			codes = append(codes, []rune(fields[0])[0])
		}
	}
	return string(codes)
}

func mergeCodes(a, b string) string {
	for _, r := range b {
		if !strings.ContainsRune(a, r) {
			a += string(r)
		}
	}
	return a
}

func isFlagToken(token, codes string) bool {
	if codes == "" {
		return false
	}
	for _, r := range token {
		if !unicode.IsLetter(r) || !strings.ContainsRune(codes, r) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
