package sqlite

import (
	"database/sql"
	"time"

	"fleetwall/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullToInt converts sql.NullInt64 to int, zero when NULL
func nullToInt(ni sql.NullInt64) int {
	if ni.Valid {
		return int(ni.Int64)
	}
	return 0
}

// intToNull stores zero as NULL
func intToNull(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ============================================================================
// Rule Row Scanner
// ============================================================================
//
// Column order must match between ruleColumns, scanArgs and insertArgs.

const ruleColumns = `id, name, description, group_id, chain, action,
	src_address, src_address_list, dst_address, dst_address_list,
	protocol, port, comment`

// ruleRow holds all columns from a rule query for scanning
type ruleRow struct {
	ID             string
	Name           sql.NullString
	Description    sql.NullString
	GroupID        sql.NullString
	Chain          string
	Action         string
	SrcAddress     sql.NullString
	SrcAddressList sql.NullString
	DstAddress     sql.NullString
	DstAddressList sql.NullString
	Protocol       sql.NullString
	Port           sql.NullString
	Comment        sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
func (r *ruleRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.Name,
		&r.Description,
		&r.GroupID,
		&r.Chain,
		&r.Action,
		&r.SrcAddress,
		&r.SrcAddressList,
		&r.DstAddress,
		&r.DstAddressList,
		&r.Protocol,
		&r.Port,
		&r.Comment,
	}
}

// toDomain converts the scanned row to a domain.FirewallRule
func (r *ruleRow) toDomain() domain.FirewallRule {
	return domain.FirewallRule{
		ID:          r.ID,
		Name:        nullToString(r.Name),
		Description: nullToString(r.Description),
		GroupID:     nullToString(r.GroupID),
		Chain:       domain.Chain(r.Chain),
		Action:      domain.Action(r.Action),
		Source: domain.AddressSpec{
			Address:     nullToString(r.SrcAddress),
			AddressList: nullToString(r.SrcAddressList),
		},
		Destination: domain.AddressSpec{
			Address:     nullToString(r.DstAddress),
			AddressList: nullToString(r.DstAddressList),
		},
		Protocol: nullToString(r.Protocol),
		Port:     nullToString(r.Port),
		Comment:  nullToString(r.Comment),
	}
}

// ruleInsertArgs returns insert arguments in ruleColumns order
func ruleInsertArgs(rule *domain.FirewallRule) []interface{} {
	return []interface{}{
		rule.ID,
		stringToNull(rule.Name),
		stringToNull(rule.Description),
		stringToNull(rule.GroupID),
		string(rule.Chain),
		string(rule.Action),
		stringToNull(rule.Source.Address),
		stringToNull(rule.Source.AddressList),
		stringToNull(rule.Destination.Address),
		stringToNull(rule.Destination.AddressList),
		stringToNull(rule.Protocol),
		stringToNull(rule.Port),
		stringToNull(rule.Comment),
	}
}

// ============================================================================
// Report Header Scanner
// ============================================================================

const reportColumns = `id, group_id, started_at, finished_at, total, succeeded, failed, skipped`

type reportRow struct {
	ID         string
	GroupID    string
	StartedAt  string
	FinishedAt string
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
}

func (r *reportRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.GroupID,
		&r.StartedAt,
		&r.FinishedAt,
		&r.Total,
		&r.Succeeded,
		&r.Failed,
		&r.Skipped,
	}
}

func (r *reportRow) toDomain() domain.GroupDeploymentReport {
	return domain.GroupDeploymentReport{
		ID:         r.ID,
		GroupID:    r.GroupID,
		StartedAt:  parseTime(r.StartedAt),
		FinishedAt: parseTime(r.FinishedAt),
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
	}
}
