package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fleetwall/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it.
// ":memory:" gives a private in-memory database.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if dbPath != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS address_lists (
		name TEXT PRIMARY KEY,
		description TEXT,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS address_list_entries (
		list_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		address TEXT NOT NULL,
		PRIMARY KEY (list_name, position),
		FOREIGN KEY (list_name) REFERENCES address_lists(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS device_groups (
		id TEXT PRIMARY KEY,
		name TEXT,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS devices (
		group_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT,
		address TEXT NOT NULL,
		port INTEGER,
		family TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (group_id, id),
		FOREIGN KEY (group_id) REFERENCES device_groups(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS firewall_rules (
		id TEXT PRIMARY KEY,
		name TEXT,
		description TEXT,
		group_id TEXT,
		chain TEXT NOT NULL,
		action TEXT NOT NULL,
		src_address TEXT,
		src_address_list TEXT,
		dst_address TEXT,
		dst_address_list TEXT,
		protocol TEXT,
		port TEXT,
		comment TEXT,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deployment_reports (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		data JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_group ON firewall_rules(group_id, position);
	CREATE INDEX IF NOT EXISTS idx_reports_group ON deployment_reports(group_id, started_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// GetDefinitions loads the complete declared state
func (r *Repository) GetDefinitions(ctx context.Context) (*domain.Definitions, error) {
	lists, err := r.ListAddressLists(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := r.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := r.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Definitions{AddressLists: lists, Rules: rules, Groups: groups}, nil
}

// ListAddressLists returns every list with its entries, in declaration order
func (r *Repository) ListAddressLists(ctx context.Context) ([]domain.AddressList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description FROM address_lists ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query address lists: %w", err)
	}
	defer rows.Close()

	var lists []domain.AddressList
	for rows.Next() {
		var (
			name        string
			description sql.NullString
		)
		if err := rows.Scan(&name, &description); err != nil {
			return nil, fmt.Errorf("failed to scan address list: %w", err)
		}
		lists = append(lists, domain.AddressList{Name: name, Description: nullToString(description)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating address lists: %w", err)
	}

	for i := range lists {
		entries, err := r.listEntries(ctx, lists[i].Name)
		if err != nil {
			return nil, err
		}
		lists[i].Entries = entries
	}
	return lists, nil
}

// GetAddressList returns a list by name
func (r *Repository) GetAddressList(ctx context.Context, name string) (*domain.AddressList, error) {
	var description sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT description FROM address_lists WHERE name = ?
	`, name).Scan(&description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query address list: %w", err)
	}

	entries, err := r.listEntries(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.AddressList{Name: name, Description: nullToString(description), Entries: entries}, nil
}

func (r *Repository) listEntries(ctx context.Context, name string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT address FROM address_list_entries WHERE list_name = ? ORDER BY position
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries of %s: %w", name, err)
	}
	defer rows.Close()

	entries := []string{}
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, address)
	}
	return entries, rows.Err()
}

// ListRules returns every rule in declaration order
func (r *Repository) ListRules(ctx context.Context) ([]domain.FirewallRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM firewall_rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.FirewallRule
	for rows.Next() {
		var row ruleRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a rule by ID
func (r *Repository) GetRule(ctx context.Context, id string) (*domain.FirewallRule, error) {
	var row ruleRow
	err := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM firewall_rules WHERE id = ?`, id).
		Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	rule := row.toDomain()
	return &rule, nil
}

// ListGroups returns every group with its devices, in declaration order
func (r *Repository) ListGroups(ctx context.Context) ([]domain.DeviceGroup, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM device_groups ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query device groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.DeviceGroup
	for rows.Next() {
		var (
			id   string
			name sql.NullString
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan device group: %w", err)
		}
		groups = append(groups, domain.DeviceGroup{ID: id, Name: nullToString(name)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device groups: %w", err)
	}

	for i := range groups {
		devices, err := r.groupDevices(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Devices = devices
	}
	return groups, nil
}

// GetGroup returns a group by ID
func (r *Repository) GetGroup(ctx context.Context, id string) (*domain.DeviceGroup, error) {
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT name FROM device_groups WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device group: %w", err)
	}

	devices, err := r.groupDevices(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.DeviceGroup{ID: id, Name: nullToString(name), Devices: devices}, nil
}

func (r *Repository) groupDevices(ctx context.Context, groupID string) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, port, family FROM devices
		WHERE group_id = ? ORDER BY position
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices of %s: %w", groupID, err)
	}
	defer rows.Close()

	devices := []domain.Device{}
	for rows.Next() {
		var (
			d            domain.Device
			name, family sql.NullString
			port         sql.NullInt64
		)
		if err := rows.Scan(&d.ID, &name, &d.Address, &port, &family); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.Name = nullToString(name)
		d.Port = nullToInt(port)
		d.Family = nullToString(family)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// ReplaceDefinitions swaps the declared state for defs in one transaction
func (r *Repository) ReplaceDefinitions(ctx context.Context, defs *domain.Definitions) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear existing data (children cascade)
	for _, table := range []string{"firewall_rules", "address_lists", "device_groups"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := insertAddressLists(ctx, tx, defs.AddressLists); err != nil {
		return err
	}
	if err := insertGroups(ctx, tx, defs.Groups); err != nil {
		return err
	}
	if err := insertRules(ctx, tx, defs.Rules); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertAddressLists(ctx context.Context, tx *sql.Tx, lists []domain.AddressList) error {
	listStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO address_lists (name, description, position) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare address list statement: %w", err)
	}
	defer listStmt.Close()

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO address_list_entries (list_name, position, address) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry statement: %w", err)
	}
	defer entryStmt.Close()

	for i, list := range lists {
		if _, err := listStmt.ExecContext(ctx, list.Name, stringToNull(list.Description), i); err != nil {
			return fmt.Errorf("failed to insert address list %s: %w", list.Name, err)
		}
		for j, entry := range list.Entries {
			if _, err := entryStmt.ExecContext(ctx, list.Name, j, entry); err != nil {
				return fmt.Errorf("failed to insert entry %s of %s: %w", entry, list.Name, err)
			}
		}
	}
	return nil
}

func insertGroups(ctx context.Context, tx *sql.Tx, groups []domain.DeviceGroup) error {
	groupStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO device_groups (id, name, position) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare group statement: %w", err)
	}
	defer groupStmt.Close()

	deviceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (group_id, id, name, address, port, family, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare device statement: %w", err)
	}
	defer deviceStmt.Close()

	for i, g := range groups {
		if _, err := groupStmt.ExecContext(ctx, g.ID, stringToNull(g.Name), i); err != nil {
			return fmt.Errorf("failed to insert group %s: %w", g.ID, err)
		}
		for j, d := range g.Devices {
			if _, err := deviceStmt.ExecContext(ctx, g.ID, d.ID, stringToNull(d.Name), d.Address,
				intToNull(d.Port), stringToNull(d.Family), j); err != nil {
				return fmt.Errorf("failed to insert device %s in %s: %w", d.ID, g.ID, err)
			}
		}
	}
	return nil
}

func insertRules(ctx context.Context, tx *sql.Tx, rules []domain.FirewallRule) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO firewall_rules (`+ruleColumns+`, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare rule statement: %w", err)
	}
	defer stmt.Close()

	for i := range rules {
		args := append(ruleInsertArgs(&rules[i]), i)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", rules[i].ID, err)
		}
	}
	return nil
}

// SaveReport stores a deployment report, replacing one with the same ID
func (r *Repository) SaveReport(ctx context.Context, report *domain.GroupDeploymentReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID is required")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deployment_reports (`+reportColumns+`, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			total = excluded.total,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			data = excluded.data
	`, report.ID, report.GroupID, formatTime(report.StartedAt), formatTime(report.FinishedAt),
		report.Total, report.Succeeded, report.Failed, report.Skipped, data)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}

// GetReport returns a full report by ID
func (r *Repository) GetReport(ctx context.Context, id string) (*domain.GroupDeploymentReport, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM deployment_reports WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	var report domain.GroupDeploymentReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", id, err)
	}
	return &report, nil
}

// ListReports returns report headers, newest first
func (r *Repository) ListReports(ctx context.Context, groupID string, limit int) ([]domain.GroupDeploymentReport, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + reportColumns + ` FROM deployment_reports`
	args := []interface{}{}
	if groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []domain.GroupDeploymentReport{}
	for rows.Next() {
		var row reportRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
