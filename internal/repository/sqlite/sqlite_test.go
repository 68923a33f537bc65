package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"fleetwall/internal/domain"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func sampleDefinitions() *domain.Definitions {
	return &domain.Definitions{
		AddressLists: []domain.AddressList{
			{Name: "trusted-hosts", Description: "mgmt", Entries: []string{"10.0.0.2", "10.0.0.1", "10.0.0.0/24"}},
			{Name: "blocked", Entries: []string{"203.0.113.0/24"}},
		},
		Groups: []domain.DeviceGroup{
			{ID: "edge", Name: "Edge routers", Devices: []domain.Device{
				{ID: "r2", Address: "10.1.0.2", Port: 2222, Family: "routeros"},
				{ID: "r1", Name: "branch-1", Address: "10.1.0.1"},
			}},
			{ID: "core", Devices: []domain.Device{{ID: "c1", Address: "10.2.0.1"}}},
		},
		Rules: []domain.FirewallRule{
			{ID: "z-drop-blocked", GroupID: "edge", Chain: domain.ChainInput, Action: domain.ActionDrop,
				Source: domain.AddressSpec{AddressList: "blocked"}},
			{ID: "a-allow-ssh", GroupID: "edge", Chain: domain.ChainInput, Action: domain.ActionAccept,
				Source: domain.AddressSpec{AddressList: "trusted-hosts"}, Protocol: "tcp", Port: "22", Comment: "mgmt ssh"},
			{ID: "core-fwd", Name: "forward", Description: "core forward", GroupID: "core",
				Chain: domain.ChainForward, Action: domain.ActionAccept,
				Destination: domain.AddressSpec{Address: "10.9.0.0/16"}},
		},
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullConversions(t *testing.T) {
	assertEqual(t, "test", nullToString(sql.NullString{String: "test", Valid: true}))
	assertEqual(t, "", nullToString(sql.NullString{String: "test", Valid: false}))
	assertEqual(t, sql.NullString{}, stringToNull(""))
	assertEqual(t, sql.NullString{String: "x", Valid: true}, stringToNull("x"))
	assertEqual(t, 0, nullToInt(sql.NullInt64{}))
	assertEqual(t, 22, nullToInt(intToNull(22)))
	assertEqual(t, sql.NullInt64{}, intToNull(0))
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	if got := parseTime(formatTime(ts)); !got.Equal(ts) {
		t.Errorf("parseTime(formatTime()) = %v, want %v", got, ts)
	}
	if got := parseTime("garbage"); !got.IsZero() {
		t.Errorf("expected zero time for garbage, got %v", got)
	}
}

// ============================================================================
// Definitions
// ============================================================================

func TestReplaceAndGetDefinitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	want := sampleDefinitions()

	assertNoError(t, repo.ReplaceDefinitions(ctx, want))

	got, err := repo.GetDefinitions(ctx)
	assertNoError(t, err)
	assertEqual(t, want, got)
}

func TestDeclarationOrderPreserved(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assertNoError(t, repo.ReplaceDefinitions(ctx, sampleDefinitions()))

	rules, err := repo.ListRules(ctx)
	assertNoError(t, err)
	assertEqual(t, "z-drop-blocked", rules[0].ID)
	assertEqual(t, "a-allow-ssh", rules[1].ID)

	list, err := repo.GetAddressList(ctx, "trusted-hosts")
	assertNoError(t, err)
	assertEqual(t, []string{"10.0.0.2", "10.0.0.1", "10.0.0.0/24"}, list.Entries)

	group, err := repo.GetGroup(ctx, "edge")
	assertNoError(t, err)
	assertEqual(t, "r2", group.Devices[0].ID)
	assertEqual(t, 2222, group.Devices[0].Port)
	assertEqual(t, "branch-1", group.Devices[1].Name)
}

func TestReplaceDefinitionsDropsOldState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assertNoError(t, repo.ReplaceDefinitions(ctx, sampleDefinitions()))

	next := &domain.Definitions{
		Groups: []domain.DeviceGroup{{ID: "lab", Devices: []domain.Device{{ID: "l1", Address: "192.168.88.1"}}}},
		Rules: []domain.FirewallRule{
			{ID: "lab-drop", GroupID: "lab", Chain: domain.ChainInput, Action: domain.ActionDrop},
		},
	}
	assertNoError(t, repo.ReplaceDefinitions(ctx, next))

	lists, err := repo.ListAddressLists(ctx)
	assertNoError(t, err)
	assertEqual(t, 0, len(lists))

	edge, err := repo.GetGroup(ctx, "edge")
	assertNoError(t, err)
	if edge != nil {
		t.Error("expected old group to be removed")
	}

	rules, err := repo.ListRules(ctx)
	assertNoError(t, err)
	assertEqual(t, 1, len(rules))

	// cascaded children are gone too
	var entries int
	assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM address_list_entries`).Scan(&entries))
	assertEqual(t, 0, entries)
}

func TestReplaceDefinitionsIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assertNoError(t, repo.ReplaceDefinitions(ctx, sampleDefinitions()))

	bad := sampleDefinitions()
	bad.Rules = append(bad.Rules, bad.Rules[0]) // duplicate primary key
	if err := repo.ReplaceDefinitions(ctx, bad); err == nil {
		t.Fatal("expected duplicate rule insert to fail")
	}

	got, err := repo.GetDefinitions(ctx)
	assertNoError(t, err)
	assertEqual(t, sampleDefinitions(), got)
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule, err := repo.GetRule(ctx, "nope")
	assertNoError(t, err)
	if rule != nil {
		t.Error("expected nil rule")
	}

	list, err := repo.GetAddressList(ctx, "nope")
	assertNoError(t, err)
	if list != nil {
		t.Error("expected nil list")
	}

	group, err := repo.GetGroup(ctx, "nope")
	assertNoError(t, err)
	if group != nil {
		t.Error("expected nil group")
	}

	report, err := repo.GetReport(ctx, "nope")
	assertNoError(t, err)
	if report != nil {
		t.Error("expected nil report")
	}
}

func TestGetRule(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	defs := sampleDefinitions()
	assertNoError(t, repo.ReplaceDefinitions(ctx, defs))

	rule, err := repo.GetRule(ctx, "a-allow-ssh")
	assertNoError(t, err)
	assertEqual(t, defs.Rules[1], *rule)
}

// ============================================================================
// Reports
// ============================================================================

func sampleReport(id, group string, started time.Time) *domain.GroupDeploymentReport {
	op := domain.Operation{Kind: domain.OperationRule, Ref: "a-allow-ssh", Command: "/ip firewall filter add chain=input action=accept"}
	report := &domain.GroupDeploymentReport{
		ID:         id,
		GroupID:    group,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Devices: []domain.DeviceReport{
			{
				Device:  domain.Device{ID: "r1", Address: "10.1.0.1"},
				Results: []domain.DeploymentResult{{Operation: op, DeviceID: "r1", Outcome: domain.OutcomeSucceeded}},
			},
			{
				Device:  domain.Device{ID: "r2", Address: "10.1.0.2"},
				Error:   "boom",
				Results: []domain.DeploymentResult{{Operation: op, DeviceID: "r2", Outcome: domain.OutcomeFailed, Error: "boom"}},
			},
		},
	}
	report.Tally()
	return report
}

func TestSaveAndGetReport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	report := sampleReport("rep-1", "edge", started)
	assertNoError(t, repo.SaveReport(ctx, report))

	got, err := repo.GetReport(ctx, "rep-1")
	assertNoError(t, err)
	assertEqual(t, 2, got.Total)
	assertEqual(t, 1, got.Failed)
	if !got.Deployed("a-allow-ssh", "r1") || got.Deployed("a-allow-ssh", "r2") {
		t.Error("per-device results lost")
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	// saving again replaces
	report.Failed = 0
	assertNoError(t, repo.SaveReport(ctx, report))
	reports, err := repo.ListReports(ctx, "", 0)
	assertNoError(t, err)
	assertEqual(t, 1, len(reports))
	assertEqual(t, 0, reports[0].Failed)
}

func TestSaveReportRequiresID(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.SaveReport(context.Background(), &domain.GroupDeploymentReport{GroupID: "edge"}); err == nil {
		t.Error("expected error for report without ID")
	}
}

func TestListReports(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assertNoError(t, repo.SaveReport(ctx, sampleReport("r-old", "edge", base)))
	assertNoError(t, repo.SaveReport(ctx, sampleReport("r-new", "edge", base.Add(time.Hour))))
	assertNoError(t, repo.SaveReport(ctx, sampleReport("r-core", "core", base.Add(30*time.Minute))))

	tests := []struct {
		name    string
		groupID string
		limit   int
		want    []string
	}{
		{"all newest first", "", 0, []string{"r-new", "r-core", "r-old"}},
		{"by group", "edge", 0, []string{"r-new", "r-old"}},
		{"limited", "", 1, []string{"r-new"}},
		{"unknown group", "dmz", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports, err := repo.ListReports(ctx, tt.groupID, tt.limit)
			assertNoError(t, err)
			ids := []string{}
			for _, r := range reports {
				if len(r.Devices) != 0 {
					t.Error("headers should not carry device results")
				}
				ids = append(ids, r.ID)
			}
			assertEqual(t, tt.want, ids)
		})
	}
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetwall.db")
	ctx := context.Background()

	repo, err := New(path)
	assertNoError(t, err)
	assertNoError(t, repo.ReplaceDefinitions(ctx, sampleDefinitions()))
	assertNoError(t, repo.Close())

	reopened, err := New(path)
	assertNoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetDefinitions(ctx)
	assertNoError(t, err)
	assertEqual(t, sampleDefinitions(), got)
}
