package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/repo"
)

type fakeCleanerRepo struct {
	calls       []string
	absent      map[string]bool
	fail        map[string]error
	staleWS     []repo.StaleRow
	staleUsers  []repo.StaleRow
	wsListErr   error
	userListErr error
}

func (f *fakeCleanerRepo) SoftDeleteWorkspace(_ context.Context, id string) (bool, error) {
	f.calls = append(f.calls, "workspace:"+id)
	if err := f.fail[id]; err != nil {
		return false, err
	}
	return !f.absent[id], nil
}

func (f *fakeCleanerRepo) SoftDeleteUser(_ context.Context, id string) (bool, error) {
	f.calls = append(f.calls, "user:"+id)
	if err := f.fail[id]; err != nil {
		return false, err
	}
	return !f.absent[id], nil
}

func (f *fakeCleanerRepo) StaleWorkspaces(context.Context, repo.StaleFilter) ([]repo.StaleRow, error) {
	return f.staleWS, f.wsListErr
}

func (f *fakeCleanerRepo) StaleUsers(context.Context, repo.StaleFilter) ([]repo.StaleRow, error) {
	return f.staleUsers, f.userListErr
}

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runWithArtifacts(refs ...domain.ArtifactRef) *domain.Run {
	run := domain.NewRun("canary-1700000000-ab12", "canary-1700000000-ab12@canary.maxeo.ai", time.Now(), time.Minute)
	for _, ref := range refs {
		run.RecordArtifact(ref)
	}
	return run
}

func TestCleanup_ReverseOrder(t *testing.T) {
	db := &fakeCleanerRepo{}
	run := runWithArtifacts(
		domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"},
		domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-1"},
	)

	NewAgent(db, testLog()).Cleanup(context.Background(), run)

	want := []string{"workspace:ws-1", "user:user-1"}
	if len(db.calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, db.calls)
	}
	for i := range want {
		if db.calls[i] != want[i] {
			t.Fatalf("expected dependents deleted first: %v", db.calls)
		}
	}
	if len(run.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", run.Warnings)
	}
}

func TestCleanup_AlreadyAbsentIsNotAWarning(t *testing.T) {
	db := &fakeCleanerRepo{absent: map[string]bool{"ws-1": true}}
	run := runWithArtifacts(domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-1"})

	NewAgent(db, testLog()).Cleanup(context.Background(), run)

	if len(db.calls) != 1 {
		t.Fatalf("expected the delete attempted, got %v", db.calls)
	}
	if len(run.Warnings) != 0 {
		t.Fatalf("an absent row is a success, got %+v", run.Warnings)
	}
}

func TestCleanup_FailureWarnsAndContinues(t *testing.T) {
	db := &fakeCleanerRepo{fail: map[string]error{"ws-1": errors.New("connection reset")}}
	run := runWithArtifacts(
		domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"},
		domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-1"},
		domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-2"},
	)

	NewAgent(db, testLog()).Cleanup(context.Background(), run)

	if len(db.calls) != 3 {
		t.Fatalf("every artifact must be attempted, got %v", db.calls)
	}
	if len(run.Warnings) != 1 {
		t.Fatalf("expected one warning, got %+v", run.Warnings)
	}
	warn := run.Warnings[0]
	if warn.Resource != domain.ArtifactWorkspace || warn.ID != "ws-1" || warn.Message != "connection reset" {
		t.Fatalf("unexpected warning: %+v", warn)
	}
}

func TestCleanup_UnknownKind(t *testing.T) {
	db := &fakeCleanerRepo{}
	run := runWithArtifacts(domain.ArtifactRef{Kind: "session", ID: "sess-1"})

	NewAgent(db, testLog()).Cleanup(context.Background(), run)

	if len(db.calls) != 0 {
		t.Fatalf("unexpected delete calls: %v", db.calls)
	}
	if len(run.Warnings) != 1 || run.Warnings[0].Resource != "session" {
		t.Fatalf("expected a warning for the unhandled kind, got %+v", run.Warnings)
	}
}

func TestCleanup_NoArtifacts(t *testing.T) {
	db := &fakeCleanerRepo{}
	run := runWithArtifacts()

	NewAgent(db, testLog()).Cleanup(context.Background(), run)

	if len(db.calls) != 0 {
		t.Fatalf("unexpected delete calls: %v", db.calls)
	}
}

func TestSweep(t *testing.T) {
	db := &fakeCleanerRepo{
		staleWS: []repo.StaleRow{
			{ID: "ws-1", Email: "canary-1-aa@canary.maxeo.ai"},
			{ID: "ws-2", Email: "canary-2-bb@canary.maxeo.ai"},
		},
		staleUsers: []repo.StaleRow{
			{ID: "user-1", Email: "canary-1-aa@canary.maxeo.ai"},
			{ID: "user-2", Email: "canary-2-bb@canary.maxeo.ai"},
		},
		absent: map[string]bool{"ws-2": true},
		fail:   map[string]error{"user-2": errors.New("locked")},
	}

	filter := repo.StaleFilter{
		EmailDomain: "canary.maxeo.ai",
		Before:      Cutoff(time.Now(), 24*time.Hour),
		Limit:       100,
	}
	report, err := NewAgent(db, testLog()).Sweep(context.Background(), filter)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if report.WorkspacesDeleted != 1 {
		t.Fatalf("expected 1 workspace deleted, got %d", report.WorkspacesDeleted)
	}
	if report.UsersDeleted != 1 {
		t.Fatalf("expected 1 user deleted, got %d", report.UsersDeleted)
	}
	if report.AlreadyAbsent != 1 {
		t.Fatalf("expected 1 absent row, got %d", report.AlreadyAbsent)
	}
	if report.Failures != 1 {
		t.Fatalf("expected 1 failure, got %d", report.Failures)
	}
	// Workspace deletes precede user deletes.
	if db.calls[0] != "workspace:ws-1" || db.calls[len(db.calls)-1] != "user:user-2" {
		t.Fatalf("unexpected order: %v", db.calls)
	}
}

func TestSweep_ListError(t *testing.T) {
	db := &fakeCleanerRepo{wsListErr: errors.New("timeout")}

	_, err := NewAgent(db, testLog()).Sweep(context.Background(), repo.StaleFilter{})
	if err == nil || err.Error() != "timeout" {
		t.Fatalf("expected the list error surfaced, got %v", err)
	}
	if len(db.calls) != 0 {
		t.Fatalf("no deletes after a failed listing: %v", db.calls)
	}
}

func TestSweep_UserListErrorKeepsWorkspaceCounts(t *testing.T) {
	db := &fakeCleanerRepo{
		staleWS:     []repo.StaleRow{{ID: "ws-1"}},
		userListErr: errors.New("timeout"),
	}

	report, err := NewAgent(db, testLog()).Sweep(context.Background(), repo.StaleFilter{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if report.WorkspacesDeleted != 1 {
		t.Fatalf("workspace pass must survive the user listing failure, got %+v", report)
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := Cutoff(now, 24*time.Hour)
	want := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
