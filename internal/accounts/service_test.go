package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/ledger"
	"github.com/splitpot/splitpot/internal/notify"
	"github.com/splitpot/splitpot/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type membershipKey struct {
	groupID int64
	userID  int64
}

type mockRevision struct {
	rev     ledger.Revision
	details *Details
	shares  map[int64]float64
}

type mockAccount struct {
	id          int64
	groupID     int64
	accountType AccountType
	version     int64
	revisions   map[int64]*mockRevision
}

type mockRepository struct {
	memberships    map[membershipKey]*group.Membership
	accounts       map[int64]*mockAccount
	nextAccountID  int64
	nextRevisionID int64
	logs           []group.LogEntry
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		memberships:    make(map[membershipKey]*group.Membership),
		accounts:       make(map[int64]*mockAccount),
		nextAccountID:  1,
		nextRevisionID: 1,
	}
}

func (m *mockRepository) addMember(groupID, userID int64, canWrite, isOwner bool) {
	m.memberships[membershipKey{groupID, userID}] = &group.Membership{
		GroupID:  groupID,
		UserID:   userID,
		CanWrite: canWrite,
		IsOwner:  isOwner,
		JoinedAt: time.Now(),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error) {
	return (&mockTxRepo{mock: m}).GetMembership(ctx, groupID, userID)
}

func (m *mockRepository) GetAccount(ctx context.Context, accountID, userID int64) (*Account, error) {
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, shared.NotFoundf("account %d", accountID)
	}
	return m.view(account, userID), nil
}

func (m *mockRepository) ListAccounts(ctx context.Context, groupID, userID int64) ([]Account, error) {
	var out []Account
	for id := int64(1); id < m.nextAccountID; id++ {
		account, ok := m.accounts[id]
		if !ok || account.groupID != groupID {
			continue
		}
		out = append(out, *m.view(account, userID))
	}
	return out, nil
}

func (m *mockRepository) view(account *mockAccount, userID int64) *Account {
	view := &Account{
		ID:      account.id,
		GroupID: account.groupID,
		Type:    account.accountType,
		Version: account.version,
	}
	if committed := latestCommitted(account); committed != nil {
		view.Committed = cloneDetails(committed)
	}
	for _, r := range account.revisions {
		if !r.rev.Committed() && r.rev.UserID == userID {
			view.Pending = cloneDetails(r)
		}
	}
	return view
}

func latestCommitted(account *mockAccount) *mockRevision {
	var best *mockRevision
	for _, r := range account.revisions {
		if !r.rev.Committed() {
			continue
		}
		if best == nil || r.rev.ID > best.rev.ID {
			best = r
		}
	}
	return best
}

func cloneDetails(r *mockRevision) *Details {
	if r.details == nil {
		return nil
	}
	d := *r.details
	if len(r.shares) > 0 {
		d.ClearingShares = make(map[int64]float64, len(r.shares))
		for id, w := range r.shares {
			d.ClearingShares[id] = w
		}
	}
	return &d
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetMembership(ctx context.Context, groupID, userID int64) (*group.Membership, error) {
	m, ok := t.mock.memberships[membershipKey{groupID, userID}]
	if !ok {
		return nil, shared.NotFoundf("no membership for user %d in group %d", userID, groupID)
	}
	return m, nil
}

func (t *mockTxRepo) InsertAccount(ctx context.Context, groupID int64, accountType AccountType) (int64, error) {
	id := t.mock.nextAccountID
	t.mock.nextAccountID++
	t.mock.accounts[id] = &mockAccount{
		id:          id,
		groupID:     groupID,
		accountType: accountType,
		revisions:   make(map[int64]*mockRevision),
	}
	return id, nil
}

func (t *mockTxRepo) GetAccountRow(ctx context.Context, accountID int64) (*Account, error) {
	account, ok := t.mock.accounts[accountID]
	if !ok {
		return nil, shared.NotFoundf("account %d", accountID)
	}
	return &Account{ID: account.id, GroupID: account.groupID, Type: account.accountType, Version: account.version}, nil
}

func (t *mockTxRepo) GetPendingRevision(ctx context.Context, accountID, userID int64) (*ledger.Revision, error) {
	account := t.mock.accounts[accountID]
	for _, r := range account.revisions {
		if !r.rev.Committed() && r.rev.UserID == userID {
			rev := r.rev
			return &rev, nil
		}
	}
	return nil, nil
}

func (t *mockTxRepo) GetLatestCommittedRevision(ctx context.Context, accountID int64) (*ledger.Revision, error) {
	account := t.mock.accounts[accountID]
	if best := latestCommitted(account); best != nil {
		rev := best.rev
		return &rev, nil
	}
	return nil, nil
}

func (t *mockTxRepo) InsertRevision(ctx context.Context, accountID, userID int64) (*ledger.Revision, error) {
	account := t.mock.accounts[accountID]
	id := t.mock.nextRevisionID
	t.mock.nextRevisionID++
	account.revisions[id] = &mockRevision{
		rev: ledger.Revision{ID: id, EntityID: accountID, UserID: userID, StartedAt: time.Now()},
	}
	rev := account.revisions[id].rev
	return &rev, nil
}

func (t *mockTxRepo) CopyRevisionContent(ctx context.Context, accountID, fromRevision, toRevision int64) error {
	account := t.mock.accounts[accountID]
	src := account.revisions[fromRevision]
	dst := account.revisions[toRevision]
	if src.details != nil {
		d := *src.details
		dst.details = &d
	}
	if len(src.shares) > 0 {
		dst.shares = make(map[int64]float64, len(src.shares))
		for id, w := range src.shares {
			dst.shares[id] = w
		}
	}
	return nil
}

func (t *mockTxRepo) CommitRevision(ctx context.Context, revisionID int64) error {
	for _, account := range t.mock.accounts {
		if r, ok := account.revisions[revisionID]; ok {
			if r.rev.Committed() {
				return shared.ErrConflictOnCommit
			}
			now := time.Now()
			r.rev.CommittedAt = &now
			return nil
		}
	}
	return shared.ErrConflictOnCommit
}

func (t *mockTxRepo) DeleteRevision(ctx context.Context, accountID, revisionID int64) error {
	delete(t.mock.accounts[accountID].revisions, revisionID)
	return nil
}

func (t *mockTxRepo) BumpVersion(ctx context.Context, accountID int64) (int64, error) {
	account := t.mock.accounts[accountID]
	account.version++
	return account.version, nil
}

func (t *mockTxRepo) GetDetails(ctx context.Context, accountID, revisionID int64) (*Details, error) {
	account := t.mock.accounts[accountID]
	r, ok := account.revisions[revisionID]
	if !ok {
		return nil, nil
	}
	return cloneDetails(r), nil
}

func (t *mockTxRepo) UpsertDetails(ctx context.Context, accountID, revisionID int64, details Details) error {
	r := t.mock.accounts[accountID].revisions[revisionID]
	d := details
	d.ClearingShares = nil
	r.details = &d
	return nil
}

func (t *mockTxRepo) ReplaceClearingShares(ctx context.Context, accountID, revisionID int64, shares map[int64]float64) error {
	r := t.mock.accounts[accountID].revisions[revisionID]
	r.shares = nil
	if len(shares) > 0 {
		r.shares = make(map[int64]float64, len(shares))
		for id, w := range shares {
			r.shares[id] = w
		}
	}
	return nil
}

func (t *mockTxRepo) CommittedClearingEdges(ctx context.Context, groupID int64) (map[int64][]int64, error) {
	edges := make(map[int64][]int64)
	for _, account := range t.mock.accounts {
		if account.groupID != groupID {
			continue
		}
		committed := latestCommitted(account)
		if committed == nil || committed.details == nil || committed.details.Deleted {
			continue
		}
		for target := range committed.shares {
			edges[account.id] = append(edges[account.id], target)
		}
	}
	return edges, nil
}

func (t *mockTxRepo) CommittedAccountExists(ctx context.Context, groupID, accountID int64) (bool, error) {
	account, ok := t.mock.accounts[accountID]
	if !ok || account.groupID != groupID {
		return false, nil
	}
	committed := latestCommitted(account)
	return committed != nil && committed.details != nil && !committed.details.Deleted, nil
}

func (t *mockTxRepo) CountAccountReferences(ctx context.Context, groupID, accountID int64) (int64, error) {
	var count int64
	for _, account := range t.mock.accounts {
		if account.groupID != groupID || account.id == accountID {
			continue
		}
		for _, r := range account.revisions {
			relevant := !r.rev.Committed()
			if committed := latestCommitted(account); committed != nil && committed.rev.ID == r.rev.ID {
				relevant = true
			}
			if !relevant || r.details == nil || r.details.Deleted {
				continue
			}
			if _, ok := r.shares[accountID]; ok {
				count++
			}
		}
	}
	return count, nil
}

func (t *mockTxRepo) AppendGroupLog(ctx context.Context, entry group.LogEntry) error {
	entry.LoggedAt = time.Now()
	t.mock.logs = append(t.mock.logs, entry)
	return nil
}

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(ctx context.Context, event notify.Event) error {
	c.events = append(c.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// TESTS
// ============================================================================

const (
	testGroup  = int64(1)
	testWriter = int64(10)
	testReader = int64(11)
)

func newTestService() (*Service, *mockRepository, *captureNotifier) {
	repo := newMockRepository()
	repo.addMember(testGroup, testWriter, true, false)
	repo.addMember(testGroup, testReader, false, false)
	sink := &captureNotifier{}
	return NewService(repo, sink, testLogger()), repo, sink
}

func TestCreatePersonalAccountCommitsImmediately(t *testing.T) {
	svc, repo, sink := newTestService()

	id, err := svc.Create(context.Background(), testWriter, CreateAccountRequest{
		GroupID: testGroup,
		Type:    TypePersonal,
		Name:    "alice",
	})
	require.NoError(t, err)

	view, err := svc.Get(context.Background(), testWriter, id)
	require.NoError(t, err)
	require.NotNil(t, view.Committed)
	assert.Equal(t, "alice", view.Committed.Name)
	assert.False(t, view.Committed.Deleted)
	assert.Nil(t, view.Pending)
	assert.Equal(t, int64(1), view.Version)

	require.Len(t, repo.logs, 1)
	assert.Equal(t, group.LogAccountCommitted, repo.logs[0].Type)
	require.Len(t, sink.events, 1)
	assert.Equal(t, notify.KindAccount, sink.events[0].Kind)
	assert.Equal(t, id, sink.events[0].EntityID)
}

func TestCreateRequiresWriteCapability(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), testReader, CreateAccountRequest{
		GroupID: testGroup,
		Type:    TypePersonal,
		Name:    "nope",
	})
	assert.True(t, errors.Is(err, shared.ErrPermissionDenied))
}

func TestCreateWithoutMembershipFails(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), int64(99), CreateAccountRequest{
		GroupID: testGroup,
		Type:    TypePersonal,
		Name:    "stranger",
	})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestCreatePersonalAccountRejectsShares(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypePersonal,
		Name:           "alice",
		ClearingShares: map[int64]float64{5: 1.0},
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestCreateClearingAccountRequiresExistingTargets(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypeClearing,
		Name:           "trip",
		ClearingShares: map[int64]float64{77: 1.0},
	})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestCreateClearingAccountPrunesZeroWeights(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	alice := mustCreate(t, svc, TypePersonal, "alice", nil)
	bob := mustCreate(t, svc, TypePersonal, "bob", nil)

	trip, err := svc.Create(ctx, testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypeClearing,
		Name:           "trip",
		ClearingShares: map[int64]float64{alice: 1.0, bob: 0},
	})
	require.NoError(t, err)

	view, err := svc.Get(ctx, testWriter, trip)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{alice: 1.0}, view.Committed.ClearingShares)
}

func TestClearingSelfReferenceRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	trip := mustCreate(t, svc, TypeClearing, "trip", nil)
	err := svc.Update(ctx, testWriter, trip, UpdateAccountRequest{
		Name:           "trip",
		ClearingShares: map[int64]float64{trip: 1.0},
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestClearingCycleRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a := mustCreate(t, svc, TypeClearing, "a", nil)
	b, err := svc.Create(ctx, testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypeClearing,
		Name:           "b",
		ClearingShares: map[int64]float64{a: 1.0},
	})
	require.NoError(t, err)

	err = svc.Update(ctx, testWriter, a, UpdateAccountRequest{
		Name:           "a",
		ClearingShares: map[int64]float64{b: 1.0},
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestClearingEdgeReplacementAllowsReversal(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a := mustCreate(t, svc, TypeClearing, "a", nil)
	b, err := svc.Create(ctx, testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypeClearing,
		Name:           "b",
		ClearingShares: map[int64]float64{a: 1.0},
	})
	require.NoError(t, err)

	// Dropping B's reference to A first makes A -> B legal.
	require.NoError(t, svc.Update(ctx, testWriter, b, UpdateAccountRequest{Name: "b"}))
	assert.NoError(t, svc.Update(ctx, testWriter, a, UpdateAccountRequest{
		Name:           "a",
		ClearingShares: map[int64]float64{b: 1.0},
	}))
}

func TestUpdateBumpsVersionPerCommit(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	id := mustCreate(t, svc, TypePersonal, "alice", nil)
	require.NoError(t, svc.Update(ctx, testWriter, id, UpdateAccountRequest{Name: "alice2"}))
	require.NoError(t, svc.Update(ctx, testWriter, id, UpdateAccountRequest{Name: "alice3"}))

	view, err := svc.Get(ctx, testWriter, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Version)
	assert.Equal(t, "alice3", view.Committed.Name)
}

func TestDeleteGuardsAgainstReferences(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	alice := mustCreate(t, svc, TypePersonal, "alice", nil)
	trip, err := svc.Create(ctx, testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypeClearing,
		Name:           "trip",
		ClearingShares: map[int64]float64{alice: 1.0},
	})
	require.NoError(t, err)

	err = svc.Delete(ctx, testWriter, alice)
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))

	// Committing away the referencing share unblocks the deletion.
	require.NoError(t, svc.Update(ctx, testWriter, trip, UpdateAccountRequest{Name: "trip"}))
	require.NoError(t, svc.Delete(ctx, testWriter, alice))

	view, err := repo.GetAccount(ctx, alice, testWriter)
	require.NoError(t, err)
	assert.True(t, view.Committed.Deleted)

	last := repo.logs[len(repo.logs)-1]
	assert.Equal(t, group.LogAccountDeleted, last.Type)
}

func TestDeleteTwiceFails(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	id := mustCreate(t, svc, TypePersonal, "alice", nil)
	require.NoError(t, svc.Delete(ctx, testWriter, id))

	err := svc.Delete(ctx, testWriter, id)
	assert.True(t, errors.Is(err, shared.ErrInvalidCommand))
}

func TestDeletedAccountIsNoShareTarget(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	alice := mustCreate(t, svc, TypePersonal, "alice", nil)
	require.NoError(t, svc.Delete(ctx, testWriter, alice))

	_, err := svc.Create(ctx, testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           TypeClearing,
		Name:           "trip",
		ClearingShares: map[int64]float64{alice: 1.0},
	})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestGetRequiresMembership(t *testing.T) {
	svc, _, _ := newTestService()

	id := mustCreate(t, svc, TypePersonal, "alice", nil)
	_, err := svc.Get(context.Background(), int64(99), id)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestListAccountsReturnsGroupViews(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	mustCreate(t, svc, TypePersonal, "alice", nil)
	mustCreate(t, svc, TypePersonal, "bob", nil)

	views, err := svc.List(ctx, testReader, testGroup)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "alice", views[0].Committed.Name)
	assert.Equal(t, "bob", views[1].Committed.Name)
}

func mustCreate(t *testing.T, svc *Service, accountType AccountType, name string, shares map[int64]float64) int64 {
	t.Helper()
	id, err := svc.Create(context.Background(), testWriter, CreateAccountRequest{
		GroupID:        testGroup,
		Type:           accountType,
		Name:           name,
		ClearingShares: shares,
	})
	require.NoError(t, err)
	return id
}
