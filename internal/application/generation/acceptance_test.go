package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/workflow/port"
)

const npcJSON = `{"name":"Dorran","background":"A smith of the hold."}`

func proposeNPC(t *testing.T, m *AcceptanceManager, campaignID string) *Draft {
	t.Helper()
	d, err := m.Propose(context.Background(), ProposeInput{
		CampaignID:  campaignID,
		Type:        TypeNPC,
		TemplateID:  "npc",
		RequestedBy: "gm",
		Content:     npcJSON,
		Data:        []byte(npcJSON),
		Grounded: &grounding.GroundedContent{
			Text:       npcJSON,
			MarkedText: npcJSON,
			Citations:  []grounding.Citation{{ID: "old", Marker: 1, TermMatched: "smith", Confidence: 0.9}},
			Confidence: 0.9,
		},
	})
	require.NoError(t, err)
	return d
}

func TestAcceptanceManager_AcceptOnce(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	repo := &fakeDraftRepo{}
	m := NewAcceptanceManager(store, nil, WithEventPublisher(pub), WithDraftRepository(repo))
	d := proposeNPC(t, m, "c1")
	assert.Equal(t, DraftProposed, d.State)

	res, err := m.Apply(context.Background(), d.ID, Accept())
	require.NoError(t, err)
	require.NotNil(t, res.Applied)
	assert.Equal(t, "entity-1", res.Applied.EntityID)
	assert.Equal(t, "Dorran", res.Applied.Name)
	assert.Equal(t, "npc", res.Applied.EntityType)
	assert.Equal(t, DraftAccepted, res.Draft.State)

	_, err = m.Apply(context.Background(), d.ID, Accept())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = m.Apply(context.Background(), d.ID, Reject())
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	assert.Equal(t, 1, store.appliedCount())
	assert.Equal(t, d.ID, store.applied[0].DraftID)
	assert.Equal(t, []DraftEventType{EventDraftProposed, EventDraftAccepted}, pub.types())
	require.Len(t, repo.saved, 2)
	assert.Equal(t, DraftAccepted, repo.saved[1].State)
}

func TestAcceptanceManager_RejectThenModify(t *testing.T) {
	store := newFakeStore()
	m := NewAcceptanceManager(store, nil)
	d := proposeNPC(t, m, "c1")

	res, err := m.Apply(context.Background(), d.ID, Reject())
	require.NoError(t, err)
	assert.Equal(t, DraftRejected, res.Draft.State)
	assert.Nil(t, res.Applied)

	_, err = m.Apply(context.Background(), d.ID, Modify(`{"name":"Other"}`))
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, 0, store.appliedCount())
}

func TestAcceptanceManager_StoreFailureReverts(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	m := NewAcceptanceManager(store, nil)
	d := proposeNPC(t, m, "c1")

	_, err := m.Apply(context.Background(), d.ID, Accept())
	require.Error(t, err)
	got, err := m.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DraftProposed, got.State)

	store.err = nil
	res, err := m.Apply(context.Background(), d.ID, Accept())
	require.NoError(t, err)
	assert.Equal(t, DraftAccepted, res.Draft.State)
}

func TestAcceptanceManager_BusyWhileApplying(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	m := NewAcceptanceManager(store, nil)
	d := proposeNPC(t, m, "c1")

	done := make(chan error, 1)
	go func() {
		_, err := m.Apply(context.Background(), d.ID, Accept())
		done <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("accept did not reach the store")
	}

	_, err := m.Apply(context.Background(), d.ID, Reject())
	assert.True(t, errors.Is(err, ErrDraftBusy))
	_, err = m.Apply(context.Background(), d.ID, Modify(npcJSON))
	assert.True(t, errors.Is(err, ErrDraftBusy))

	got, err := m.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DraftApplying, got.State)

	close(store.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.appliedCount())
}

func TestAcceptanceManager_ConcurrentAcceptAppliesOnce(t *testing.T) {
	store := newFakeStore()
	m := NewAcceptanceManager(store, nil)
	d := proposeNPC(t, m, "c1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Apply(context.Background(), d.ID, Accept())
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrDraftBusy) || errors.Is(err, ErrInvalidTransition), err.Error())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, store.appliedCount())
}

func TestAcceptanceManager_ModifyRegrounds(t *testing.T) {
	searcher := newFakeSearcher().on("", "Ironhold blacksmith", hit("p1", "Ironhold Forge, run by smith Dorran", 0.72))
	grounder := grounding.NewCombinedGrounder(grounding.NewRulebookLinker(searcher), nil, nil)
	pub := &fakePublisher{}
	m := NewAcceptanceManager(newFakeStore(), grounder, WithEventPublisher(pub))
	d := proposeNPC(t, m, "c1")

	modified := `{"name":"Dorran","background":"Trained under the master (see Ironhold blacksmith)."}`
	res, err := m.Apply(context.Background(), d.ID, Modify(modified))
	require.NoError(t, err)

	got := res.Draft
	assert.Equal(t, DraftProposed, got.State)
	assert.Equal(t, 2, got.Revision)
	assert.Equal(t, modified, got.Content)
	require.Len(t, got.Citations, 1)
	assert.NotEqual(t, "old", got.Citations[0].ID)
	assert.InDelta(t, 0.72, got.Citations[0].Confidence, 1e-9)
	assert.Contains(t, got.MarkedText, "(see Ironhold blacksmith) [1]")
	require.Len(t, got.TrustAssignments, 1)
	assert.Equal(t, TrustPlausible, got.TrustAssignments[0].Level)
	assert.Contains(t, pub.types(), EventDraftModified)
}

func TestAcceptanceManager_ModifyFailureKeepsDraft(t *testing.T) {
	m := NewAcceptanceManager(newFakeStore(), nil)
	d := proposeNPC(t, m, "c1")

	_, err := m.Apply(context.Background(), d.ID, Modify(`{"name":"Dorran","background":`))
	assert.True(t, errors.Is(err, ErrClaimExtraction))

	got, err := m.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DraftProposed, got.State)
	assert.Equal(t, npcJSON, got.Content)
	assert.Equal(t, 1, got.Revision)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "old", got.Citations[0].ID)
}

func TestAcceptanceManager_ModifyWithProse(t *testing.T) {
	searcher := newFakeSearcher().on("", "Ironhold blacksmith", hit("p1", "Ironhold Forge, run by smith Dorran", 0.72))
	grounder := grounding.NewCombinedGrounder(grounding.NewRulebookLinker(searcher), nil, nil)
	m := NewAcceptanceManager(newFakeStore(), grounder)
	d := proposeNPC(t, m, "c1")

	prose := "Dorran is actually an elf. He learned the trade (see Ironhold blacksmith)."
	res, err := m.Apply(context.Background(), d.ID, Modify(prose))
	require.NoError(t, err)

	got := res.Draft
	assert.Equal(t, DraftProposed, got.State)
	assert.Equal(t, 2, got.Revision)
	assert.Equal(t, prose, got.Content)
	assert.Nil(t, got.Data)
	require.Len(t, got.TrustAssignments, 2)
	assert.Equal(t, TrustUnsupported, got.TrustAssignments[0].Level)
	assert.Equal(t, TrustPlausible, got.TrustAssignments[1].Level)
}

func TestAcceptanceManager_EmptyModifyIsInvalidContent(t *testing.T) {
	m := NewAcceptanceManager(newFakeStore(), nil)
	d := proposeNPC(t, m, "c1")

	_, err := m.Apply(context.Background(), d.ID, Modify("  \n\t "))
	assert.True(t, errors.Is(err, ErrInvalidContent))
	assert.False(t, errors.Is(err, ErrInvalidTransition))

	got, err := m.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DraftProposed, got.State)
	assert.Equal(t, 1, got.Revision)
}

func TestAcceptanceManager_ResumesPersistedDrafts(t *testing.T) {
	repo := &fakeDraftRepo{}
	first := NewAcceptanceManager(newFakeStore(), nil, WithDraftRepository(repo))
	d := proposeNPC(t, first, "c1")
	rejected := proposeNPC(t, first, "c1")
	_, err := first.Apply(context.Background(), rejected.ID, Reject())
	require.NoError(t, err)

	store := newFakeStore()
	restarted := NewAcceptanceManager(store, nil, WithDraftRepository(repo))

	listed := listDrafts(t, restarted, "c1", DraftProposed)
	require.Len(t, listed, 1)
	assert.Equal(t, d.ID, listed[0].ID)

	got, err := restarted.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DraftProposed, got.State)
	assert.Equal(t, npcJSON, got.Content)

	res, err := restarted.Apply(context.Background(), d.ID, Accept())
	require.NoError(t, err)
	assert.Equal(t, "Dorran", res.Applied.Name)
	assert.Equal(t, 1, store.appliedCount())

	_, err = restarted.Apply(context.Background(), rejected.ID, Accept())
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	fresh := NewAcceptanceManager(newFakeStore(), nil, WithDraftRepository(repo))
	got, err = fresh.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, DraftAccepted, got.State)

	_, err = fresh.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrDraftNotFound))
}

func TestAcceptanceManager_StoreLoadFailure(t *testing.T) {
	repo := &fakeDraftRepo{loadErr: errors.New("connection refused")}
	m := NewAcceptanceManager(newFakeStore(), nil, WithDraftRepository(repo))

	_, err := m.Get(context.Background(), "d-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDraftNotFound))

	_, err = m.List(context.Background(), "c1")
	assert.Error(t, err)
}

func TestAcceptanceManager_ModifyGroundingErrorReverts(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.err = errors.New("search unavailable")
	grounder := grounding.NewCombinedGrounder(grounding.NewRulebookLinker(searcher), nil, nil)
	m := NewAcceptanceManager(newFakeStore(), grounder)
	d := proposeNPC(t, m, "c1")

	_, err := m.Apply(context.Background(), d.ID, Modify(`{"background":"a DC 12 check"}`))
	assert.True(t, errors.Is(err, ErrGroundingFailure))
	got, _ := m.Get(context.Background(), d.ID)
	assert.Equal(t, DraftProposed, got.State)
}

func TestAcceptanceManager_NotFoundAndList(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m := NewAcceptanceManager(newFakeStore(), nil, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	_, err := m.Apply(context.Background(), "missing", Accept())
	assert.True(t, errors.Is(err, ErrDraftNotFound))
	_, err = m.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrDraftNotFound))

	d1 := proposeNPC(t, m, "c1")
	d2 := proposeNPC(t, m, "c1")
	proposeNPC(t, m, "c2")
	_, err = m.Apply(context.Background(), d2.ID, Reject())
	require.NoError(t, err)

	all := listDrafts(t, m, "c1")
	require.Len(t, all, 2)
	assert.Equal(t, d1.ID, all[0].ID)
	assert.Equal(t, d2.ID, all[1].ID)

	proposed := listDrafts(t, m, "c1", DraftProposed)
	require.Len(t, proposed, 1)
	assert.Equal(t, d1.ID, proposed[0].ID)

	assert.Len(t, listDrafts(t, m, ""), 3)
}

func TestAcceptanceManager_ProposeRepoFailure(t *testing.T) {
	m := NewAcceptanceManager(newFakeStore(), nil, WithDraftRepository(&fakeDraftRepo{err: errors.New("insert failed")}))
	_, err := m.Propose(context.Background(), ProposeInput{CampaignID: "c1", Type: TypeNPC, Content: npcJSON})
	require.Error(t, err)
	assert.Empty(t, listDrafts(t, m, "c1"))
}

func TestDraftState(t *testing.T) {
	s, err := ParseDraftState("Accepted")
	require.NoError(t, err)
	assert.Equal(t, DraftAccepted, s)
	assert.True(t, s.Terminal())
	assert.False(t, DraftApplying.Terminal())
	_, err = ParseDraftState("bogus")
	assert.Error(t, err)
}

var _ port.CampaignStore = (*fakeStore)(nil)
