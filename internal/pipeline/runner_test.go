package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/listingbot/internal/cache/local"
	"github.com/alanyoungcy/listingbot/internal/domain"
	"github.com/alanyoungcy/listingbot/internal/resolver"
)

type harness struct {
	t         *testing.T
	clock     time.Time
	source    *pagedSource
	markets   *memMarkets
	approvals *memApprovals
	runs      *memRuns
	chat      *fakeChat
	images    *fakeImages
	banners   *memBanners
	assets    *fakeAssets
	chain     *fakeChain
	locks     *local.LockManager
	bus       *recordingBus
	notifier  *recordingNotifier
	deps      Deps
	runner    *Runner
}

func newHarness(t *testing.T, pages ...[]resolver.RawMarket) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		source:    &pagedSource{pages: pages},
		markets:   newMemMarkets(),
		approvals: &memApprovals{},
		runs:      &memRuns{},
		chat:      newFakeChat(),
		images:    &fakeImages{},
		banners:   &memBanners{},
		assets:    &fakeAssets{},
		chain:     &fakeChain{},
		locks:     local.NewLockManager(),
		bus:       &recordingBus{},
		notifier:  &recordingNotifier{},
	}
	h.deps = Deps{
		Source:    h.source,
		Markets:   h.markets,
		Approvals: h.approvals,
		Runs:      h.runs,
		Chat:      h.chat,
		Images:    h.images,
		Banners:   h.banners,
		Assets:    h.assets,
		Chain:     h.chain,
		Locks:     h.locks,
		Bus:       h.bus,
		Notifier:  h.notifier,
	}
	h.rebuild(Config{})
	return h
}

func (h *harness) rebuild(cfg Config) {
	h.runner = NewRunner(h.deps, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.runner.now = func() time.Time { return h.clock }
	h.runner.retryDelay = 0
}

func (h *harness) run() domain.PipelineRun {
	h.t.Helper()
	run, err := h.runner.RunOnce(context.Background())
	if err != nil {
		h.t.Fatalf("RunOnce: %v", err)
	}
	return run
}

func (h *harness) requireStatus(id string, want domain.MarketStatus) domain.Market {
	h.t.Helper()
	m := h.markets.get(id)
	if m.Status != want {
		h.t.Fatalf("market %s status = %q (%s), want %q", id, m.Status, m.StatusReason, want)
	}
	return m
}

func rainMarket() resolver.RawMarket {
	return resolver.RawMarket{
		ID:       "m-rain",
		Question: "Will it rain in London on 1 May?",
		Category: "science",
		EndDate:  "2030-05-01T00:00:00Z",
		Outcomes: resolver.NewOutcomes("Yes", "No"),
		Image:    "https://img.test/rain.png",
	}
}

func laLigaMarket() resolver.RawMarket {
	return resolver.RawMarket{
		ID:               "event:9",
		Question:         "Who will win La Liga?",
		Category:         "sports",
		EndDate:          "2030-06-01T00:00:00Z",
		Image:            "https://img.test/laliga.png",
		IsMultipleOption: resolver.Flag(true),
		IsEvent:          resolver.Flag(true),
		Outcomes:         resolver.NewOutcomes("Real Madrid", "Atletico"),
		Events: []resolver.Event{{
			ID:    "9",
			Title: "Who will win La Liga?",
			Image: "https://img.test/laliga.png",
			Outcomes: []resolver.Outcome{
				{ID: "a", Title: "Real Madrid", Icon: "https://img.test/rm.png"},
				{ID: "b", Title: "Atletico", Icon: "https://img.test/atm.png"},
			},
		}},
	}
}

func TestRunOnce_LifecycleToDeployed(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket(), laLigaMarket()})

	// Run 1: both markets are ingested and posted for initial review.
	run := h.run()
	if run.Processed != 2 || run.Status != domain.RunSuccess {
		t.Fatalf("run 1 = %+v", run)
	}
	rain := h.requireStatus("m-rain", domain.StatusPendingInitial)
	liga := h.requireStatus("event:9", domain.StatusPendingInitial)
	if liga.Kind != domain.KindMultiple || liga.EventID != "9" {
		t.Errorf("event market = %+v", liga)
	}
	if rain.ExpiresAt == nil || !rain.ExpiresAt.Equal(time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expiry = %v", rain.ExpiresAt)
	}
	if got := h.chat.botReactions(rain.MessageID); len(got) != 2 || got[0] != domain.ReactionApprove || got[1] != domain.ReactionReject {
		t.Errorf("bot reactions = %v", got)
	}
	if hdr := h.chat.message(rain.MessageID).Blocks[0].Text; hdr != initialHeader {
		t.Errorf("initial header = %q", hdr)
	}

	h.chat.vote(rain.MessageID, domain.ReactionApprove, "U1")
	h.chat.vote(liga.MessageID, domain.ReactionReject, "U1")

	// Run 2: decisions are applied and the approved market gets a banner.
	run = h.run()
	if run.Processed != 0 || run.Approved != 1 || run.Rejected != 1 || run.Banners != 1 {
		t.Fatalf("run 2 = %+v", run)
	}
	h.requireStatus("event:9", domain.StatusRejected)
	rain = h.requireStatus("m-rain", domain.StatusPendingFinal)
	if rain.BannerPath != "banners/staging/m-rain.png" {
		t.Errorf("banner path = %q", rain.BannerPath)
	}
	final := h.chat.message(rain.MessageID)
	if final.Blocks[0].Text != finalHeader {
		t.Errorf("final header = %q", final.Blocks[0].Text)
	}
	if len(h.images.prompts) != 1 || !strings.Contains(h.images.prompts[0], rain.Question) {
		t.Errorf("prompts = %v", h.images.prompts)
	}

	h.chat.vote(rain.MessageID, domain.ReactionApprove, "U2")

	// Run 3: deployment.
	run = h.run()
	if run.Deployed != 1 || run.Approved != 1 {
		t.Fatalf("run 3 = %+v", run)
	}
	rain = h.requireStatus("m-rain", domain.StatusDeployed)

	const assetPath = "public/images/markets/m-rain.png"
	if _, ok := h.assets.published[assetPath]; !ok {
		t.Fatalf("published = %v", h.assets.published)
	}
	if rain.AssetURL != "https://assets.test/"+assetPath || rain.AssetRevision != "rev-1" {
		t.Errorf("asset = %q %q", rain.AssetURL, rain.AssetRevision)
	}
	if rain.TxHash != "0xabc" || rain.OnchainID != "42" {
		t.Errorf("chain fields = %q %q", rain.TxHash, rain.OnchainID)
	}
	if len(h.chain.submitted) != 1 {
		t.Fatalf("submitted = %d", len(h.chain.submitted))
	}
	sub := h.chain.submitted[0]
	if sub.BannerURL != rain.AssetURL || !sub.Expiry.Equal(*rain.ExpiresAt) || len(sub.Options) != 2 {
		t.Errorf("chain market = %+v", sub)
	}

	// new→pending_initial→approved→banner_generated→pending_final→final_approved→deployed
	// plus new→pending_initial→rejected.
	if n := h.bus.count(domain.ChannelStatus); n != 8 {
		t.Errorf("status events = %d, want 8", n)
	}
	if n := h.bus.count(domain.ChannelRuns); n != 3 {
		t.Errorf("run events = %d, want 3", n)
	}
	if !strings.HasPrefix(h.notifier.message(EventRunSummary), "Pipeline run "+run.ID+" finished") {
		t.Errorf("summary = %q", h.notifier.message(EventRunSummary))
	}
}

func TestRunOnce_TimesOutUnansweredReview(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.run()

	h.clock = h.clock.Add(29 * time.Minute)
	h.run()
	h.requireStatus("m-rain", domain.StatusPendingInitial)

	h.clock = h.clock.Add(2 * time.Minute)
	run := h.run()
	if run.TimedOut != 1 {
		t.Fatalf("timed out = %d", run.TimedOut)
	}
	h.requireStatus("m-rain", domain.StatusTimeout)

	events, _ := h.approvals.ListByMarket(context.Background(), "m-rain")
	if len(events) != 1 || events[0].Status != domain.ApprovalTimeout || events[0].ResolvedAt == nil {
		t.Errorf("events = %+v", events)
	}
}

func TestRunOnce_FinalTimeoutIsDistinct(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.run()
	h.chat.vote(h.markets.get("m-rain").MessageID, domain.ReactionApprove, "U1")
	h.run()
	h.requireStatus("m-rain", domain.StatusPendingFinal)

	h.clock = h.clock.Add(time.Hour)
	h.run()
	h.requireStatus("m-rain", domain.StatusFinalTimeout)
}

func TestRunOnce_StopsAtMaxMarkets(t *testing.T) {
	page := func(ids ...string) []resolver.RawMarket {
		var out []resolver.RawMarket
		for _, id := range ids {
			m := rainMarket()
			m.ID = id
			out = append(out, m)
		}
		return out
	}
	h := newHarness(t, page("m1", "m2"), page("m3", "m4"), page("m5", "m6"))
	h.rebuild(Config{MaxMarketsPerRun: 3})

	run := h.run()
	if run.Processed != 3 {
		t.Fatalf("processed = %d", run.Processed)
	}
	if h.source.calls != 2 {
		t.Errorf("pages fetched = %d, want 2", h.source.calls)
	}
	if ok, _ := h.markets.Exists(context.Background(), "m4"); ok {
		t.Error("m4 should wait for the next run")
	}

	run = h.run()
	if run.Processed != 3 {
		t.Errorf("second run processed = %d", run.Processed)
	}
}

func TestRunOnce_PostFailureMarksMarketFailed(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.chat.postErr = errors.New("channel_not_found")

	run := h.run()
	if run.Status != domain.RunSuccess {
		t.Errorf("per-market failure must not fail the run: %+v", run)
	}
	if run.Failed != 1 || len(run.Failures) != 1 || !strings.HasPrefix(run.Failures[0], "m-rain: ") {
		t.Fatalf("failures = %+v", run.Failures)
	}
	m := h.requireStatus("m-rain", domain.StatusFailed)
	if !strings.Contains(m.StatusReason, "channel_not_found") {
		t.Errorf("reason = %q", m.StatusReason)
	}
	if !strings.Contains(h.notifier.message(EventMarketFailed), "m-rain") {
		t.Errorf("failure notification = %q", h.notifier.message(EventMarketFailed))
	}
}

func TestRunOnce_SourceErrorFailsRun(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("gamma down")

	run, err := h.runner.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "gamma down") {
		t.Fatalf("err = %v", err)
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %q", run.Status)
	}
	latest, _ := h.runs.Latest(context.Background())
	if latest.Status != domain.RunFailed || latest.FinishedAt == nil {
		t.Errorf("stored run = %+v", latest)
	}
	if !strings.Contains(h.notifier.message(EventRunSummary), "Error: ingest: fetch page 0: gamma down") {
		t.Errorf("summary = %q", h.notifier.message(EventRunSummary))
	}
}

func TestRunOnce_BannerFailure(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.run()
	h.chat.vote(h.markets.get("m-rain").MessageID, domain.ReactionApprove, "U1")
	h.images.err = errors.New("content_policy_violation")

	run := h.run()
	if run.Failed != 1 {
		t.Fatalf("failed = %d", run.Failed)
	}
	m := h.requireStatus("m-rain", domain.StatusFailed)
	if !strings.HasPrefix(m.StatusReason, "banner: generate") {
		t.Errorf("reason = %q", m.StatusReason)
	}
}

func approveThrough(h *harness, id string) {
	h.t.Helper()
	h.run()
	h.chat.vote(h.markets.get(id).MessageID, domain.ReactionApprove, "U1")
	h.run()
	h.chat.vote(h.markets.get(id).MessageID, domain.ReactionApprove, "U1")
}

func TestRunOnce_DeployNeedsExpiry(t *testing.T) {
	raw := rainMarket()
	raw.EndDate = ""
	h := newHarness(t, []resolver.RawMarket{raw})
	approveThrough(h, raw.ID)

	h.run()
	m := h.requireStatus(raw.ID, domain.StatusFailed)
	if !strings.Contains(m.StatusReason, errNoExpiry.Error()) {
		t.Errorf("reason = %q", m.StatusReason)
	}
	if len(h.assets.published) != 0 || len(h.chain.submitted) != 0 {
		t.Error("nothing should be published for a market without expiry")
	}
}

func TestRunOnce_ChainRevertKeepsTxHash(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.chain.err = domain.ErrTxReverted
	approveThrough(h, "m-rain")

	h.run()
	m := h.requireStatus("m-rain", domain.StatusFailed)
	if m.TxHash != "0xdead" {
		t.Errorf("tx hash = %q", m.TxHash)
	}
}

func TestRunOnce_DeployRetriesStatusWrite(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	approveThrough(h, "m-rain")
	h.markets.failTransitions(domain.StatusDeployed, errors.New("connection reset"))

	run := h.run()
	if run.Deployed != 1 || run.Failed != 0 {
		t.Fatalf("run = %+v", run)
	}
	h.requireStatus("m-rain", domain.StatusDeployed)
	if len(h.chain.submitted) != 1 {
		t.Errorf("submitted = %d, want 1", len(h.chain.submitted))
	}
}

func TestRunOnce_FailedStatusWriteNeverResubmits(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	approveThrough(h, "m-rain")
	down := errors.New("connection reset")
	h.markets.failTransitions(domain.StatusDeployed, down, down, down)

	run := h.run()
	if run.Deployed != 0 || run.Failed != 1 {
		t.Fatalf("run = %+v", run)
	}
	m := h.requireStatus("m-rain", domain.StatusFinalApproved)
	if m.TxHash != "0xabc" || m.OnchainID != "42" || m.AssetURL == "" {
		t.Errorf("submission not recorded: %+v", m)
	}

	run = h.run()
	if run.Deployed != 1 {
		t.Fatalf("run = %+v", run)
	}
	h.requireStatus("m-rain", domain.StatusDeployed)
	if len(h.chain.submitted) != 1 {
		t.Errorf("submitted = %d, want exactly 1", len(h.chain.submitted))
	}
}

func TestRunOnce_WithoutChainClient(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.deps.Chain = nil
	h.rebuild(Config{})
	approveThrough(h, "m-rain")

	run := h.run()
	if run.Deployed != 1 {
		t.Fatalf("deployed = %d", run.Deployed)
	}
	m := h.requireStatus("m-rain", domain.StatusDeployed)
	if m.TxHash != "" || m.AssetURL == "" {
		t.Errorf("market = %+v", m)
	}
}

func TestRunOnce_LostDecisionRaceLeavesEventPending(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.run()
	h.chat.vote(h.markets.get("m-rain").MessageID, domain.ReactionApprove, "U1")
	h.markets.failTransitions(domain.StatusApproved, domain.ErrStaleStatus)

	run := h.run()
	if run.Approved != 0 || run.Failed != 0 {
		t.Fatalf("run = %+v", run)
	}
	h.requireStatus("m-rain", domain.StatusPendingInitial)
	if _, err := h.approvals.Pending(context.Background(), "m-rain", domain.StageInitial); err != nil {
		t.Fatalf("approval event resolved despite lost race: %v", err)
	}

	run = h.run()
	if run.Approved != 1 {
		t.Fatalf("run = %+v", run)
	}
	evs, _ := h.approvals.ListByMarket(context.Background(), "m-rain")
	if len(evs) == 0 || evs[0].Status != domain.ApprovalApproved {
		t.Errorf("events = %+v", evs)
	}
}

func TestRunOnce_MissingReviewMessage(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.run()
	_ = h.chat.Delete(context.Background(), h.markets.get("m-rain").MessageID)

	h.run()
	h.requireStatus("m-rain", domain.StatusFailed)
}

func TestRunOnce_TransientReactionErrorRetries(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	h.run()
	h.chat.mu.Lock()
	h.chat.readErr = domain.ErrRateLimited
	h.chat.mu.Unlock()

	run := h.run()
	if run.Failed != 0 {
		t.Fatalf("failed = %d", run.Failed)
	}
	h.requireStatus("m-rain", domain.StatusPendingInitial)
}

func TestRunOnce_SkipsLockedMarket(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})
	unlock, err := h.locks.Acquire(context.Background(), "market:m-rain", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	run := h.run()
	if run.Processed != 0 {
		t.Errorf("processed = %d", run.Processed)
	}
	if ok, _ := h.markets.Exists(context.Background(), "m-rain"); ok {
		t.Error("locked market must not be ingested")
	}
}

func TestRunOnce_RejectsOverlappingRuns(t *testing.T) {
	h := newHarness(t)
	h.runner.running.Store(true)

	if _, err := h.runner.RunOnce(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Errorf("RunOnce err = %v", err)
	}
	if _, err := h.runner.Trigger(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Errorf("Trigger err = %v", err)
	}
}

func TestTrigger_RunsInBackground(t *testing.T) {
	h := newHarness(t, []resolver.RawMarket{rainMarket()})

	id, err := h.runner.Trigger(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.runner.Running() {
		if time.Now().After(deadline) {
			t.Fatal("triggered run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	latest, err := h.runs.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != id || latest.Processed != 1 {
		t.Errorf("latest run = %+v, want id %s", latest, id)
	}
}

func TestDecide(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeout := 30 * time.Minute
	tests := []struct {
		name      string
		reactions map[string][]string
		elapsed   time.Duration
		want      domain.ApprovalStatus
	}{
		{"no reactions yet", nil, time.Minute, domain.ApprovalPending},
		{"approve", map[string][]string{domain.ReactionApprove: {"U1"}}, time.Minute, domain.ApprovalApproved},
		{"reject", map[string][]string{domain.ReactionReject: {"U1"}}, time.Minute, domain.ApprovalRejected},
		{"reject wins", map[string][]string{domain.ReactionApprove: {"U1"}, domain.ReactionReject: {"U2"}}, time.Minute, domain.ApprovalRejected},
		{"vote beats timeout", map[string][]string{domain.ReactionApprove: {"U1"}}, time.Hour, domain.ApprovalApproved},
		{"empty user list", map[string][]string{domain.ReactionApprove: {}}, time.Minute, domain.ApprovalPending},
		{"timeout boundary", nil, timeout, domain.ApprovalTimeout},
		{"other emoji ignored", map[string][]string{"eyes": {"U1"}}, time.Hour, domain.ApprovalTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.reactions, created, created.Add(tt.elapsed), timeout); got != tt.want {
				t.Errorf("Decide = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssetPath(t *testing.T) {
	m := domain.Market{ID: "event:12/a?b"}
	if got := AssetPath("public/images/markets/", m); got != "public/images/markets/event_12_a_b.png" {
		t.Errorf("AssetPath = %q", got)
	}
}
