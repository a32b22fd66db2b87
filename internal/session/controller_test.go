package session_test

import (
	"context"
	"testing"

	"labmq/internal/logging"
	"labmq/internal/session"
)

func TestConnectGrantsFirstClient(t *testing.T) {
	ctrl := session.NewController(logging.NewNop(), nil)

	grant := ctrl.Connect(context.Background(), "client-a")
	if grant.Decision != session.Granted {
		t.Fatalf("decision = %v, want Granted", grant.Decision)
	}
	if grant.Token == "" {
		t.Fatal("granted session must carry a token")
	}

	active, ok := ctrl.Active()
	if !ok || active.Client != "client-a" || active.Token != grant.Token {
		t.Fatalf("active session mismatch: %+v", active)
	}
	if active.GrantedAt.IsZero() {
		t.Fatal("granted-at not stamped")
	}
}

func TestConnectIdempotentForHolder(t *testing.T) {
	ctrl := session.NewController(logging.NewNop(), nil)
	ctx := context.Background()

	first := ctrl.Connect(ctx, "client-a")
	second := ctrl.Connect(ctx, "client-a")

	if second.Decision != session.AlreadyHeld {
		t.Fatalf("decision = %v, want AlreadyHeld", second.Decision)
	}
	if second.Token != first.Token {
		t.Fatal("repeat connect must re-send the same token")
	}
	if waiters := ctrl.Waiters(); len(waiters) != 0 {
		t.Fatalf("holder reconnect must not enter the wait queue: %v", waiters)
	}
}

func TestContendersWaitInFIFOOrder(t *testing.T) {
	ctrl := session.NewController(logging.NewNop(), nil)
	ctx := context.Background()

	grantA := ctrl.Connect(ctx, "a")
	if g := ctrl.Connect(ctx, "b"); g.Decision != session.Waitlisted {
		t.Fatalf("b should be waitlisted, got %v", g.Decision)
	}
	if g := ctrl.Connect(ctx, "c"); g.Decision != session.Waitlisted {
		t.Fatalf("c should be waitlisted, got %v", g.Decision)
	}
	if waiters := ctrl.Waiters(); len(waiters) != 2 || waiters[0] != "b" || waiters[1] != "c" {
		t.Fatalf("unexpected wait queue: %v", waiters)
	}

	released, promo := ctrl.Release(ctx, "a", grantA.Token)
	if !released {
		t.Fatal("holder release refused")
	}
	if promo == nil || promo.Client != "b" {
		t.Fatalf("expected promotion of b, got %+v", promo)
	}
	if promo.Token == grantA.Token {
		t.Fatal("promotion must mint a fresh token")
	}

	released, promo = ctrl.Release(ctx, "b", promo.Token)
	if !released || promo == nil || promo.Client != "c" {
		t.Fatalf("expected promotion of c, got released=%v promo=%+v", released, promo)
	}

	released, promo = ctrl.Release(ctx, "c", promo.Token)
	if !released || promo != nil {
		t.Fatalf("final release should leave nobody active, got promo=%+v", promo)
	}
	if _, ok := ctrl.Active(); ok {
		t.Fatal("session should be free after last release")
	}
}

func TestReleaseByIdentityWithoutToken(t *testing.T) {
	ctrl := session.NewController(logging.NewNop(), nil)
	ctx := context.Background()

	ctrl.Connect(ctx, "a")
	released, _ := ctrl.Release(ctx, "a", "")
	if !released {
		t.Fatal("active identity should be able to release without a token")
	}
}

func TestReleaseIgnoredFromNonHolder(t *testing.T) {
	ctrl := session.NewController(logging.NewNop(), nil)
	ctx := context.Background()

	grant := ctrl.Connect(ctx, "a")
	ctrl.Connect(ctx, "b")

	if released, _ := ctrl.Release(ctx, "b", ""); released {
		t.Fatal("waiter must not be able to release the session")
	}
	if released, _ := ctrl.Release(ctx, "stranger", "bogus-token"); released {
		t.Fatal("stranger must not be able to release the session")
	}

	active, ok := ctrl.Active()
	if !ok || active.Client != "a" || active.Token != grant.Token {
		t.Fatalf("active session disturbed: %+v", active)
	}
	if waiters := ctrl.Waiters(); len(waiters) != 1 || waiters[0] != "b" {
		t.Fatalf("wait queue disturbed: %v", waiters)
	}
}

func TestAuthorize(t *testing.T) {
	ctrl := session.NewController(logging.NewNop(), nil)
	ctx := context.Background()

	if ctrl.Authorize("") {
		t.Fatal("empty token must never authorize")
	}
	if ctrl.Authorize("anything") {
		t.Fatal("no session means nothing authorizes")
	}

	grant := ctrl.Connect(ctx, "a")
	if !ctrl.Authorize(grant.Token) {
		t.Fatal("active token should authorize")
	}
	if ctrl.Authorize("not-the-token") {
		t.Fatal("foreign token should not authorize")
	}

	ctrl.Connect(ctx, "b")
	_, promo := ctrl.Release(ctx, "a", grant.Token)
	if ctrl.Authorize(grant.Token) {
		t.Fatal("released token must stop authorizing")
	}
	if promo == nil || !ctrl.Authorize(promo.Token) {
		t.Fatal("promoted session's token should authorize")
	}
}

type eventRecorder struct {
	events []string
}

func (r *eventRecorder) RecordSession(_ context.Context, event, client string) error {
	r.events = append(r.events, event+":"+client)
	return nil
}

func TestSessionEventsRecorded(t *testing.T) {
	rec := &eventRecorder{}
	ctrl := session.NewController(logging.NewNop(), rec)
	ctx := context.Background()

	grant := ctrl.Connect(ctx, "a")
	ctrl.Connect(ctx, "b")
	ctrl.Release(ctx, "a", grant.Token)

	want := []string{"granted:a", "queued:b", "released:a", "promoted:b"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, rec.events[i], want[i])
		}
	}
}
