package bot

import (
	"context"
	"testing"
	"time"

	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/events"
	"consensus-trading-bot/internal/logging"
	"consensus-trading-bot/internal/position"
)

type stubRepo struct {
	bot           *database.Bot
	ops           map[string]*database.Operation
	statusUpdates []string
	confirmBumps  int
}

func (r *stubRepo) GetBot(ctx context.Context, userID string) (*database.Bot, error) {
	if r.bot == nil {
		return nil, database.ErrNotFound
	}
	return r.bot, nil
}

func (r *stubRepo) GetOrCreateBot(ctx context.Context, userID string) (*database.Bot, error) {
	if r.bot == nil {
		r.bot = &database.Bot{UserID: userID, Status: database.BotIdle}
	}
	return r.bot, nil
}

func (r *stubRepo) UpdateBotStatus(ctx context.Context, userID, status string) error {
	r.bot.Status = status
	r.statusUpdates = append(r.statusUpdates, status)
	return nil
}

func (r *stubRepo) IncrementConfirmingCount(ctx context.Context, userID string) error {
	r.confirmBumps++
	return nil
}

func (r *stubRepo) GetOperationByID(ctx context.Context, id string) (*database.Operation, error) {
	op, ok := r.ops[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return op, nil
}

type openCall struct {
	userID    string
	direction string
	groupID   string
}

type closeCall struct {
	operationID string
	reason      string
}

type stubManager struct {
	opens  []openCall
	closes []closeCall
}

func (m *stubManager) Open(ctx context.Context, userID, direction, groupID string) (*database.Operation, error) {
	m.opens = append(m.opens, openCall{userID, direction, groupID})
	return &database.Operation{ID: "op-new", UserID: userID, Direction: direction}, nil
}

func (m *stubManager) Close(ctx context.Context, operationID, reason string) (*database.Operation, error) {
	m.closes = append(m.closes, closeCall{operationID, reason})
	return &database.Operation{ID: operationID, Status: database.OperationClosed}, nil
}

type scheduleCall struct {
	delay     time.Duration
	userID    string
	direction string
	groupID   string
}

type stubScheduler struct {
	scheduled []scheduleCall
}

func (s *stubScheduler) ScheduleOpen(ctx context.Context, delay time.Duration, userID, direction, groupID string) error {
	s.scheduled = append(s.scheduled, scheduleCall{delay, userID, direction, groupID})
	return nil
}

func newTestService(repo *stubRepo) (*Service, *stubManager, *stubScheduler) {
	manager := &stubManager{}
	scheduler := &stubScheduler{}
	svc := NewService(repo, manager, scheduler, events.NewEventBus(), 5*time.Second, logging.Default())
	return svc, manager, scheduler
}

func operatingBot(userID, operationID string) *database.Bot {
	return &database.Bot{
		UserID:             userID,
		Status:             database.BotOperating,
		CurrentOperationID: &operationID,
	}
}

func TestHandleConfirmationMapsSideToDirection(t *testing.T) {
	cases := []struct {
		side      string
		direction string
	}{
		{database.SideBuy, database.DirectionLong},
		{database.SideSell, database.DirectionShort},
	}
	for _, tc := range cases {
		repo := &stubRepo{bot: &database.Bot{UserID: "u1", Status: database.BotListening}}
		svc, manager, _ := newTestService(repo)

		if err := svc.HandleConfirmation(context.Background(), "u1", "g1", tc.side); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.side, err)
		}
		if len(manager.opens) != 1 {
			t.Fatalf("%s: expected 1 open, got %d", tc.side, len(manager.opens))
		}
		if got := manager.opens[0].direction; got != tc.direction {
			t.Errorf("%s group opened direction %q, want %q", tc.side, got, tc.direction)
		}
		if manager.opens[0].groupID != "g1" {
			t.Errorf("%s: expected group g1 on the open, got %q", tc.side, manager.opens[0].groupID)
		}
	}
}

func TestHandleConfirmationIgnoresIdleBot(t *testing.T) {
	repo := &stubRepo{bot: &database.Bot{UserID: "u1", Status: database.BotIdle}}
	svc, manager, scheduler := newTestService(repo)

	if err := svc.HandleConfirmation(context.Background(), "u1", "g1", database.SideBuy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manager.opens) != 0 || len(manager.closes) != 0 || len(scheduler.scheduled) != 0 {
		t.Error("idle bot must not trade")
	}
}

func TestHandleConfirmationIgnoresSameDirection(t *testing.T) {
	repo := &stubRepo{
		bot: operatingBot("u1", "op-1"),
		ops: map[string]*database.Operation{
			"op-1": {ID: "op-1", UserID: "u1", Direction: database.DirectionShort, Status: database.OperationOpen},
		},
	}
	svc, manager, scheduler := newTestService(repo)

	// A sell group confirms the short already held; nothing happens
	if err := svc.HandleConfirmation(context.Background(), "u1", "g1", database.SideSell); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manager.opens) != 0 || len(manager.closes) != 0 || len(scheduler.scheduled) != 0 {
		t.Error("same-direction group must not pyramid or reverse")
	}
}

func TestHandleConfirmationReversesOppositeDirection(t *testing.T) {
	repo := &stubRepo{
		bot: operatingBot("u1", "op-1"),
		ops: map[string]*database.Operation{
			"op-1": {ID: "op-1", UserID: "u1", Direction: database.DirectionLong, Status: database.OperationOpen},
		},
	}
	svc, manager, scheduler := newTestService(repo)

	if err := svc.HandleConfirmation(context.Background(), "u1", "g1", database.SideSell); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manager.closes) != 1 {
		t.Fatalf("expected 1 close, got %d", len(manager.closes))
	}
	if manager.closes[0] != (closeCall{"op-1", position.ReasonReversal}) {
		t.Errorf("unexpected close: %+v", manager.closes[0])
	}
	if len(manager.opens) != 0 {
		t.Error("the reversal open must be deferred, not immediate")
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled open, got %d", len(scheduler.scheduled))
	}
	got := scheduler.scheduled[0]
	if got.direction != database.DirectionShort || got.groupID != "g1" || got.delay != 5*time.Second {
		t.Errorf("unexpected scheduled open: %+v", got)
	}
}

func TestHandleConfirmationReversesAfterStopStart(t *testing.T) {
	// Stopping and restarting the bot keeps the open operation attached while
	// the status reads listening. The next group must reverse the held
	// position, never open a second one alongside it.
	operationID := "op-1"
	repo := &stubRepo{
		bot: &database.Bot{
			UserID:             "u1",
			Status:             database.BotListening,
			CurrentOperationID: &operationID,
		},
		ops: map[string]*database.Operation{
			"op-1": {ID: "op-1", UserID: "u1", Direction: database.DirectionLong, Status: database.OperationOpen},
		},
	}
	svc, manager, scheduler := newTestService(repo)

	if err := svc.HandleConfirmation(context.Background(), "u1", "g1", database.SideSell); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manager.opens) != 0 {
		t.Error("must not open a second operation while one is attached")
	}
	if len(manager.closes) != 1 || manager.closes[0].operationID != "op-1" {
		t.Fatalf("expected op-1 closed, got %+v", manager.closes)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0].direction != database.DirectionShort {
		t.Errorf("expected a deferred short open, got %+v", scheduler.scheduled)
	}

	// Same-direction group in the same situation is still a no-op
	repo.bot.CurrentOperationID = &operationID
	manager.closes = nil
	scheduler.scheduled = nil
	if err := svc.HandleConfirmation(context.Background(), "u1", "g2", database.SideBuy); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manager.opens) != 0 || len(manager.closes) != 0 || len(scheduler.scheduled) != 0 {
		t.Error("same-direction group must be ignored even outside operating")
	}
}

func TestStartOnlyPromotesIdle(t *testing.T) {
	repo := &stubRepo{bot: operatingBot("u1", "op-1")}
	svc, _, _ := newTestService(repo)

	if err := svc.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.statusUpdates) != 0 {
		t.Errorf("starting an active bot must not change status, got %v", repo.statusUpdates)
	}

	repo.bot.Status = database.BotIdle
	if err := svc.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.bot.Status != database.BotListening {
		t.Errorf("expected listening, got %s", repo.bot.Status)
	}
}

func TestStopLeavesOperationOpen(t *testing.T) {
	repo := &stubRepo{
		bot: operatingBot("u1", "op-1"),
		ops: map[string]*database.Operation{
			"op-1": {ID: "op-1", UserID: "u1", Direction: database.DirectionLong, Status: database.OperationOpen},
		},
	}
	svc, manager, _ := newTestService(repo)

	if err := svc.Stop(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.bot.Status != database.BotIdle {
		t.Errorf("expected idle, got %s", repo.bot.Status)
	}
	if len(manager.closes) != 0 {
		t.Error("stop must never close the open operation")
	}
	if repo.bot.CurrentOperationID == nil {
		t.Error("stop must keep the operation reference")
	}
}

func TestStopUnknownUserIsNoOp(t *testing.T) {
	repo := &stubRepo{}
	svc, _, _ := newTestService(repo)

	if err := svc.Stop(context.Background(), "nobody"); err != nil {
		t.Fatalf("expected no-op for unknown user, got %v", err)
	}
}
