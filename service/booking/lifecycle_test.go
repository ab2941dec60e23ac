package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/devmentor/devmentor-server/service/scheduling"
	"go.uber.org/zap"
)

// memoryLedger mirrors the transactional guarantee of the real store: a
// single mutex makes the overlap re-check and insert atomic.
type memoryLedger struct {
	mu       sync.Mutex
	nextID   uint
	bookings map[uint]*models.Booking
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{nextID: 1, bookings: make(map[uint]*models.Booking)}
}

func (l *memoryLedger) InsertIfFree(_ context.Context, b *models.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, other := range l.bookings {
		if other.MentorID != b.MentorID || !other.Status.Blocking() {
			continue
		}
		if b.SessionStart.Before(other.SessionEnd) && b.SessionEnd.After(other.SessionStart) {
			return apperrors.Conflict("slot is no longer available")
		}
	}
	b.ID = l.nextID
	l.nextID++
	copied := *b
	l.bookings[b.ID] = &copied
	return nil
}

func (l *memoryLedger) Get(_ context.Context, id uint) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking")
	}
	copied := *b
	return &copied, nil
}

func (l *memoryLedger) Save(_ context.Context, b *models.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *b
	l.bookings[b.ID] = &copied
	return nil
}

var fixedNow = time.Date(2026, 2, 28, 17, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryLedger) {
	t.Helper()
	ledger := newMemoryLedger()
	svc := NewService(ledger, zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, ledger
}

func futureSlot() scheduling.Slot {
	return scheduling.Slot{
		Start: fixedNow.Add(48 * time.Hour),
		End:   fixedNow.Add(49 * time.Hour),
	}
}

func verifiedProof() *PaymentProof {
	return &PaymentProof{Reference: "pay_123", Amount: 100, Verified: true}
}

func TestClaimSlotWithPayment(t *testing.T) {
	svc, _ := newTestService(t)

	b, err := svc.ClaimSlot(context.Background(), 1, 2, futureSlot(), verifiedProof())
	if err != nil {
		t.Fatalf("ClaimSlot: %v", err)
	}
	if b.Status != models.BookingPaid {
		t.Errorf("status = %s, want PAID", b.Status)
	}
	if b.PlatformFee != 10 {
		t.Errorf("platform fee = %v, want 10", b.PlatformFee)
	}
	if b.MentorPayout != 90 {
		t.Errorf("mentor payout = %v, want 90", b.MentorPayout)
	}
	if b.PaidAt == nil {
		t.Error("PaidAt not set")
	}
}

func TestClaimSlotWithoutPayment(t *testing.T) {
	svc, _ := newTestService(t)

	b, err := svc.ClaimSlot(context.Background(), 1, 2, futureSlot(), nil)
	if err != nil {
		t.Fatalf("ClaimSlot: %v", err)
	}
	if b.Status != models.BookingPendingPayment {
		t.Errorf("status = %s, want PENDING_PAYMENT", b.Status)
	}
	if b.PaidAt != nil {
		t.Error("PaidAt set without payment")
	}
}

func TestClaimSlotRejectsPast(t *testing.T) {
	svc, _ := newTestService(t)

	slot := scheduling.Slot{Start: fixedNow.Add(-time.Hour), End: fixedNow}
	_, err := svc.ClaimSlot(context.Background(), 1, 2, slot, nil)
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

// Two customers race for the same interval: exactly one claim wins and
// the other gets a conflict.
func TestClaimSlotConcurrentRace(t *testing.T) {
	svc, _ := newTestService(t)
	slot := futureSlot()

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ClaimSlot(context.Background(), 1, uint(10+i), slot, verifiedProof())
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperrors.IsCode(err, apperrors.CodeConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if conflicts != racers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, racers-1)
	}
}

func TestClaimSlotPartialOverlapConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	slot := futureSlot()

	if _, err := svc.ClaimSlot(context.Background(), 1, 2, slot, verifiedProof()); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	overlapping := scheduling.Slot{
		Start: slot.Start.Add(30 * time.Minute),
		End:   slot.End.Add(30 * time.Minute),
	}
	_, err := svc.ClaimSlot(context.Background(), 1, 3, overlapping, verifiedProof())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Errorf("err = %v, want conflict", err)
	}

	// Touching intervals do not overlap.
	adjacent := scheduling.Slot{Start: slot.End, End: slot.End.Add(time.Hour)}
	if _, err := svc.ClaimSlot(context.Background(), 1, 4, adjacent, verifiedProof()); err != nil {
		t.Errorf("adjacent claim: %v", err)
	}
}

func TestMarkPaid(t *testing.T) {
	svc, _ := newTestService(t)

	b, err := svc.ClaimSlot(context.Background(), 1, 2, futureSlot(), nil)
	if err != nil {
		t.Fatalf("ClaimSlot: %v", err)
	}

	if _, err := svc.MarkPaid(context.Background(), b.ID, PaymentProof{Reference: "pay_9", Amount: 50}); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("unverified proof: err = %v, want validation error", err)
	}

	paid, err := svc.MarkPaid(context.Background(), b.ID, PaymentProof{Reference: "pay_9", Amount: 50, Verified: true})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if paid.Status != models.BookingPaid || paid.MentorPayout != 45 {
		t.Errorf("got status %s payout %v, want PAID 45", paid.Status, paid.MentorPayout)
	}
}

func TestConfirmRunsSideEffect(t *testing.T) {
	svc, ledger := newTestService(t)
	b, _ := svc.ClaimSlot(context.Background(), 1, 2, futureSlot(), verifiedProof())

	confirmed, err := svc.Confirm(context.Background(), b.ID, func(b *models.Booking) error {
		b.MeetingID = "room-abc"
		return nil
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != models.BookingConfirmed {
		t.Errorf("status = %s, want CONFIRMED", confirmed.Status)
	}
	if confirmed.MeetingID != "room-abc" {
		t.Error("side-effect mutation not persisted")
	}
	if confirmed.ScheduledAt == nil {
		t.Error("ScheduledAt not set")
	}

	stored, _ := ledger.Get(context.Background(), b.ID)
	if stored.Status != models.BookingConfirmed {
		t.Errorf("stored status = %s, want CONFIRMED", stored.Status)
	}
}

// A failed side effect must never roll back the captured payment: the
// booking stays PAID, keeps blocking the slot, and is flagged for manual
// follow-up.
func TestConfirmSideEffectFailure(t *testing.T) {
	svc, ledger := newTestService(t)
	b, _ := svc.ClaimSlot(context.Background(), 1, 2, futureSlot(), verifiedProof())

	_, err := svc.Confirm(context.Background(), b.ID, func(*models.Booking) error {
		return errors.New("meeting provider down")
	})
	if !apperrors.IsCode(err, apperrors.CodeExternalService) {
		t.Fatalf("err = %v, want external service error", err)
	}

	stored, _ := ledger.Get(context.Background(), b.ID)
	if stored.Status != models.BookingPaid {
		t.Errorf("status = %s, want PAID", stored.Status)
	}
	if !stored.ManualFollowUp {
		t.Error("ManualFollowUp not set")
	}
	if !stored.Status.Blocking() {
		t.Error("flagged booking must keep blocking the slot")
	}
}

func TestCancelByEachParty(t *testing.T) {
	for _, tc := range []struct {
		by   Party
		want models.BookingStatus
	}{
		{ByCustomer, models.BookingCancelledByCustomer},
		{ByMentor, models.BookingCancelledByMentor},
	} {
		svc, _ := newTestService(t)
		b, _ := svc.ClaimSlot(context.Background(), 1, 2, futureSlot(), verifiedProof())

		cancelled, err := svc.Cancel(context.Background(), b.ID, tc.by)
		if err != nil {
			t.Fatalf("Cancel by %s: %v", tc.by, err)
		}
		if cancelled.Status != tc.want {
			t.Errorf("status = %s, want %s", cancelled.Status, tc.want)
		}
		if cancelled.CancelledAt == nil {
			t.Error("CancelledAt not set")
		}
		if cancelled.Status.Blocking() {
			t.Error("cancelled booking must not block the slot")
		}
	}
}

func TestCancelledSlotReclaimable(t *testing.T) {
	svc, _ := newTestService(t)
	slot := futureSlot()

	b, _ := svc.ClaimSlot(context.Background(), 1, 2, slot, verifiedProof())
	if _, err := svc.Cancel(context.Background(), b.ID, ByCustomer); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := svc.ClaimSlot(context.Background(), 1, 3, slot, verifiedProof()); err != nil {
		t.Errorf("reclaiming freed slot: %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name string
		run  func(svc *Service, id uint) error
		from models.BookingStatus
		ok   bool
	}{
		{"confirm from pending", confirmOp, models.BookingPendingPayment, false},
		{"complete from paid", completeOp, models.BookingPaid, false},
		{"complete from confirmed", completeOp, models.BookingConfirmed, true},
		{"cancel from completed", cancelOp, models.BookingCompleted, false},
		{"refund from completed", refundOp, models.BookingCompleted, true},
		{"refund from cancelled", refundOp, models.BookingCancelledByMentor, true},
		{"refund from paid", refundOp, models.BookingPaid, false},
		{"refund from refunded", refundOp, models.BookingRefunded, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, ledger := newTestService(t)
			b := &models.Booking{
				MentorID:     1,
				CustomerID:   2,
				SessionStart: fixedNow.Add(48 * time.Hour),
				SessionEnd:   fixedNow.Add(49 * time.Hour),
				Status:       tc.from,
			}
			if err := ledger.InsertIfFree(context.Background(), b); err != nil {
				t.Fatalf("seeding booking: %v", err)
			}

			err := tc.run(svc, b.ID)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !apperrors.IsCode(err, apperrors.CodeConflict) {
				t.Errorf("err = %v, want conflict", err)
			}
		})
	}
}

func confirmOp(svc *Service, id uint) error {
	_, err := svc.Confirm(context.Background(), id, nil)
	return err
}

func completeOp(svc *Service, id uint) error {
	_, err := svc.Complete(context.Background(), id)
	return err
}

func cancelOp(svc *Service, id uint) error {
	_, err := svc.Cancel(context.Background(), id, ByCustomer)
	return err
}

func refundOp(svc *Service, id uint) error {
	_, err := svc.Refund(context.Background(), id)
	return err
}
