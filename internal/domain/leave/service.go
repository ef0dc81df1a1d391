package leave

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/platform/keylock"
	"hrassist/internal/platform/metrics"
)

// Deliverer fans a committed notification out.
type Deliverer interface {
	Deliver(ctx context.Context, n notifications.Notification)
}

type Service struct {
	store      StoreAPI
	identities identity.Reader
	delivery   Deliverer
	locks      *keylock.Map
	metrics    *metrics.Collector
	now        func() time.Time
}

func NewService(store StoreAPI, identities identity.Reader, delivery Deliverer, m *metrics.Collector) *Service {
	return &Service{
		store:      store,
		identities: identities,
		delivery:   delivery,
		locks:      keylock.New(),
		metrics:    m,
		now:        time.Now,
	}
}

func (s *Service) Apply(ctx context.Context, in ApplyInput, actor identity.Caller) (LeaveRequest, error) {
	if !actor.CanView(strings.TrimSpace(in.EmployeeID)) {
		return LeaveRequest{}, ErrForbidden
	}
	days, err := validateApply(&in)
	if err != nil {
		return LeaveRequest{}, err
	}
	employee, err := s.identities.Get(ctx, in.EmployeeID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return LeaveRequest{}, fmt.Errorf("%w: employee %s", identity.ErrNotFound, in.EmployeeID)
		}
		return LeaveRequest{}, err
	}

	req := LeaveRequest{
		EmployeeID: employee.ID,
		StartDate:  truncateDay(in.Start),
		EndDate:    truncateDay(in.End),
		Days:       days,
		Reason:     in.Reason,
	}
	created, note, err := s.store.Create(ctx, req, func(r LeaveRequest) (audit.Entry, notifications.Notification) {
		entry := audit.NewEntry(ctx, actor.ID, audit.ActionLeaveApply, requestTarget(r.ID), map[string]any{
			"employeeId": r.EmployeeID,
			"startDate":  FormatDate(r.StartDate),
			"endDate":    FormatDate(r.EndDate),
			"days":       r.Days,
		})
		return entry, notifications.Notification{
			RecipientScope: notifications.BroadcastScope,
			Kind:           notifications.KindLeaveSubmitted,
			Title:          "New leave request",
			Body: fmt.Sprintf("Employee %s (%s) requested %d day(s) from %s to %s.",
				displayName(employee), employee.ID, r.Days, FormatDate(r.StartDate), FormatDate(r.EndDate)),
		}
	})
	if err != nil {
		return LeaveRequest{}, err
	}
	zap.L().Info("leave request submitted",
		zap.Int64("requestId", created.ID),
		zap.String("employeeId", created.EmployeeID),
		zap.Int("days", created.Days))
	s.deliver(ctx, note)
	return created, nil
}

// Decide applies an ADMIN decision. Concurrent decisions on one request are serialized here
// and by the store's row lock; every loser gets ErrWorkflowConflict.
func (s *Service) Decide(ctx context.Context, in DecideInput, actor identity.Caller) (LeaveRequest, error) {
	if !actor.IsAdmin() || actor.ID == "" {
		return LeaveRequest{}, ErrForbidden
	}
	status, err := ParseDecision(in.Decision)
	if err != nil {
		return LeaveRequest{}, err
	}
	if in.RequestID < 1 {
		return LeaveRequest{}, ErrNotFound
	}

	unlock := s.locks.Lock(requestTarget(in.RequestID))
	defer unlock()

	decided, note, err := s.store.Decide(ctx, in.RequestID, status, actor.ID, func(r LeaveRequest) (audit.Entry, notifications.Notification) {
		detail := map[string]any{
			"decision":   string(r.Status),
			"employeeId": r.EmployeeID,
			"days":       r.Days,
		}
		if hrNote := strings.TrimSpace(in.Note); hrNote != "" {
			detail["hrActor"] = hrNote
		}
		kind := notifications.KindLeaveApproved
		if r.Status == StatusRejected {
			kind = notifications.KindLeaveRejected
		}
		return audit.NewEntry(ctx, actor.ID, audit.ActionLeaveDecide, requestTarget(r.ID), detail), notifications.Notification{
			RecipientScope: r.EmployeeID,
			Kind:           kind,
			Title:          "Leave " + string(r.Status),
			Body: fmt.Sprintf("Your leave (%s to %s) has been %s.",
				FormatDate(r.StartDate), FormatDate(r.EndDate), strings.ToLower(string(r.Status))),
		}
	})
	if errors.Is(err, ErrWorkflowConflict) {
		s.metrics.WorkflowConflict()
		zap.L().Warn("leave decision conflict",
			zap.Int64("requestId", in.RequestID),
			zap.String("actor", actor.ID),
			zap.String("decision", string(status)))
		return LeaveRequest{}, err
	}
	if err != nil {
		return LeaveRequest{}, err
	}
	zap.L().Info("leave request decided",
		zap.Int64("requestId", decided.ID),
		zap.String("status", string(decided.Status)),
		zap.String("actor", actor.ID))
	s.deliver(ctx, note)
	return decided, nil
}

func (s *Service) Pending(ctx context.Context, actor identity.Caller) ([]PendingItem, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.store.ListPending(ctx)
}

func (s *Service) History(ctx context.Context, employeeID string, actor identity.Caller) ([]LeaveRequest, error) {
	if !actor.CanView(employeeID) {
		return nil, ErrForbidden
	}
	return s.store.ListByEmployee(ctx, employeeID)
}

func (s *Service) Get(ctx context.Context, id int64) (LeaveRequest, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Balance(ctx context.Context, employeeID string) (BalanceSummary, error) {
	employee, err := s.identities.Get(ctx, employeeID)
	if err != nil {
		return BalanceSummary{}, err
	}
	monthStart, monthEnd := monthWindow(s.now().UTC())
	totals, err := s.store.Totals(ctx, employeeID, monthStart, monthEnd)
	if err != nil {
		return BalanceSummary{}, err
	}
	return BalanceSummary{
		EmployeeID:        employee.ID,
		Name:              employee.Name,
		Balance:           employee.LeaveBalance,
		PendingDays:       totals.PendingDays,
		ApprovedDays:      totals.ApprovedDays,
		Month:             monthStart.Format("2006-01"),
		MonthPendingDays:  totals.MonthPendingDays,
		MonthApprovedDays: totals.MonthApprovedDays,
	}, nil
}

func (s *Service) deliver(ctx context.Context, n notifications.Notification) {
	if s.delivery == nil || n.ID == 0 {
		return
	}
	s.delivery.Deliver(ctx, n)
}

func requestTarget(id int64) string {
	return "leave_request:" + strconv.FormatInt(id, 10)
}

func displayName(ident identity.Identity) string {
	if ident.Name != "" {
		return ident.Name
	}
	return ident.ID
}
