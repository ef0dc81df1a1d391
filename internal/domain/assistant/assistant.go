package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/intent"
	"hrassist/internal/domain/leave"
	"hrassist/internal/domain/query"
	"hrassist/internal/domain/retrieval"
	"hrassist/internal/platform/llm"
)

const (
	UnavailableMessage = "The assistant is temporarily unavailable. Please try again shortly."
	applyUsage         = "Please use: apply leave from YYYY-MM-DD to YYYY-MM-DD for <reason> (DD-MM-YYYY also works)."
)

// Reply is the uniform chat envelope.
type Reply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Intent  string `json:"intent,omitempty"`
}

type Router interface {
	Route(ctx context.Context, utterance string, caller identity.Caller) (intent.Intent, error)
}

type DataEngine interface {
	Answer(ctx context.Context, in intent.Intent, caller identity.Caller) (query.Result, error)
}

type PolicyEngine interface {
	Ask(ctx context.Context, question string) (retrieval.GroundedAnswer, error)
}

type Workflow interface {
	Apply(ctx context.Context, in leave.ApplyInput, actor identity.Caller) (leave.LeaveRequest, error)
	Decide(ctx context.Context, in leave.DecideInput, actor identity.Caller) (leave.LeaveRequest, error)
	Pending(ctx context.Context, actor identity.Caller) ([]leave.PendingItem, error)
}

type Assistant struct {
	router Router
	data   DataEngine
	policy PolicyEngine
	leave  Workflow
	gen    llm.Generator
}

func New(router Router, data DataEngine, policy PolicyEngine, workflow Workflow, gen llm.Generator) *Assistant {
	return &Assistant{router: router, data: data, policy: policy, leave: workflow, gen: gen}
}

// Handle runs one chat turn. User-correctable problems come back as Success=false replies;
// only unexpected faults are returned as errors.
func (a *Assistant) Handle(ctx context.Context, text string, caller identity.Caller) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return fail("Please type a question or request."), nil
	}

	in, err := a.router.Route(ctx, text, caller)
	if err != nil {
		return a.explain("", err)
	}

	reply, err := a.dispatch(ctx, in, caller)
	if err != nil {
		return a.explain(in.Kind(), err)
	}
	reply.Intent = string(in.Kind())
	return reply, nil
}

func (a *Assistant) dispatch(ctx context.Context, in intent.Intent, caller identity.Caller) (Reply, error) {
	switch v := in.(type) {
	case intent.ApplyLeave:
		return a.apply(ctx, v, caller)
	case intent.DecideLeave:
		return a.decide(ctx, v, caller)
	case intent.PendingApprovals:
		return a.pending(ctx, caller)
	case intent.BalanceQuery, intent.LeaveStatus:
		res, err := a.data.Answer(ctx, in, caller)
		if err != nil {
			return Reply{}, err
		}
		return ok(res.Message), nil
	case intent.OpenQuery:
		switch v.Target {
		case intent.TargetData:
			res, err := a.data.Answer(ctx, v, caller)
			if err != nil {
				return Reply{}, err
			}
			return ok(res.Message), nil
		case intent.TargetBoth:
			return a.fuse(ctx, v, caller)
		default:
			ans, err := a.policy.Ask(ctx, v.Text)
			if err != nil {
				return Reply{}, err
			}
			return Reply{Success: ans.Found, Message: ans.Answer}, nil
		}
	}
	return Reply{}, fmt.Errorf("unhandled intent %s", in.Kind())
}

func (a *Assistant) apply(ctx context.Context, v intent.ApplyLeave, caller identity.Caller) (Reply, error) {
	reason := v.Reason
	if reason == "" {
		reason = intent.DefaultReason
	}
	req, err := a.leave.Apply(ctx, leave.ApplyInput{
		EmployeeID: caller.ID,
		Start:      v.Start,
		End:        v.End,
		Reason:     reason,
	}, caller)
	if err != nil {
		return Reply{}, err
	}
	return ok(fmt.Sprintf("Leave submitted (id=%d) for %d day(s) from %s to %s and pending approval.",
		req.ID, req.Days, leave.FormatDate(req.StartDate), leave.FormatDate(req.EndDate))), nil
}

func (a *Assistant) decide(ctx context.Context, v intent.DecideLeave, caller identity.Caller) (Reply, error) {
	req, err := a.leave.Decide(ctx, leave.DecideInput{RequestID: v.RequestID, Decision: v.Decision}, caller)
	if err != nil {
		return Reply{}, err
	}
	return ok(fmt.Sprintf("Leave request #%d for employee %s has been %s.",
		req.ID, req.EmployeeID, strings.ToLower(string(req.Status)))), nil
}

func (a *Assistant) pending(ctx context.Context, caller identity.Caller) (Reply, error) {
	items, err := a.leave.Pending(ctx, caller)
	if err != nil {
		return Reply{}, err
	}
	if len(items) == 0 {
		return ok("There are no pending leave requests."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pending leave requests (%d):", len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.EmployeeID
		}
		fmt.Fprintf(&b, "\n• #%d %s (%s", it.ID, name, it.EmployeeID)
		if it.Department != "" {
			fmt.Fprintf(&b, ", %s", it.Department)
		}
		fmt.Fprintf(&b, "): %s to %s, %d day(s)", leave.FormatDate(it.StartDate), leave.FormatDate(it.EndDate), it.Days)
		if it.Reason != "" {
			fmt.Fprintf(&b, ", %s", it.Reason)
		}
	}
	return ok(b.String()), nil
}

const fusionSystem = `You are an HR assistant. Combine the employee data and the policy bullets below into one short answer.
Use the specific employee values where relevant, reference the applicable policy and give actionable guidance.
Do not invent values that are not present.`

// fuse answers questions that need both employee records and policy text. Either half may be
// missing; the answer is built from whatever was found.
func (a *Assistant) fuse(ctx context.Context, v intent.OpenQuery, caller identity.Caller) (Reply, error) {
	var data, policy string

	res, err := a.data.Answer(ctx, intent.OpenQuery{Text: v.Text, Target: intent.TargetData}, caller)
	switch {
	case err == nil:
		data = res.Message
	case errors.Is(err, query.ErrScopeViolation), errors.Is(err, llm.ErrProviderUnavailable):
		return Reply{}, err
	default:
		zap.L().Warn("fusion data half failed", zap.Error(err))
	}

	ans, err := a.policy.Ask(ctx, v.Text)
	if err != nil {
		return Reply{}, err
	}
	if ans.Found {
		policy = ans.Answer
	}

	if data == "" && policy == "" {
		return fail(retrieval.NotFoundAnswer), nil
	}
	if data == "" {
		return ok(policy), nil
	}
	if policy == "" {
		return ok(data), nil
	}
	if a.gen == nil {
		return ok(data + "\n\n" + policy), nil
	}

	out, err := a.gen.Complete(ctx, llm.Prompt{
		System:    fusionSystem,
		User:      fmt.Sprintf("Question: %s\n\nEmployee data:\n%s\n\nPolicy:\n%s", v.Text, data, policy),
		MaxTokens: 500,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		return ok(data + "\n\n" + policy), nil
	}
	return ok(strings.TrimSpace(out)), nil
}

// explain turns domain errors into user-facing replies.
func (a *Assistant) explain(kind intent.Kind, err error) (Reply, error) {
	var slot *intent.SlotParseError
	switch {
	case errors.As(err, &slot):
		return fail(fmt.Sprintf("I could not understand the %s in your request. %s", strings.ReplaceAll(slot.Field, "_", " "), applyUsage)), nil
	case errors.Is(err, llm.ErrProviderUnavailable):
		zap.L().Warn("provider unavailable during chat turn", zap.String("intent", string(kind)), zap.Error(err))
		return fail(UnavailableMessage), nil
	case errors.Is(err, query.ErrScopeViolation):
		return fail("You can only view your own records."), nil
	case errors.Is(err, query.ErrInvalidPlan):
		return fail("I could not turn that into a valid lookup. Please rephrase the question."), nil
	case errors.Is(err, leave.ErrForbidden):
		if kind == intent.KindDecideLeave || kind == intent.KindPendingApprovals {
			return fail("Only HR administrators can review leave requests."), nil
		}
		return fail("You can only apply for your own leave."), nil
	case errors.Is(err, leave.ErrWorkflowConflict):
		return fail("That leave request has already been decided."), nil
	case errors.Is(err, leave.ErrInsufficientBalance):
		return fail("The employee does not have enough leave balance to approve that request."), nil
	case errors.Is(err, leave.ErrNotFound):
		return fail("No leave request with that id exists."), nil
	case errors.Is(err, leave.ErrInvalidDateRange):
		return fail("The end date must be on or after the start date."), nil
	case errors.Is(err, leave.ErrInvalidDays), errors.Is(err, leave.ErrInvalidDecision), errors.Is(err, leave.ErrReasonTooLong):
		return fail(capitalize(err.Error()) + "."), nil
	case errors.Is(err, identity.ErrNotFound):
		return fail("Your employee record was not found. Please contact HR."), nil
	case errors.Is(err, retrieval.ErrEmptyQuestion):
		return fail("Please type a question or request."), nil
	}
	return Reply{}, err
}

func ok(msg string) Reply {
	return Reply{Success: true, Message: msg}
}

func fail(msg string) Reply {
	return Reply{Success: false, Message: msg}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
