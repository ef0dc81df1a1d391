package intent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/leave"
	"hrassist/internal/platform/llm"
	"hrassist/internal/platform/metrics"
)

const DefaultReason = "Requested via chat"

const datePattern = `(\d{4}-\d{2}-\d{2}|\d{2}-\d{2}-\d{4})`

var (
	applyTrigger = regexp.MustCompile(`(?i)\bapply\s+(?:for\s+)?(?:a\s+)?leaves?\b`)
	applyStrict  = regexp.MustCompile(`(?i)\bapply\s+(?:for\s+)?(?:a\s+)?leaves?\s+(?:from\s+)?` + datePattern +
		`\s*(?:to|-|until|till)\s*` + datePattern + `(?:\s+(?:for|because|reason:?)\s+(.+))?`)
	applyLoose = regexp.MustCompile(`(?i)\bapply\s+(?:for\s+)?(?:a\s+)?leaves?\s+(?:from\s+)?(\S+)(?:\s+(?:to|until|till|-)\s+(\S+))?`)

	decideRe   = regexp.MustCompile(`(?i)\b(approve|reject)\s+(?:the\s+)?(?:leave\s+)?(?:request\s+)?(?:id\s+)?#?(\d+)\b`)
	pendingRe  = regexp.MustCompile(`(?i)\bpending\s+(?:leave\s+)?(?:leaves?|approvals?|requests?)\b`)
	balanceRe  = regexp.MustCompile(`(?i)(leave\s+balance|how\s+many\s+leaves?\b.*\bleft|remaining\s+leaves?|leaves?\s+left|leaves?\s+remaining)`)
	subjectRe  = regexp.MustCompile(`(?i)\b(?:of|for)\s+(?:employee\s+)?(?:id\s+)?#?(\d+)\b`)
	questionRe = regexp.MustCompile(`(?i)^\s*(how|what|when|where|why|can|could|who|is|are|do|does|should)\b`)
	statusRe   = regexp.MustCompile(`(?i)\b(my\s+leave\s+requests?|leave\s+status|leave\s+history|status\s+of\s+my\s+leaves?)\b`)
)

const classifierSystem = `You route questions for an HR assistant. Reply with exactly one word:
DATA when the question is about employee records (salary, department, manager, role, leave balance or leave requests),
POLICY when it is about company policy documents,
BOTH when answering needs employee records and policy together.`

type Router struct {
	gen     llm.Generator
	metrics *metrics.Collector
}

func NewRouter(gen llm.Generator, m *metrics.Collector) *Router {
	return &Router{gen: gen, metrics: m}
}

// Route tries the deterministic patterns first and asks the model only for what is left.
func (r *Router) Route(ctx context.Context, utterance string, caller identity.Caller) (Intent, error) {
	text := strings.TrimSpace(utterance)
	in, err := Extract(text, caller)
	if err != nil {
		return nil, err
	}
	if in == nil {
		target, err := r.classify(ctx, text)
		if err != nil {
			return nil, err
		}
		in = OpenQuery{Text: text, Target: target}
	}
	r.metrics.Intent(string(in.Kind()))
	return in, nil
}

// Extract applies the rule-based patterns. It returns nil, nil when nothing matches.
func Extract(text string, caller identity.Caller) (Intent, error) {
	if applyTrigger.MatchString(text) && !isProcedureQuestion(text) {
		return extractApply(text)
	}
	if m := decideRe.FindStringSubmatch(text); m != nil {
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, &SlotParseError{Field: "request_id", Value: m[2]}
		}
		decision := string(leave.StatusApproved)
		if strings.EqualFold(m[1], "reject") {
			decision = string(leave.StatusRejected)
		}
		return DecideLeave{RequestID: id, Decision: decision}, nil
	}
	if pendingRe.MatchString(text) {
		return PendingApprovals{}, nil
	}
	if balanceRe.MatchString(text) {
		subject := ""
		if m := subjectRe.FindStringSubmatch(text); m != nil {
			subject = m[1]
		} else if !caller.IsAdmin() {
			subject = caller.ID
		}
		return BalanceQuery{Subject: subject}, nil
	}
	if statusRe.MatchString(text) {
		return LeaveStatus{}, nil
	}
	return nil, nil
}

func extractApply(text string) (Intent, error) {
	m := applyStrict.FindStringSubmatch(text)
	if m == nil {
		return nil, looseSlotError(text)
	}
	start, err := leave.ParseDate(m[1])
	if err != nil {
		return nil, &SlotParseError{Field: "start_date", Value: m[1]}
	}
	end, err := leave.ParseDate(m[2])
	if err != nil {
		return nil, &SlotParseError{Field: "end_date", Value: m[2]}
	}
	reason := strings.TrimRight(strings.TrimSpace(m[3]), ".!")
	if reason == "" {
		reason = DefaultReason
	}
	return ApplyLeave{Start: start, End: end, Reason: reason}, nil
}

// isProcedureQuestion catches "how do I apply for leave?" style questions that carry no dates.
func isProcedureQuestion(text string) bool {
	return questionRe.MatchString(text) && !strings.ContainsAny(text, "0123456789")
}

func looseSlotError(text string) error {
	m := applyLoose.FindStringSubmatch(text)
	if m == nil {
		return &SlotParseError{Field: "start_date"}
	}
	if _, err := leave.ParseDate(m[1]); err != nil {
		return &SlotParseError{Field: "start_date", Value: m[1]}
	}
	return &SlotParseError{Field: "end_date", Value: m[2]}
}

func (r *Router) classify(ctx context.Context, text string) (Target, error) {
	if r.gen == nil {
		return TargetPolicy, nil
	}
	out, err := r.gen.Complete(ctx, llm.Prompt{System: classifierSystem, User: text, MaxTokens: 4})
	if err != nil {
		if !errors.Is(err, llm.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, err)
		}
		return "", err
	}
	target := ParseTarget(out)
	zap.L().Debug("intent classified", zap.String("target", string(target)))
	return target, nil
}

// ParseTarget reads a classifier reply. Anything unrecognized routes to POLICY, which never reads employee data.
func ParseTarget(reply string) Target {
	upper := strings.ToUpper(reply)
	switch {
	case strings.Contains(upper, string(TargetBoth)):
		return TargetBoth
	case strings.Contains(upper, string(TargetData)):
		return TargetData
	default:
		return TargetPolicy
	}
}
