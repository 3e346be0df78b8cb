package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

// chatFake scripts ChatModel replies. replyFn, when set, dispatches on the
// prompts; otherwise reply/err are returned verbatim. Safe for concurrent use.
type chatFake struct {
	mu      sync.Mutex
	reply   string
	err     error
	replyFn func(systemPrompt, userPrompt string) (string, error)
	calls   int
	prompts []string
}

func (f *chatFake) Complete(_ context.Context, systemPrompt, userPrompt string, _ float32, _ int) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	f.mu.Unlock()

	if f.replyFn != nil {
		return f.replyFn(systemPrompt, userPrompt)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *chatFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testGuardKeywords = []string{"crypto", "hack", "stolen", "wallet", "bitcoin", "blockchain"}

func TestGuardDisabledAdmitsWithoutLLM(t *testing.T) {
	chat := &chatFake{}
	uc := NewGuardUseCase(chat, false, testGuardKeywords)

	decision := uc.Assess(context.Background(), "what is the weather today")
	if !decision.Admitted {
		t.Fatalf("expected admission when filtering disabled")
	}
	if chat.callCount() != 0 {
		t.Fatalf("expected zero chat calls, got %d", chat.callCount())
	}
}

func TestGuardKeywordMatchSkipsLLM(t *testing.T) {
	chat := &chatFake{err: errors.New("must not be called")}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "Where did the STOLEN funds move first?")
	if !decision.Admitted {
		t.Fatalf("expected keyword admission, got %+v", decision)
	}
	if decision.Reason != reasonKeywordMatch {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
	if chat.callCount() != 0 {
		t.Fatalf("keyword match must not reach the LLM, got %d calls", chat.callCount())
	}
}

func TestGuardLLMAdmits(t *testing.T) {
	chat := &chatFake{reply: "The query concerns exchange withdrawals. RELEVANT: This query is about the crypto hack investigation"}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "which exchange accounts received the funds")
	if !decision.Admitted {
		t.Fatalf("expected admission, got %+v", decision)
	}
	if decision.Reason != "The query concerns exchange withdrawals." {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
	if chat.callCount() != 1 {
		t.Fatalf("expected one chat call, got %d", chat.callCount())
	}
}

func TestGuardLLMRejects(t *testing.T) {
	chat := &chatFake{reply: "This asks about cooking. NON-RELEVANT: This query is not about the crypto hack investigation"}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "best pasta recipe")
	if decision.Admitted {
		t.Fatalf("expected rejection, got %+v", decision)
	}
	if decision.Reason != "This asks about cooking." {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestGuardRejectsWhenNoSentinel(t *testing.T) {
	chat := &chatFake{reply: "I am not sure what to answer here."}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "tell me something")
	if decision.Admitted {
		t.Fatalf("expected rejection without a sentinel phrase")
	}
	if decision.Reason != reasonNoSentinel {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestGuardFailsOpenOnLLMError(t *testing.T) {
	chat := &chatFake{err: errors.New("provider down")}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "unrelated question")
	if !decision.Admitted {
		t.Fatalf("expected fail-open admission")
	}
	if decision.Reason != reasonGateFailure {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestGuardReasonTruncation(t *testing.T) {
	long := strings.Repeat("reason words ", 30)
	chat := &chatFake{reply: long + " NON-RELEVANT: This query is not about the crypto hack investigation"}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "something else")
	if decision.Admitted {
		t.Fatalf("expected rejection")
	}
	if len(decision.Reason) != maxReasonLength {
		t.Fatalf("expected reason length %d, got %d", maxReasonLength, len(decision.Reason))
	}
	if !strings.HasSuffix(decision.Reason, "...") {
		t.Fatalf("expected truncated reason, got %q", decision.Reason)
	}
}

func TestGuardReasonTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("Запрос касается курса валют, ", 20)
	chat := &chatFake{reply: long + " NON-RELEVANT: This query is not about the crypto hack investigation"}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "что-то другое")
	if decision.Admitted {
		t.Fatalf("expected rejection")
	}
	if !utf8.ValidString(decision.Reason) {
		t.Fatalf("truncated reason is not valid UTF-8: %q", decision.Reason)
	}
	if got := utf8.RuneCountInString(decision.Reason); got != maxReasonLength {
		t.Fatalf("expected reason of %d runes, got %d", maxReasonLength, got)
	}
	if !strings.HasSuffix(decision.Reason, "...") {
		t.Fatalf("expected truncated reason, got %q", decision.Reason)
	}
}

func TestGuardReasonCollapsesWhitespace(t *testing.T) {
	chat := &chatFake{reply: "Asks about\n\tprice   history.\nRELEVANT: This query is about the crypto hack investigation"}
	uc := NewGuardUseCase(chat, true, testGuardKeywords)

	decision := uc.Assess(context.Background(), "price history question")
	if !decision.Admitted {
		t.Fatalf("expected admission, got %+v", decision)
	}
	if decision.Reason != "Asks about price history." {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}
