package responder

import (
	"context"
	"errors"
	"testing"

	"github.com/wagatehq/wagate/internal/message"
	"github.com/wagatehq/wagate/internal/transport"
)

type fakeButtons struct {
	lookupFunc func(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error)
	deleted    []string
}

func (f *fakeButtons) Lookup(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error) {
	if f.lookupFunc == nil {
		return ButtonMatch{}, false, nil
	}
	return f.lookupFunc(ctx, keyword, conversation)
}

func (f *fakeButtons) Delete(ctx context.Context, messageID, keyword string) error {
	f.deleted = append(f.deleted, messageID+"/"+keyword)
	return nil
}

type fakeLists struct {
	lookupFunc func(ctx context.Context, keyword, conversation string) (string, bool, error)
}

func (f *fakeLists) Lookup(ctx context.Context, keyword, conversation string) (string, bool, error) {
	if f.lookupFunc == nil {
		return "", false, nil
	}
	return f.lookupFunc(ctx, keyword, conversation)
}

type fakeAutos struct {
	lookupFunc func(ctx context.Context, botJID, body string) (string, bool, error)
}

func (f *fakeAutos) Lookup(ctx context.Context, botJID, body string) (string, bool, error) {
	if f.lookupFunc == nil {
		return "", false, nil
	}
	return f.lookupFunc(ctx, botJID, body)
}

type fakeReplier struct {
	replies []string
	err     error
}

func (f *fakeReplier) Reply(ctx context.Context, to, text string, quoted *transport.MessageEvent) (transport.SendReceipt, error) {
	f.replies = append(f.replies, text)
	return transport.SendReceipt{ID: "sent"}, f.err
}

func testMessage(body string) *message.Message {
	return &message.Message{
		Body:   body,
		From:   "628123@s.whatsapp.net",
		BotJID: "628999@s.whatsapp.net",
		Raw:    &transport.MessageEvent{Key: transport.MessageKey{ID: "RAW1"}},
	}
}

func TestChainButtonBeatsAutoReply(t *testing.T) {
	t.Parallel()

	buttons := &fakeButtons{
		lookupFunc: func(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error) {
			return ButtonMatch{MessageID: "M1", Keyword: keyword, Response: "button!"}, true, nil
		},
	}
	autos := &fakeAutos{
		lookupFunc: func(ctx context.Context, botJID, body string) (string, bool, error) {
			return "auto!", true, nil
		},
	}
	replier := &fakeReplier{}
	chain := NewChain(nil, buttons, &fakeLists{}, autos)
	chain.Respond(context.Background(), replier, testMessage("promo"))

	if len(replier.replies) != 1 || replier.replies[0] != "button!" {
		t.Fatalf("expected button response, got %v", replier.replies)
	}
	if len(buttons.deleted) != 1 || buttons.deleted[0] != "M1/promo" {
		t.Fatalf("expected single-use keyword deleted, got %v", buttons.deleted)
	}
}

func TestChainButtonDeletedEvenWhenSendFails(t *testing.T) {
	t.Parallel()

	buttons := &fakeButtons{
		lookupFunc: func(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error) {
			return ButtonMatch{MessageID: "M1", Keyword: keyword, Response: "button!"}, true, nil
		},
	}
	replier := &fakeReplier{err: errors.New("socket closed")}
	chain := NewChain(nil, buttons, &fakeLists{}, &fakeAutos{})
	chain.Respond(context.Background(), replier, testMessage("promo"))

	if len(buttons.deleted) != 1 {
		t.Fatalf("expected keyword consumed despite send failure")
	}
}

func TestChainListFallsThroughToAuto(t *testing.T) {
	t.Parallel()

	autos := &fakeAutos{
		lookupFunc: func(ctx context.Context, botJID, body string) (string, bool, error) {
			if botJID != "628999@s.whatsapp.net" {
				t.Fatalf("unexpected bot jid: %q", botJID)
			}
			return "auto!", true, nil
		},
	}
	replier := &fakeReplier{}
	chain := NewChain(nil, &fakeButtons{}, &fakeLists{}, autos)
	chain.Respond(context.Background(), replier, testMessage("hello"))

	if len(replier.replies) != 1 || replier.replies[0] != "auto!" {
		t.Fatalf("expected auto response, got %v", replier.replies)
	}
}

func TestChainStaticFallbacks(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	chain := NewChain(nil, &fakeButtons{}, &fakeLists{}, &fakeAutos{})

	chain.Respond(context.Background(), replier, testMessage("Bot"))
	chain.Respond(context.Background(), replier, testMessage("Test"))
	chain.Respond(context.Background(), replier, testMessage("bot"))

	if len(replier.replies) != 2 {
		t.Fatalf("static match is case sensitive, got %v", replier.replies)
	}
	if replier.replies[0] != "Yes Sir.." || replier.replies[1] != "Okee" {
		t.Fatalf("unexpected static responses: %v", replier.replies)
	}
}

func TestChainSkipsEmptyBody(t *testing.T) {
	t.Parallel()

	buttons := &fakeButtons{
		lookupFunc: func(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error) {
			t.Fatalf("store must not be consulted for empty body")
			return ButtonMatch{}, false, nil
		},
	}
	replier := &fakeReplier{}
	chain := NewChain(nil, buttons, &fakeLists{}, &fakeAutos{})
	chain.Respond(context.Background(), replier, testMessage(""))

	if len(replier.replies) != 0 {
		t.Fatalf("expected no reply for empty body")
	}
}

func TestChainStoreErrorFallsThrough(t *testing.T) {
	t.Parallel()

	buttons := &fakeButtons{
		lookupFunc: func(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error) {
			return ButtonMatch{}, false, errors.New("db down")
		},
	}
	lists := &fakeLists{
		lookupFunc: func(ctx context.Context, keyword, conversation string) (string, bool, error) {
			return "list!", true, nil
		},
	}
	replier := &fakeReplier{}
	chain := NewChain(nil, buttons, lists, &fakeAutos{})
	chain.Respond(context.Background(), replier, testMessage("menu"))

	if len(replier.replies) != 1 || replier.replies[0] != "list!" {
		t.Fatalf("store error must not stop the chain, got %v", replier.replies)
	}
}
