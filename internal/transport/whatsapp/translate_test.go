package whatsapp

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/wagatehq/wagate/internal/transport"
)

func TestDriverRegistered(t *testing.T) {
	t.Parallel()

	dialer, err := transport.Open(DriverName)
	if err != nil {
		t.Fatalf("expected driver to be registered: %v", err)
	}
	if dialer == nil {
		t.Fatal("expected a dialer, got nil")
	}
}

func TestTranslateGroupTextMessage(t *testing.T) {
	t.Parallel()

	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    types.NewJID("12036304", types.GroupServer),
				Sender:  types.NewJID("628123", types.DefaultUserServer),
				IsGroup: true,
			},
			ID:        "ABC123",
			PushName:  "Alice",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	}

	msg := translateMessage(evt)
	if msg == nil {
		t.Fatal("expected a translated message")
	}
	if msg.Key.ID != "ABC123" {
		t.Fatalf("unexpected id: %q", msg.Key.ID)
	}
	if msg.Key.RemoteJID != "12036304@g.us" {
		t.Fatalf("unexpected remote jid: %q", msg.Key.RemoteJID)
	}
	if msg.Key.Participant != "628123@s.whatsapp.net" {
		t.Fatalf("group messages must carry the participant, got %q", msg.Key.Participant)
	}
	if msg.Content.Conversation == nil || msg.Content.Conversation.Text != "hello" {
		t.Fatalf("unexpected content: %+v", msg.Content)
	}
	if msg.PushName != "Alice" {
		t.Fatalf("unexpected push name: %q", msg.PushName)
	}
}

func TestTranslateProtocolMessageIsDropped(t *testing.T) {
	t.Parallel()

	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat: types.NewJID("628123", types.DefaultUserServer),
			},
			ID: "NOOP",
		},
		Message: &waE2E.Message{},
	}
	if msg := translateMessage(evt); msg != nil {
		t.Fatalf("expected protocol noise to be dropped, got %+v", msg)
	}
}

func TestTranslateImageCarriesDownloadHandle(t *testing.T) {
	t.Parallel()

	content := translateContent(&waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Mimetype:   proto.String("image/jpeg"),
			Caption:    proto.String("look"),
			FileLength: proto.Uint64(2048),
			DirectPath: proto.String("/v/t62.7118-24/abc"),
			MediaKey:   []byte{1, 2, 3},
		},
	})
	if content == nil || content.Image == nil {
		t.Fatalf("expected image content, got %+v", content)
	}
	if content.Image.Mime != "image/jpeg" || content.Image.Caption != "look" {
		t.Fatalf("unexpected media fields: %+v", content.Image)
	}
	if content.Image.Size != 2048 {
		t.Fatalf("unexpected size: %d", content.Image.Size)
	}

	ref, err := decodeHandle(content.Image.Handle)
	if err != nil {
		t.Fatalf("decode handle: %v", err)
	}
	if ref.DirectPath != "/v/t62.7118-24/abc" {
		t.Fatalf("unexpected direct path: %q", ref.DirectPath)
	}
	if ref.GetMediaType() != whatsmeow.MediaImage {
		t.Fatalf("unexpected media type: %q", ref.MediaType)
	}
	if ref.GetFileLength() != 2048 {
		t.Fatalf("unexpected length: %d", ref.GetFileLength())
	}
}

func TestTranslateSelectionReplies(t *testing.T) {
	t.Parallel()

	buttons := translateContent(&waE2E.Message{
		ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
			SelectedButtonID: proto.String("yes"),
		},
	})
	if buttons == nil || buttons.ButtonsReply == nil || buttons.ButtonsReply.SelectedID != "yes" {
		t.Fatalf("unexpected buttons reply: %+v", buttons)
	}

	list := translateContent(&waE2E.Message{
		ListResponseMessage: &waE2E.ListResponseMessage{
			SingleSelectReply: &waE2E.ListResponseMessage_SingleSelectReply{
				SelectedRowID: proto.String("coffee"),
			},
		},
	})
	if list == nil || list.ListReply == nil || list.ListReply.SelectedID != "coffee" {
		t.Fatalf("unexpected list reply: %+v", list)
	}
}

func TestTranslateQuotedContext(t *testing.T) {
	t.Parallel()

	content := translateContent(&waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("and you?"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String("Q1"),
				Participant:   proto.String("628123@s.whatsapp.net"),
				QuotedMessage: &waE2E.Message{Conversation: proto.String("how are you")},
			},
		},
	})
	if content == nil || content.ExtendedText == nil {
		t.Fatalf("expected extended text, got %+v", content)
	}
	if content.Context == nil || content.Context.StanzaID != "Q1" {
		t.Fatalf("expected quote context, got %+v", content.Context)
	}
	if content.Context.Quoted == nil || content.Context.Quoted.Conversation.Text != "how are you" {
		t.Fatalf("unexpected quoted body: %+v", content.Context.Quoted)
	}
}

func TestStreamErrorReason(t *testing.T) {
	t.Parallel()

	if got := streamErrorReason("515"); got != transport.ReasonRestartRequired {
		t.Fatalf("code 515 must demand a restart, got %v", got)
	}
	if got := streamErrorReason("503"); got != transport.ReasonConnectionClosed {
		t.Fatalf("other codes close the connection, got %v", got)
	}
}

func TestEnvelopeMessageButtons(t *testing.T) {
	t.Parallel()

	msg, err := envelopeMessage(&transport.Envelope{
		Buttons: &transport.ButtonsEnvelope{
			Text:   "Pick one",
			Footer: "thanks",
			Buttons: []transport.ButtonOption{
				{ID: "yes", Label: "Yes"},
				{ID: "no", Label: "No"},
			},
		},
	})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	bm := msg.GetButtonsMessage()
	if bm.GetContentText() != "Pick one" || bm.GetFooterText() != "thanks" {
		t.Fatalf("unexpected body: %+v", bm)
	}
	if len(bm.GetButtons()) != 2 || bm.GetButtons()[0].GetButtonID() != "yes" {
		t.Fatalf("unexpected buttons: %+v", bm.GetButtons())
	}
}

func TestEnvelopeMessageList(t *testing.T) {
	t.Parallel()

	msg, err := envelopeMessage(&transport.Envelope{
		List: &transport.ListEnvelope{
			Text:       "Our menu",
			ButtonText: "Open",
			Sections: []transport.ListSection{
				{Title: "Drinks", Rows: []transport.ListRow{{ID: "coffee", Title: "Coffee"}}},
			},
		},
	})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	lm := msg.GetListMessage()
	if lm.GetDescription() != "Our menu" || lm.GetButtonText() != "Open" {
		t.Fatalf("unexpected list body: %+v", lm)
	}
	if len(lm.GetSections()) != 1 || lm.GetSections()[0].GetRows()[0].GetRowID() != "coffee" {
		t.Fatalf("unexpected sections: %+v", lm.GetSections())
	}
}

func TestEnvelopeMessageEmpty(t *testing.T) {
	t.Parallel()

	if _, err := envelopeMessage(&transport.Envelope{}); err == nil {
		t.Fatal("expected an error for an empty envelope")
	}
}
