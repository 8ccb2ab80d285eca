package whatsapp

import (
	"encoding/json"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/wagatehq/wagate/internal/transport"
)

func closeUpdate(reason transport.DisconnectReason, raw string) transport.ConnectionUpdate {
	return transport.ConnectionUpdate{
		State:     transport.ConnectionClose,
		Reason:    reason,
		RawReason: raw,
	}
}

// streamErrorReason maps stream error codes. 515 is the server demanding a
// stream restart after pairing.
func streamErrorReason(code string) transport.DisconnectReason {
	if code == "515" {
		return transport.ReasonRestartRequired
	}
	return transport.ReasonConnectionClosed
}

func connectFailureReason(reason events.ConnectFailureReason) transport.DisconnectReason {
	if reason == events.ConnectFailureLoggedOut {
		return transport.ReasonLoggedOut
	}
	return transport.ReasonUnknown
}

// mediaRef is the opaque download handle stored on MediaContent. It
// implements whatsmeow's downloadable interface so Download can feed it
// straight back.
type mediaRef struct {
	URL           string `json:"url,omitempty"`
	DirectPath    string `json:"direct_path,omitempty"`
	MediaKey      []byte `json:"media_key,omitempty"`
	FileSHA256    []byte `json:"file_sha256,omitempty"`
	FileEncSHA256 []byte `json:"file_enc_sha256,omitempty"`
	FileLength    uint64 `json:"file_length,omitempty"`
	MediaType     string `json:"media_type,omitempty"`
}

func (r mediaRef) GetURL() string           { return r.URL }
func (r mediaRef) GetDirectPath() string    { return r.DirectPath }
func (r mediaRef) GetMediaKey() []byte      { return r.MediaKey }
func (r mediaRef) GetFileSHA256() []byte    { return r.FileSHA256 }
func (r mediaRef) GetFileEncSHA256() []byte { return r.FileEncSHA256 }
func (r mediaRef) GetFileLength() uint64    { return r.FileLength }
func (r mediaRef) GetMediaType() whatsmeow.MediaType {
	return whatsmeow.MediaType(r.MediaType)
}

func encodeHandle(ref mediaRef) string {
	raw, _ := json.Marshal(ref)
	return string(raw)
}

func decodeHandle(handle string) (mediaRef, error) {
	var ref mediaRef
	if err := json.Unmarshal([]byte(handle), &ref); err != nil {
		return mediaRef{}, fmt.Errorf("whatsapp: decode media handle: %w", err)
	}
	return ref, nil
}

func translateMessage(evt *events.Message) *transport.MessageEvent {
	content := translateContent(evt.Message)
	if content == nil {
		return nil
	}
	key := transport.MessageKey{
		ID:        evt.Info.ID,
		RemoteJID: evt.Info.Chat.String(),
		FromMe:    evt.Info.IsFromMe,
	}
	if evt.Info.IsGroup {
		key.Participant = evt.Info.Sender.String()
	}
	if alt := evt.Info.SenderAlt; !alt.IsEmpty() && alt.Server == types.DefaultUserServer {
		key.SenderPN = alt.String()
	}
	return &transport.MessageEvent{
		Key:       key,
		Content:   content,
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
	}
}

// downloadableProto is the getter surface shared by the waE2E media
// message types.
type downloadableProto interface {
	GetURL() string
	GetDirectPath() string
	GetMediaKey() []byte
	GetFileSHA256() []byte
	GetFileEncSHA256() []byte
	GetFileLength() uint64
	GetMimetype() string
}

func mediaContent(m downloadableProto, caption string, mediaType whatsmeow.MediaType) *transport.MediaContent {
	ref := mediaRef{
		URL:           m.GetURL(),
		DirectPath:    m.GetDirectPath(),
		MediaKey:      m.GetMediaKey(),
		FileSHA256:    m.GetFileSHA256(),
		FileEncSHA256: m.GetFileEncSHA256(),
		FileLength:    m.GetFileLength(),
		MediaType:     string(mediaType),
	}
	return &transport.MediaContent{
		Mime:    m.GetMimetype(),
		Caption: caption,
		Size:    int64(m.GetFileLength()),
		Handle:  encodeHandle(ref),
	}
}

// translateContent maps a raw protocol message onto the content union.
// Message kinds outside the union (reactions, protocol messages, receipts)
// translate to nil and are dropped.
func translateContent(msg *waE2E.Message) *transport.Content {
	switch {
	case msg == nil:
		return nil
	case msg.GetEphemeralMessage().GetMessage() != nil:
		inner := translateContent(msg.GetEphemeralMessage().GetMessage())
		if inner == nil {
			return nil
		}
		return &transport.Content{Ephemeral: inner}
	case msg.GetViewOnceMessage().GetMessage() != nil:
		inner := translateContent(msg.GetViewOnceMessage().GetMessage())
		if inner == nil {
			return nil
		}
		return &transport.Content{ViewOnce: inner}
	case msg.GetViewOnceMessageV2().GetMessage() != nil:
		inner := translateContent(msg.GetViewOnceMessageV2().GetMessage())
		if inner == nil {
			return nil
		}
		return &transport.Content{ViewOnce: inner}
	case msg.GetConversation() != "":
		return &transport.Content{
			Conversation: &transport.TextContent{Text: msg.GetConversation()},
		}
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		return &transport.Content{
			ExtendedText: &transport.TextContent{Text: ext.GetText()},
			Context:      translateContext(ext.GetContextInfo()),
		}
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return &transport.Content{
			Image:   mediaContent(img, img.GetCaption(), whatsmeow.MediaImage),
			Context: translateContext(img.GetContextInfo()),
		}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return &transport.Content{
			Video:   mediaContent(vid, vid.GetCaption(), whatsmeow.MediaVideo),
			Context: translateContext(vid.GetContextInfo()),
		}
	case msg.GetAudioMessage() != nil:
		aud := msg.GetAudioMessage()
		return &transport.Content{
			Audio:   mediaContent(aud, "", whatsmeow.MediaAudio),
			Context: translateContext(aud.GetContextInfo()),
		}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return &transport.Content{
			Document: mediaContent(doc, doc.GetCaption(), whatsmeow.MediaDocument),
			Context:  translateContext(doc.GetContextInfo()),
		}
	case msg.GetStickerMessage() != nil:
		stk := msg.GetStickerMessage()
		return &transport.Content{
			Sticker: mediaContent(stk, "", whatsmeow.MediaImage),
			Context: translateContext(stk.GetContextInfo()),
		}
	case msg.GetContactMessage() != nil:
		contact := msg.GetContactMessage()
		return &transport.Content{
			Contact: &transport.ContactContent{
				DisplayName: contact.GetDisplayName(),
				VCard:       contact.GetVcard(),
			},
			Context: translateContext(contact.GetContextInfo()),
		}
	case msg.GetLocationMessage() != nil:
		loc := msg.GetLocationMessage()
		return &transport.Content{
			Location: &transport.LocationContent{
				Latitude:  loc.GetDegreesLatitude(),
				Longitude: loc.GetDegreesLongitude(),
				Name:      loc.GetName(),
			},
			Context: translateContext(loc.GetContextInfo()),
		}
	case msg.GetButtonsResponseMessage() != nil:
		reply := msg.GetButtonsResponseMessage()
		return &transport.Content{
			ButtonsReply: &transport.SelectionContent{SelectedID: reply.GetSelectedButtonID()},
			Context:      translateContext(reply.GetContextInfo()),
		}
	case msg.GetListResponseMessage() != nil:
		reply := msg.GetListResponseMessage()
		return &transport.Content{
			ListReply: &transport.SelectionContent{SelectedID: reply.GetSingleSelectReply().GetSelectedRowID()},
			Context:   translateContext(reply.GetContextInfo()),
		}
	case msg.GetTemplateButtonReplyMessage() != nil:
		reply := msg.GetTemplateButtonReplyMessage()
		return &transport.Content{
			TemplateReply: &transport.SelectionContent{SelectedID: reply.GetSelectedID()},
			Context:       translateContext(reply.GetContextInfo()),
		}
	default:
		return nil
	}
}

func translateContext(info *waE2E.ContextInfo) *transport.ContextInfo {
	if info == nil {
		return nil
	}
	out := &transport.ContextInfo{
		StanzaID:      info.GetStanzaID(),
		Participant:   info.GetParticipant(),
		Quoted:        translateContent(info.GetQuotedMessage()),
		MentionedJIDs: info.GetMentionedJID(),
	}
	if out.StanzaID == "" && out.Participant == "" && out.Quoted == nil && len(out.MentionedJIDs) == 0 {
		return nil
	}
	return out
}

// quotedProto reconstructs a minimal quoted body for reply context. Only the
// text is carried; WhatsApp renders the quote from it.
func quotedProto(content *transport.Content) *waE2E.Message {
	text := ""
	switch {
	case content == nil:
	case content.Conversation != nil:
		text = content.Conversation.Text
	case content.ExtendedText != nil:
		text = content.ExtendedText.Text
	case content.Media() != nil:
		text = content.Media().Caption
	}
	return &waE2E.Message{Conversation: proto.String(text)}
}

func envelopeMessage(envelope *transport.Envelope) (*waE2E.Message, error) {
	switch {
	case envelope == nil:
		return nil, fmt.Errorf("whatsapp: empty envelope")
	case envelope.Text != nil:
		return &waE2E.Message{Conversation: proto.String(envelope.Text.Text)}, nil
	case envelope.Location != nil:
		return &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
			DegreesLatitude:  proto.Float64(envelope.Location.Latitude),
			DegreesLongitude: proto.Float64(envelope.Location.Longitude),
			Name:             proto.String(envelope.Location.Name),
		}}, nil
	case envelope.Contact != nil:
		return &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
			DisplayName: proto.String(envelope.Contact.DisplayName),
			Vcard:       proto.String(envelope.Contact.VCard),
		}}, nil
	case envelope.Buttons != nil:
		buttons := make([]*waE2E.ButtonsMessage_Button, 0, len(envelope.Buttons.Buttons))
		for _, b := range envelope.Buttons.Buttons {
			buttons = append(buttons, &waE2E.ButtonsMessage_Button{
				ButtonID: proto.String(b.ID),
				ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{
					DisplayText: proto.String(b.Label),
				},
				Type: waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
			})
		}
		return &waE2E.Message{ButtonsMessage: &waE2E.ButtonsMessage{
			ContentText: proto.String(envelope.Buttons.Text),
			FooterText:  proto.String(envelope.Buttons.Footer),
			HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
			Buttons:     buttons,
		}}, nil
	case envelope.List != nil:
		sections := make([]*waE2E.ListMessage_Section, 0, len(envelope.List.Sections))
		for _, s := range envelope.List.Sections {
			rows := make([]*waE2E.ListMessage_Row, 0, len(s.Rows))
			for _, r := range s.Rows {
				rows = append(rows, &waE2E.ListMessage_Row{
					RowID:       proto.String(r.ID),
					Title:       proto.String(r.Title),
					Description: proto.String(r.Description),
				})
			}
			sections = append(sections, &waE2E.ListMessage_Section{
				Title: proto.String(s.Title),
				Rows:  rows,
			})
		}
		return &waE2E.Message{ListMessage: &waE2E.ListMessage{
			Title:       proto.String(envelope.List.Title),
			Description: proto.String(envelope.List.Text),
			FooterText:  proto.String(envelope.List.Footer),
			ButtonText:  proto.String(envelope.List.ButtonText),
			ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
			Sections:    sections,
		}}, nil
	default:
		return nil, fmt.Errorf("whatsapp: empty envelope")
	}
}
