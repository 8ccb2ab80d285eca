package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wagatehq/wagate/internal/session"
	"github.com/wagatehq/wagate/internal/transport"
)

// KeywordSeeder registers responder keywords produced by interactive sends,
// keyed by the sent message's id.
type KeywordSeeder interface {
	SaveButtonKeywords(ctx context.Context, messageID, conversation string, keywords map[string]string) error
	SaveListKeyword(ctx context.Context, keyword, conversation, response string) error
}

// MessageHandler exposes outbound sending on live sessions.
type MessageHandler struct {
	manager  *session.Manager
	keywords KeywordSeeder
	logger   *slog.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(log *slog.Logger, manager *session.Manager, keywords KeywordSeeder) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessageHandler{
		manager:  manager,
		keywords: keywords,
		logger:   log.With(slog.String("handler", "messages")),
	}
}

func (h *MessageHandler) Register(e *echo.Echo) {
	e.POST("/messages/send", h.SendText)
	e.POST("/messages/buttons", h.SendButtons)
	e.POST("/messages/lists", h.SendList)
}

type sendTextRequest struct {
	Session  string `json:"session" validate:"required"`
	To       string `json:"to" validate:"required"`
	Text     string `json:"text" validate:"required"`
	QuotedID string `json:"quoted_id"`
}

// SendText sends a text message through a live session, optionally quoting
// a previous message by ID.
func (h *MessageHandler) SendText(c echo.Context) error {
	var req sendTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	client, ok := h.manager.Client(req.Session)
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "session is not connected")
	}

	to := transport.NormalizeJID(req.To)
	ctx := c.Request().Context()
	var (
		receipt transport.SendReceipt
		err     error
	)
	if req.QuotedID != "" {
		quoted := &transport.MessageEvent{
			Key: transport.MessageKey{ID: req.QuotedID, RemoteJID: to},
		}
		receipt, err = client.Reply(ctx, to, req.Text, quoted)
	} else {
		receipt, err = client.SendText(ctx, to, req.Text)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":        receipt.ID,
		"timestamp": receipt.Timestamp.Unix(),
	})
}

type buttonSpec struct {
	ID       string `json:"id" validate:"required"`
	Label    string `json:"label" validate:"required"`
	Response string `json:"response"`
}

type sendButtonsRequest struct {
	Session string       `json:"session" validate:"required"`
	To      string       `json:"to" validate:"required"`
	Text    string       `json:"text" validate:"required"`
	Footer  string       `json:"footer"`
	Buttons []buttonSpec `json:"buttons" validate:"required,min=1,dive"`
}

// SendButtons sends a quick-reply button message. Buttons carrying a
// response are registered as single-use keywords under the sent message's
// id, so tapping one triggers the responder chain.
func (h *MessageHandler) SendButtons(c echo.Context) error {
	var req sendButtonsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	client, ok := h.manager.Client(req.Session)
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "session is not connected")
	}

	to := transport.NormalizeJID(req.To)
	envelope := &transport.Envelope{
		Buttons: &transport.ButtonsEnvelope{
			Text:   req.Text,
			Footer: req.Footer,
		},
	}
	for _, b := range req.Buttons {
		envelope.Buttons.Buttons = append(envelope.Buttons.Buttons, transport.ButtonOption{
			ID:    b.ID,
			Label: b.Label,
		})
	}

	ctx := c.Request().Context()
	receipt, err := client.Send(ctx, to, envelope)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	keywords := map[string]string{}
	for _, b := range req.Buttons {
		if b.Response != "" {
			keywords[b.ID] = b.Response
		}
	}
	if len(keywords) > 0 && h.keywords != nil {
		if err := h.keywords.SaveButtonKeywords(ctx, receipt.ID, to, keywords); err != nil {
			h.logger.Error("button keyword registration failed",
				slog.String("message_id", receipt.ID),
				slog.Any("error", err),
			)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":        receipt.ID,
		"timestamp": receipt.Timestamp.Unix(),
	})
}

type listRowSpec struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Response    string `json:"response"`
}

type listSectionSpec struct {
	Title string        `json:"title"`
	Rows  []listRowSpec `json:"rows" validate:"required,min=1,dive"`
}

type sendListRequest struct {
	Session    string            `json:"session" validate:"required"`
	To         string            `json:"to" validate:"required"`
	Title      string            `json:"title"`
	Text       string            `json:"text" validate:"required"`
	Footer     string            `json:"footer"`
	ButtonText string            `json:"button_text" validate:"required"`
	Sections   []listSectionSpec `json:"sections" validate:"required,min=1,dive"`
}

// SendList sends a single-select list message. Rows carrying a response are
// registered as multi-use keywords for the conversation.
func (h *MessageHandler) SendList(c echo.Context) error {
	var req sendListRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	client, ok := h.manager.Client(req.Session)
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "session is not connected")
	}

	to := transport.NormalizeJID(req.To)
	envelope := &transport.Envelope{
		List: &transport.ListEnvelope{
			Title:      req.Title,
			Text:       req.Text,
			Footer:     req.Footer,
			ButtonText: req.ButtonText,
		},
	}
	for _, s := range req.Sections {
		section := transport.ListSection{Title: s.Title}
		for _, r := range s.Rows {
			section.Rows = append(section.Rows, transport.ListRow{
				ID:          r.ID,
				Title:       r.Title,
				Description: r.Description,
			})
		}
		envelope.List.Sections = append(envelope.List.Sections, section)
	}

	ctx := c.Request().Context()
	receipt, err := client.Send(ctx, to, envelope)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if h.keywords != nil {
		for _, s := range req.Sections {
			for _, r := range s.Rows {
				if r.Response == "" {
					continue
				}
				if err := h.keywords.SaveListKeyword(ctx, r.ID, to, r.Response); err != nil {
					h.logger.Error("list keyword registration failed",
						slog.String("keyword", r.ID),
						slog.Any("error", err),
					)
				}
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":        receipt.ID,
		"timestamp": receipt.Timestamp.Unix(),
	})
}
