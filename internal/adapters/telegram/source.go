package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Updater es la parte del Client que usa Source (mockeable en tests).
type Updater interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
}

// Source implementa ports.MessageSource sobre getUpdates.
// Sólo entrega mensajes de los chats (o bots remitentes) de la lista; lista vacía = todos.
type Source struct {
	updater Updater
	allowed map[string]bool
	offset  int64
}

// NewSource crea la source. chats acepta "@username", "username" o el chat id numérico.
func NewSource(updater Updater, chats []string) *Source {
	allowed := make(map[string]bool, len(chats))
	for _, c := range chats {
		c = normalizeHandle(c)
		if c != "" {
			allowed[c] = true
		}
	}
	return &Source{updater: updater, allowed: allowed}
}

// Name identifica la source en logs y métricas.
func (s *Source) Name() string { return "telegram" }

// Poll hace un long-poll y devuelve los mensajes de texto aceptados.
// El offset avanza aunque el mensaje se filtre: Telegram no lo vuelve a entregar.
func (s *Source) Poll(ctx context.Context) ([]domain.Message, error) {
	updates, err := s.updater.GetUpdates(ctx, s.offset)
	if err != nil {
		return nil, err
	}

	var out []domain.Message
	for _, u := range updates {
		if u.UpdateID >= s.offset {
			s.offset = u.UpdateID + 1
		}
		m := u.Post()
		if m == nil || m.Body() == "" {
			continue
		}
		label, ok := s.accept(*m)
		if !ok {
			slog.Debug("telegram message filtered", "chat", m.Chat.ID, "username", m.Chat.Username)
			continue
		}
		out = append(out, domain.Message{
			ID:         strconv.FormatInt(m.Chat.ID, 10) + ":" + strconv.FormatInt(m.MessageID, 10),
			Source:     label,
			Text:       m.Body(),
			ReceivedAt: time.Unix(m.Date, 0).UTC(),
		})
	}
	return out, nil
}

// accept devuelve la etiqueta de la source si el mensaje pasa el filtro.
func (s *Source) accept(m Message) (string, bool) {
	candidates := []string{}
	if m.From != nil && m.From.Username != "" {
		candidates = append(candidates, "@"+strings.ToLower(m.From.Username))
	}
	if m.Chat.Username != "" {
		candidates = append(candidates, "@"+strings.ToLower(m.Chat.Username))
	}
	candidates = append(candidates, strconv.FormatInt(m.Chat.ID, 10))

	if len(s.allowed) == 0 {
		return chatLabel(m), true
	}
	for _, c := range candidates {
		if s.allowed[c] {
			return displayHandle(m, c), true
		}
	}
	return "", false
}

// normalizeHandle pasa "ETHGPT60s_bot", "@ETHGPT60s_bot" y "-100123" a la forma de comparación.
func normalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if _, err := strconv.ParseInt(h, 10, 64); err == nil {
		return h
	}
	return "@" + strings.ToLower(strings.TrimPrefix(h, "@"))
}

// displayHandle recupera las mayúsculas originales del handle que coincidió.
func displayHandle(m Message, matched string) string {
	if m.From != nil && "@"+strings.ToLower(m.From.Username) == matched {
		return "@" + m.From.Username
	}
	if "@"+strings.ToLower(m.Chat.Username) == matched {
		return "@" + m.Chat.Username
	}
	return matched
}

func chatLabel(m Message) string {
	switch {
	case m.From != nil && m.From.IsBot && m.From.Username != "":
		return "@" + m.From.Username
	case m.Chat.Username != "":
		return "@" + m.Chat.Username
	case m.Chat.Title != "":
		return m.Chat.Title
	default:
		return strconv.FormatInt(m.Chat.ID, 10)
	}
}
