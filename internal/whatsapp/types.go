package whatsapp

import (
	"strings"
	"unicode/utf8"
)

// MessageType classifies a normalized inbound message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeInteractive MessageType = "interactive"
	TypeUnsupported MessageType = "unsupported"
)

// InboundMessage is the normalized form of one inbound webhook message.
type InboundMessage struct {
	From      string
	MessageID string
	Timestamp string
	Type      MessageType
	// Content carries the text body for text messages, or the reply id for
	// interactive button/list replies.
	Content string
	// Title is the human-readable label of an interactive reply, empty for text.
	Title string
}

// SendResult is the uniform outcome of any outbound send attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Button is one reply button, at most three per message.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row inside a list section.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a section title, at most ten rows per section.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// TemplateParam is a positional body parameter for a template send.
type TemplateParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// webhookPayload mirrors the Cloud API webhook envelope, trimmed to the
// fields this service consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// NormalizePhone strips spaces, dashes and a leading plus so the same number
// always maps to the same conversation row.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m webhookMessage) normalize() InboundMessage {
	msg := InboundMessage{
		From:      NormalizePhone(m.From),
		MessageID: m.ID,
		Timestamp: m.Timestamp,
	}
	switch m.Type {
	case "text":
		msg.Type = TypeText
		if m.Text != nil {
			msg.Content = m.Text.Body
		}
	case "interactive":
		msg.Type = TypeInteractive
		if m.Interactive != nil {
			if m.Interactive.ButtonReply != nil {
				msg.Content = m.Interactive.ButtonReply.ID
				msg.Title = m.Interactive.ButtonReply.Title
			} else if m.Interactive.ListReply != nil {
				msg.Content = m.Interactive.ListReply.ID
				msg.Title = m.Interactive.ListReply.Title
			}
		}
	default:
		msg.Type = TypeUnsupported
	}
	return msg
}

// truncate caps s at max characters, never splitting a multi-byte rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
