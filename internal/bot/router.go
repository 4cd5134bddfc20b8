package bot

import (
	"context"
	"strings"

	"github.com/arogya-clinic/whatsapp-assistant/internal/conversation"
	"github.com/arogya-clinic/whatsapp-assistant/internal/whatsapp"
)

// HandleInbound is the entry point for every inbound message. Every message
// receives at least one reply; an uncaught panic is answered with a generic
// retry message rather than silence.
func (e *Engine) HandleInbound(ctx context.Context, msg whatsapp.InboundMessage) {
	e.metrics.ObserveInbound(string(msg.Type))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("bot: panic while handling message", "phone", msg.From, "panic", r)
			res := e.sender.SendText(ctx, msg.From, msgGenericError)
			if !res.Success {
				e.logger.Error("bot: failed to send panic fallback", "phone", msg.From, "error", res.Error)
			}
		}
	}()

	// Best-effort read receipt; a failure here never blocks handling.
	if msg.MessageID != "" {
		if res := e.sender.MarkRead(ctx, msg.MessageID); !res.Success {
			e.logger.Debug("bot: mark read failed", "message_id", msg.MessageID, "error", res.Error)
		}
	}

	conv, err := e.conversations.GetOrCreate(ctx, msg.From)
	if err != nil {
		e.logger.Error("bot: load conversation failed", "phone", msg.From, "error", err)
		e.sender.SendText(ctx, msg.From, msgGenericError)
		return
	}

	e.logInbound(ctx, conv, msg)

	if msg.Type == whatsapp.TypeUnsupported {
		e.sendText(ctx, conv, msgUnsupported)
		return
	}

	// Session timeout: an active flow older than the inactivity window is
	// expired before the message content is even considered.
	if conv.Step != conversation.StepIdle && e.now().Sub(conv.LastMessageAt) > e.opts.SessionTimeout {
		e.resetTo(ctx, conv, msgSessionExpired)
		return
	}
	if err := e.conversations.Touch(ctx, conv.ID); err != nil {
		e.logger.Warn("bot: touch failed", "phone", conv.Phone, "error", err)
	}

	text := normalizeText(msg.Content)
	in := input{text: msg.Content, payload: "", interactive: msg.Type == whatsapp.TypeInteractive}
	if in.interactive {
		in.payload = msg.Content
		in.text = msg.Title
	}

	// Opt-out keywords apply in any state.
	if text == "stop" || text == "unsubscribe" {
		if err := e.conversations.SetOptedOut(ctx, conv.Phone, true); err != nil {
			e.logger.Error("bot: set opted out failed", "phone", conv.Phone, "error", err)
		}
		e.resetTo(ctx, conv, msgOptedOut)
		return
	}

	// Global menu command works regardless of state.
	if text == "menu" || text == "home" || text == "start" || in.payload == actionMenu {
		if conv.Step != conversation.StepIdle {
			if err := e.conversations.Reset(ctx, conv.ID); err != nil {
				e.logger.Error("bot: reset failed", "phone", conv.Phone, "error", err)
			}
		}
		e.showMenu(ctx, conv)
		return
	}

	idle := conv.Step == conversation.StepIdle

	// A bare greeting is honored only when idle.
	if idle && isGreeting(text) {
		e.showMenu(ctx, conv)
		return
	}

	// Shortcuts start flows only from idle; mid-flow the literal word
	// "cancel" aborts the active flow instead of starting the cancel flow.
	if idle {
		if flow, ok := shortcutFlow(text, in.payload); ok {
			e.startFlow(ctx, conv, flow)
			return
		}
	} else if text == "cancel" {
		e.resetTo(ctx, conv, msgFlowAborted)
		return
	}

	if in.interactive {
		e.handleInteractiveAction(ctx, conv, in)
		return
	}

	if !idle {
		e.dispatchFlow(ctx, conv, in)
		return
	}

	e.showMenu(ctx, conv)
}

// handleInteractiveAction forwards a button/list payload into the active
// flow, or treats it as a main-menu action when idle.
func (e *Engine) handleInteractiveAction(ctx context.Context, conv *conversation.Conversation, in input) {
	if conv.Step != conversation.StepIdle {
		e.dispatchFlow(ctx, conv, in)
		return
	}
	if flow, ok := shortcutFlow("", in.payload); ok {
		e.startFlow(ctx, conv, flow)
		return
	}
	// Unrecognized payload falls back to the menu.
	e.showMenu(ctx, conv)
}

func (e *Engine) startFlow(ctx context.Context, conv *conversation.Conversation, flow conversation.Flow) {
	switch flow {
	case conversation.FlowBooking:
		e.startBooking(ctx, conv)
	case conversation.FlowStatus:
		e.startStatus(ctx, conv)
	case conversation.FlowCancel:
		e.startCancel(ctx, conv)
	case conversation.FlowReschedule:
		e.startReschedule(ctx, conv)
	case conversation.FlowHelp:
		e.showHelp(ctx, conv)
	default:
		e.showMenu(ctx, conv)
	}
}

func (e *Engine) dispatchFlow(ctx context.Context, conv *conversation.Conversation, in input) {
	switch conv.Flow {
	case conversation.FlowBooking:
		e.handleBookingStep(ctx, conv, in)
	case conversation.FlowStatus:
		e.handleStatusStep(ctx, conv, in)
	case conversation.FlowCancel:
		e.handleCancelStep(ctx, conv, in)
	case conversation.FlowReschedule:
		e.handleRescheduleStep(ctx, conv, in)
	default:
		// A non-idle step with no known flow is a stale row; recover to idle.
		e.resetTo(ctx, conv, msgGenericError)
	}
}

// showHelp is a single-turn flow: clinic info, then straight back to idle.
func (e *Engine) showHelp(ctx context.Context, conv *conversation.Conversation) {
	e.sendText(ctx, conv, helpMessage(e.opts.ClinicName, e.opts.ClinicHours, e.opts.ClinicAddress, e.opts.ClinicPhone))
}

func (e *Engine) logInbound(ctx context.Context, conv *conversation.Conversation, msg whatsapp.InboundMessage) {
	entry := conversation.LogEntry{
		ConversationID:    &conv.ID,
		Phone:             conv.Phone,
		Direction:         conversation.DirectionInbound,
		MessageType:       string(msg.Type),
		Content:           msg.Content,
		ProviderMessageID: msg.MessageID,
	}
	if msg.Title != "" {
		entry.Metadata = map[string]string{"title": msg.Title}
	}
	if err := e.messageLog.Append(ctx, entry); err != nil {
		e.logger.Warn("bot: failed to log inbound message", "phone", conv.Phone, "error", err)
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isGreeting(text string) bool {
	switch text {
	case "hi", "hello", "hey", "namaste", "good morning", "good afternoon", "good evening":
		return true
	default:
		return false
	}
}

// shortcutFlow maps global shortcuts and main-menu payloads to flows.
func shortcutFlow(text, payload string) (conversation.Flow, bool) {
	switch payload {
	case actionBook:
		return conversation.FlowBooking, true
	case actionStatus:
		return conversation.FlowStatus, true
	case actionCancel:
		return conversation.FlowCancel, true
	case actionReschedule:
		return conversation.FlowReschedule, true
	case actionHelp:
		return conversation.FlowHelp, true
	}
	switch text {
	case "book", "1":
		return conversation.FlowBooking, true
	case "status", "2":
		return conversation.FlowStatus, true
	case "cancel", "3":
		return conversation.FlowCancel, true
	case "reschedule", "4":
		return conversation.FlowReschedule, true
	case "help", "5":
		return conversation.FlowHelp, true
	}
	return conversation.FlowNone, false
}
