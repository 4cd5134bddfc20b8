package whatsapp

import (
	"encoding/json"
	"fmt"
)

// ParseWebhook extracts the inbound messages from a Cloud API webhook body.
// Delivery/status callbacks carry no messages and yield an empty slice.
func ParseWebhook(body []byte) ([]InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("whatsapp: parse webhook: %w", err)
	}

	var messages []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				messages = append(messages, m.normalize())
			}
		}
	}
	return messages, nil
}
