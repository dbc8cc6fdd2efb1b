package pipeline

import (
	"bytes"
	"encoding/json"
	"strings"

	"wa-sync-service/internal/models"
)

// flattenItems maps the upstream payload-shape variants into one flat
// sequence of per-entity JSON objects: a bare object, a bare array, or an
// object wrapping an array (or a deeper wrapper) under one of the given
// field names. Handlers never re-implement shape sniffing.
func flattenItems(raw json.RawMessage, wrapperKeys ...string) []json.RawMessage {
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		return items
	}

	if raw[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		for _, key := range wrapperKeys {
			if inner, ok := obj[key]; ok {
				return flattenItems(inner, wrapperKeys...)
			}
		}
		return []json.RawMessage{raw}
	}

	return nil
}

// messageKey is the platform's message identity envelope.
type messageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

type messageItem struct {
	Key              messageKey                 `json:"key"`
	PushName         string                     `json:"pushName"`
	Message          map[string]json.RawMessage `json:"message"`
	MessageTimestamp int64                      `json:"messageTimestamp"`
	Status           string                     `json:"status"`
	Participant      string                     `json:"participant"`
}

type messageUpdateItem struct {
	Key    messageKey `json:"key"`
	Status string     `json:"status"`
	Update struct {
		Status string `json:"status"`
	} `json:"update"`
}

type contactItem struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PushName          string `json:"pushName"`
	ProfilePictureURL string `json:"profilePictureUrl"`
	ProfilePicURL     string `json:"profilePicUrl"`
	IsBusiness        *bool  `json:"isBusiness"`
	IsBlocked         *bool  `json:"isBlocked"`
}

type chatItem struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	UnreadCount           int    `json:"unreadCount"`
	Archived              bool   `json:"archived"`
	Pinned                bool   `json:"pinned"`
	MuteEndTime           int64  `json:"muteEndTime"`
	ConversationTimestamp int64  `json:"conversationTimestamp"`
}

type connectionItem struct {
	State string `json:"state"`
}

// messageKinds maps the platform's content envelope field to a coarse
// message type. Anything unlisted classifies as text.
var messageKinds = []struct {
	field string
	kind  string
}{
	{"conversation", "text"},
	{"extendedTextMessage", "text"},
	{"imageMessage", "image"},
	{"videoMessage", "video"},
	{"audioMessage", "audio"},
	{"documentMessage", "document"},
	{"stickerMessage", "sticker"},
	{"locationMessage", "location"},
	{"contactMessage", "contact"},
	{"reactionMessage", "reaction"},
}

// classifyMessage derives the coarse type and a content summary from the
// message envelope.
func classifyMessage(message map[string]json.RawMessage) (kind, summary string) {
	for _, m := range messageKinds {
		raw, ok := message[m.field]
		if !ok {
			continue
		}
		return m.kind, extractSummary(m.field, raw)
	}
	return "text", ""
}

func extractSummary(field string, raw json.RawMessage) string {
	switch field {
	case "conversation":
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return text
		}
		return ""
	case "extendedTextMessage":
		var body struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(raw, &body)
		return body.Text
	case "reactionMessage":
		var body struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(raw, &body)
		return body.Text
	case "documentMessage":
		var body struct {
			FileName string `json:"fileName"`
			Caption  string `json:"caption"`
		}
		_ = json.Unmarshal(raw, &body)
		if body.Caption != "" {
			return body.Caption
		}
		return body.FileName
	default:
		var body struct {
			Caption string `json:"caption"`
		}
		_ = json.Unmarshal(raw, &body)
		return body.Caption
	}
}

// deliveryStatuses maps the platform's delivery acknowledgements onto the
// stored status scale. "PLAYED" collapses to read.
var deliveryStatuses = map[string]string{
	"PENDING":      models.StatusPending,
	"SERVER_ACK":   models.StatusSent,
	"DELIVERY_ACK": models.StatusDelivered,
	"READ":         models.StatusRead,
	"PLAYED":       models.StatusRead,
}

func mapDeliveryStatus(status string) string {
	return deliveryStatuses[strings.ToUpper(status)]
}

// chatTypeFromJID derives the chat type from the external id's suffix
// conventions.
func chatTypeFromJID(jid string) string {
	switch {
	case strings.HasSuffix(jid, "@g.us"):
		return models.ChatTypeGroup
	case jid == "status@broadcast":
		return models.ChatTypeBroadcast
	default:
		return models.ChatTypeIndividual
	}
}

// TranslateEventName turns the webhook's hyphenated spelling into the
// canonical dotted form, e.g. messages-upsert into messages.upsert.
func TranslateEventName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "-", ".")
}
