package entities

import "time"

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaUnknown  MediaKind = "unknown"
)

// InboundMessage is the canonical envelope produced once per webhook delivery.
type InboundMessage struct {
	SenderPhone string    `json:"sender_phone"`
	RawText     string    `json:"raw_text"`
	MediaRef    string    `json:"media_ref,omitempty"`
	MediaKind   MediaKind `json:"media_kind,omitempty"`
	// MediaUnfetchable is set when the payload described an attachment without a URL.
	MediaUnfetchable bool      `json:"media_unfetchable,omitempty"`
	MessageID        string    `json:"message_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

func (m InboundMessage) HasMedia() bool {
	return m.MediaRef != "" || m.MediaUnfetchable
}

// Reply is what a routed handler wants sent back. Suppressed means no reply is intended.
type Reply struct {
	Text       string
	Suppressed bool
	// Degraded marks replies produced by a fallback path.
	Degraded bool
	Metadata TurnMetadata
}

func SuppressedReply() Reply {
	return Reply{Suppressed: true}
}

func TextReply(text string) Reply {
	return Reply{Text: text}
}
