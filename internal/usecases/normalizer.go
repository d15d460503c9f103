package usecases

import (
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"time"

	"showroom_bot/internal/entities"
)

// acceptedEvents lists event names treated as an inbound chat message.
var acceptedEvents = map[string]bool{
	"message":          true,
	"message.received": true,
	"messages.upsert":  true,
	"message_received": true,
	"message.any":      true,
}

var (
	phoneKeys     = []string{"sender", "phone", "from", "chatId"}
	messageIDKeys = []string{"id", "messageId", "message_id"}
)

// mediaHit is what a media extractor found.
type mediaHit struct {
	Ref         string
	Kind        entities.MediaKind
	Caption     string
	Unfetchable bool
}

// mediaExtractor recognizes one wire convention for media.
type mediaExtractor struct {
	name    string
	extract func(p map[string]any) (mediaHit, bool)
}

// mediaExtractors are tried in order; the first match wins.
var mediaExtractors = []mediaExtractor{
	{name: "attachment_url", extract: attachmentWithURL},
	{name: "media_url", extract: mediaURLField},
	{name: "image_url", extract: urlField("image_url", entities.MediaImage)},
	{name: "video_url", extract: urlField("video_url", entities.MediaVideo)},
	{name: "type_url", extract: typeURLPair},
	{name: "attachment_meta", extract: attachmentWithoutURL},
}

// Normalizer turns gateway payloads into InboundMessage. It holds no state besides the clock.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize parses a raw JSON payload.
func (n *Normalizer) Normalize(raw []byte) (entities.InboundMessage, error) {
	var payload map[string]any
	if len(strings.TrimSpace(string(raw))) == 0 {
		return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeEmptyPayload}
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeEmptyPayload, Detail: "payload is not a JSON object"}
	}
	return n.NormalizePayload(payload)
}

// NormalizePayload is Normalize for an already decoded payload.
func (n *Normalizer) NormalizePayload(payload map[string]any) (entities.InboundMessage, error) {
	if len(payload) == 0 {
		return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeEmptyPayload}
	}

	if ev, ok := payload["event"]; ok {
		name, _ := ev.(string)
		if !acceptedEvents[strings.ToLower(strings.TrimSpace(name))] {
			return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeUnsupportedEvent, Detail: name}
		}
	}

	// Some gateways wrap the message in a data envelope.
	if data, ok := payload["data"].(map[string]any); ok && firstString(payload, phoneKeys...) == "" {
		payload = data
	}

	if truthy(payload["fromMe"]) || truthy(payload["from_me"]) {
		return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeSelfMessage}
	}

	phone := ""
	for _, key := range phoneKeys {
		if v, ok := payload[key].(string); ok {
			if phone = ExtractPhone(v); phone != "" {
				break
			}
		}
	}
	if phone == "" {
		return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeMissingSender}
	}

	msg := entities.InboundMessage{
		SenderPhone: phone,
		RawText:     extractText(payload),
		MessageID:   firstString(payload, messageIDKeys...),
		Timestamp:   n.timestamp(payload["timestamp"]),
	}

	for _, ex := range mediaExtractors {
		hit, ok := ex.extract(payload)
		if !ok {
			continue
		}
		msg.MediaRef = hit.Ref
		msg.MediaKind = hit.Kind
		msg.MediaUnfetchable = hit.Unfetchable
		if msg.RawText == "" {
			msg.RawText = strings.TrimSpace(hit.Caption)
		}
		break
	}

	if msg.RawText == "" && !msg.HasMedia() {
		return entities.InboundMessage{}, &entities.NormalizationError{Code: entities.CodeEmptyPayload, Detail: "no text or media"}
	}
	return msg, nil
}

// ExtractPhone strips the channel address suffix ("@c.us", "@s.whatsapp.net"), a
// device suffix (":5"), a leading "+" and separators. It returns "" unless digits remain.
func ExtractPhone(addr string) string {
	s := strings.TrimSpace(addr)
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 && isDigits(s[i+1:]) {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.NewReplacer(" ", "", "-", "").Replace(s)
	if !isDigits(s) {
		return ""
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func extractText(p map[string]any) string {
	switch m := p["message"].(type) {
	case string:
		if t := strings.TrimSpace(m); t != "" {
			return t
		}
	case map[string]any:
		if t := firstString(m, "text", "body", "conversation"); t != "" {
			return t
		}
	}
	switch t := p["text"].(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
	case map[string]any:
		if s := firstString(t, "body"); s != "" {
			return s
		}
	}
	return firstString(p, "body")
}

func (n *Normalizer) timestamp(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return unixAuto(int64(t))
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
		if secs, err := strconv.ParseInt(t, 10, 64); err == nil {
			return unixAuto(secs)
		}
	}
	return n.now()
}

// unixAuto accepts seconds or milliseconds.
func unixAuto(v int64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

func firstString(p map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

func attachmentObject(p map[string]any) (map[string]any, bool) {
	for _, key := range []string{"attachment", "media"} {
		if obj, ok := p[key].(map[string]any); ok && len(obj) > 0 {
			return obj, true
		}
	}
	return nil, false
}

func attachmentWithURL(p map[string]any) (mediaHit, bool) {
	obj, ok := attachmentObject(p)
	if !ok {
		return mediaHit{}, false
	}
	url := firstString(obj, "url", "link")
	if url == "" {
		return mediaHit{}, false
	}
	return mediaHit{
		Ref:     url,
		Kind:    mediaKind(firstString(obj, "type", "mimetype"), url),
		Caption: firstString(obj, "caption"),
	}, true
}

func attachmentWithoutURL(p map[string]any) (mediaHit, bool) {
	obj, ok := attachmentObject(p)
	if !ok {
		return mediaHit{}, false
	}
	return mediaHit{
		Kind:        mediaKind(firstString(obj, "type", "mimetype"), ""),
		Caption:     firstString(obj, "caption"),
		Unfetchable: true,
	}, true
}

func mediaURLField(p map[string]any) (mediaHit, bool) {
	url := firstString(p, "media_url")
	if url == "" {
		return mediaHit{}, false
	}
	return mediaHit{Ref: url, Kind: mediaKind(firstString(p, "media_type"), url), Caption: firstString(p, "caption")}, true
}

func urlField(key string, kind entities.MediaKind) func(map[string]any) (mediaHit, bool) {
	return func(p map[string]any) (mediaHit, bool) {
		url := firstString(p, key)
		if url == "" {
			return mediaHit{}, false
		}
		return mediaHit{Ref: url, Kind: kind, Caption: firstString(p, "caption")}, true
	}
}

func typeURLPair(p map[string]any) (mediaHit, bool) {
	url := firstString(p, "url")
	typ := firstString(p, "type")
	if url == "" || typ == "" {
		return mediaHit{}, false
	}
	return mediaHit{Ref: url, Kind: mediaKind(typ, url), Caption: firstString(p, "caption")}, true
}

// mediaKind maps gateway type names and mimetypes, falling back to the URL extension.
func mediaKind(typ, url string) entities.MediaKind {
	t := strings.ToLower(typ)
	if i := strings.Index(t, "/"); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "image", "photo", "picture", "sticker":
		return entities.MediaImage
	case "video", "gif":
		return entities.MediaVideo
	case "audio", "ptt", "voice":
		return entities.MediaAudio
	case "document", "file", "application":
		return entities.MediaDocument
	}

	ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return entities.MediaImage
	case ".mp4", ".mov", ".3gp":
		return entities.MediaVideo
	case ".mp3", ".ogg", ".opus", ".m4a":
		return entities.MediaAudio
	case ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv":
		return entities.MediaDocument
	}
	return entities.MediaUnknown
}
