package delivery

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"relay/internal/constants"
	"relay/internal/event"
)

// Payload is the outgoing request body, kept as an ordered key/value list so
// absent optional fields are skipped entirely instead of serialized as JSON
// null. The list is fully serialized to bytes before it reaches the transport;
// nothing open-typed crosses that boundary.
type Payload struct {
	fields []payloadField
}

type payloadField struct {
	key    string
	str    string
	extras map[string]event.ExtraValue
}

// BuildPayload assembles the wire payload for one event. Field order is fixed:
// sourceType, messageBody and timestamp first, then the source-specific
// metadata that is actually present.
func BuildPayload(ev *event.InboundEvent) *Payload {
	p := &Payload{}

	p.addString("sourceType", string(ev.SourceType))
	p.addString("messageBody", ev.Content)
	if !ev.Timestamp.IsZero() {
		p.addString("timestamp", ev.Timestamp.UTC().Format(time.RFC3339))
	}

	if ev.SourceType == event.SourceSMS {
		p.addString("senderNumber", ev.SenderNumber)
		return p
	}

	p.addString("sourcePackage", ev.PackageName)
	p.addString("sourceAppName", ev.AppName)
	p.addString("notificationTitle", ev.Title)
	p.addString("notificationText", ev.Text)
	if len(ev.Extras) > 0 {
		p.fields = append(p.fields, payloadField{key: "extras", extras: ev.Extras})
	}

	return p
}

func (p *Payload) addString(key, value string) {
	if value == "" {
		return
	}
	p.fields = append(p.fields, payloadField{key: key, str: value})
}

// JSON renders the payload as a JSON object preserving field order.
func (p *Payload) JSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, field := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONKey(&buf, field.key); err != nil {
			return nil, err
		}
		if field.extras != nil {
			if err := writeExtras(&buf, field.extras); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeJSONValue(&buf, field.str); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// QueryValues renders every payload field in stringified form, for GET rules
// that carry the event as query parameters. Extras are flattened into
// individual parameters.
func (p *Payload) QueryValues() url.Values {
	values := url.Values{}
	for _, field := range p.fields {
		if field.extras != nil {
			for _, key := range sortedExtraKeys(field.extras) {
				values.Set(key, field.extras[key].String())
			}
			continue
		}
		values.Set(field.key, field.str)
	}
	return values
}

func writeExtras(buf *bytes.Buffer, extras map[string]event.ExtraValue) error {
	buf.WriteByte('{')
	for i, key := range sortedExtraKeys(extras) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONKey(buf, key); err != nil {
			return err
		}
		data, err := json.Marshal(extras[key])
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return nil
}

func sortedExtraKeys(extras map[string]event.ExtraValue) []string {
	keys := make([]string, 0, len(extras))
	for key := range extras {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func writeJSONKey(buf *bytes.Buffer, key string) error {
	if err := writeJSONValue(buf, key); err != nil {
		return err
	}
	buf.WriteByte(':')
	return nil
}

func writeJSONValue(buf *bytes.Buffer, value string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// MergeHeaders combines rule-supplied headers with the standard defaults.
// A default is only added when the rule did not set that header itself,
// compared case-insensitively.
func MergeHeaders(ruleHeaders map[string]string, sourceType event.SourceType) map[string]string {
	merged := make(map[string]string, len(ruleHeaders)+3)
	for key, value := range ruleHeaders {
		merged[key] = value
	}

	setDefault(merged, "Content-Type", "application/json")
	setDefault(merged, "User-Agent", constants.UserAgent)
	setDefault(merged, "X-Source-Type", string(sourceType))

	return merged
}

func setDefault(headers map[string]string, key, value string) {
	for existing := range headers {
		if strings.EqualFold(existing, key) {
			return
		}
	}
	headers[key] = value
}
