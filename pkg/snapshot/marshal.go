package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// The records below carry custom JSON codecs for two reasons: timestamps
// must read and write as ISO-8601 strings, and unknown fields must survive a
// load/save cycle untouched (forward compatibility). Known keys are decoded
// into struct fields; everything else stays as raw JSON in extra.

var nodeKnownKeys = []string{"id", "content", "type", "source", "created", "modified", "metadata"}
var edgeKnownKeys = []string{"from", "to", "type", "strength", "created", "metadata"}
var metaKnownKeys = []string{"version", "created", "nodeCount", "edgeCount"}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func encodeTimestamp(t time.Time) json.RawMessage {
	data, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return data
}

// mergeFields renders known fields plus preserved extras as one object.
// Keys are emitted in a stable order: known keys first, extras sorted.
func mergeFields(known map[string]json.RawMessage, order []string, extra map[string]json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, val json.RawMessage) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(key)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(val)
	}
	for _, key := range order {
		if val, ok := known[key]; ok {
			write(key, val)
		}
	}
	extraKeys := make([]string, 0, len(extra))
	for k := range extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		write(k, extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func splitFields(data []byte, knownKeys []string) (known map[string]json.RawMessage, extra map[string]json.RawMessage, err error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, nil, err
	}
	known = make(map[string]json.RawMessage)
	for _, key := range knownKeys {
		if val, ok := all[key]; ok {
			known[key] = val
			delete(all, key)
		}
	}
	if len(all) == 0 {
		return known, nil, nil
	}
	return known, all, nil
}

// MarshalJSON implements json.Marshaler for NodeRecord.
func (r NodeRecord) MarshalJSON() ([]byte, error) {
	known := make(map[string]json.RawMessage, 7)
	var err error
	if known["id"], err = json.Marshal(r.ID); err != nil {
		return nil, err
	}
	if known["content"], err = json.Marshal(r.Content); err != nil {
		return nil, err
	}
	if known["type"], err = json.Marshal(r.Type); err != nil {
		return nil, err
	}
	if r.Source != "" {
		if known["source"], err = json.Marshal(r.Source); err != nil {
			return nil, err
		}
	}
	known["created"] = encodeTimestamp(r.Created)
	known["modified"] = encodeTimestamp(r.Modified)
	if r.Metadata != nil {
		if known["metadata"], err = json.Marshal(r.Metadata); err != nil {
			return nil, err
		}
	}
	return mergeFields(known, nodeKnownKeys, r.extra)
}

// UnmarshalJSON implements json.Unmarshaler for NodeRecord.
func (r *NodeRecord) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, nodeKnownKeys)
	if err != nil {
		return err
	}
	r.extra = extra

	if raw, ok := known["id"]; ok {
		if err := json.Unmarshal(raw, &r.ID); err != nil {
			return fmt.Errorf("node id: %w", err)
		}
	}
	if raw, ok := known["content"]; ok {
		if err := json.Unmarshal(raw, &r.Content); err != nil {
			return fmt.Errorf("node content: %w", err)
		}
		r.hasContent = true
	}
	if raw, ok := known["type"]; ok {
		if err := json.Unmarshal(raw, &r.Type); err != nil {
			return fmt.Errorf("node type: %w", err)
		}
	}
	if raw, ok := known["source"]; ok {
		if err := json.Unmarshal(raw, &r.Source); err != nil {
			return fmt.Errorf("node source: %w", err)
		}
	}
	if raw, ok := known["created"]; ok {
		if t, valid := parseTimestamp(raw); valid {
			r.Created = t
		}
	}
	if raw, ok := known["modified"]; ok {
		if t, valid := parseTimestamp(raw); valid {
			r.Modified = t
		}
	}
	if raw, ok := known["metadata"]; ok {
		if err := json.Unmarshal(raw, &r.Metadata); err != nil {
			return fmt.Errorf("node metadata: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for EdgeRecord.
func (r EdgeRecord) MarshalJSON() ([]byte, error) {
	known := make(map[string]json.RawMessage, 6)
	var err error
	if known["from"], err = json.Marshal(r.From); err != nil {
		return nil, err
	}
	if known["to"], err = json.Marshal(r.To); err != nil {
		return nil, err
	}
	if known["type"], err = json.Marshal(r.Type); err != nil {
		return nil, err
	}
	if known["strength"], err = json.Marshal(r.Strength); err != nil {
		return nil, err
	}
	known["created"] = encodeTimestamp(r.Created)
	if r.Metadata != nil {
		if known["metadata"], err = json.Marshal(r.Metadata); err != nil {
			return nil, err
		}
	}
	return mergeFields(known, edgeKnownKeys, r.extra)
}

// UnmarshalJSON implements json.Unmarshaler for EdgeRecord.
func (r *EdgeRecord) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, edgeKnownKeys)
	if err != nil {
		return err
	}
	r.extra = extra

	if raw, ok := known["from"]; ok {
		if err := json.Unmarshal(raw, &r.From); err != nil {
			return fmt.Errorf("edge from: %w", err)
		}
	}
	if raw, ok := known["to"]; ok {
		if err := json.Unmarshal(raw, &r.To); err != nil {
			return fmt.Errorf("edge to: %w", err)
		}
	}
	if raw, ok := known["type"]; ok {
		if err := json.Unmarshal(raw, &r.Type); err != nil {
			return fmt.Errorf("edge type: %w", err)
		}
	}
	if raw, ok := known["strength"]; ok {
		if err := json.Unmarshal(raw, &r.Strength); err != nil {
			return fmt.Errorf("edge strength: %w", err)
		}
		r.hasStrength = true
	}
	if raw, ok := known["created"]; ok {
		if t, valid := parseTimestamp(raw); valid {
			r.Created = t
		}
	}
	if raw, ok := known["metadata"]; ok {
		if err := json.Unmarshal(raw, &r.Metadata); err != nil {
			return fmt.Errorf("edge metadata: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for Metadata.
func (m Metadata) MarshalJSON() ([]byte, error) {
	known := make(map[string]json.RawMessage, 4)
	var err error
	if known["version"], err = json.Marshal(m.Version); err != nil {
		return nil, err
	}
	known["created"] = encodeTimestamp(m.Created)
	if known["nodeCount"], err = json.Marshal(m.NodeCount); err != nil {
		return nil, err
	}
	if known["edgeCount"], err = json.Marshal(m.EdgeCount); err != nil {
		return nil, err
	}
	return mergeFields(known, metaKnownKeys, m.extra)
}

// UnmarshalJSON implements json.Unmarshaler for Metadata.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	known, extra, err := splitFields(data, metaKnownKeys)
	if err != nil {
		return err
	}
	m.extra = extra

	if raw, ok := known["version"]; ok {
		if err := json.Unmarshal(raw, &m.Version); err != nil {
			return fmt.Errorf("metadata version: %w", err)
		}
	}
	if raw, ok := known["created"]; ok {
		if t, valid := parseTimestamp(raw); valid {
			m.Created = t
		}
	}
	if raw, ok := known["nodeCount"]; ok {
		if err := json.Unmarshal(raw, &m.NodeCount); err != nil {
			return fmt.Errorf("metadata nodeCount: %w", err)
		}
	}
	if raw, ok := known["edgeCount"]; ok {
		if err := json.Unmarshal(raw, &m.EdgeCount); err != nil {
			return fmt.Errorf("metadata edgeCount: %w", err)
		}
	}
	return nil
}
