package packager

import (
	"encoding/json"
	"maps"
	"time"
)

// TimestampFormat is the layout used for timestamps in info.json and results.
const TimestampFormat = "2006-01-02 15:04:05 UTC"

// Metadata describes a collected document.
type Metadata struct {
	URL       string
	Domain    string
	Timestamp time.Time
	Title     string
	Images    int
	// Extra holds caller-supplied keys written alongside the standard ones.
	Extra map[string]string
}

// Result is the outcome of collecting and packaging one target. When Error is
// set, Zipfile, Size and Hash are empty.
type Result struct {
	Metadata
	Zipfile string
	Size    int64
	Hash    string
	Error   string
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// FormatTimestamp renders t in UTC using TimestampFormat.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// sidecar returns the info.json document. Standard keys win over Extra.
func (m Metadata) sidecar() map[string]any {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["url"] = m.URL
	out["domain"] = m.Domain
	out["timestamp"] = FormatTimestamp(m.Timestamp)
	out["title"] = m.Title
	out["images"] = m.Images
	return out
}

type resultJSON struct {
	URL       string            `json:"url"`
	Domain    string            `json:"domain"`
	Timestamp string            `json:"timestamp"`
	Title     string            `json:"title"`
	Images    int               `json:"images"`
	Zipfile   string            `json:"zipfile,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Hash      string            `json:"hash,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"meta,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		URL:       r.URL,
		Domain:    r.Domain,
		Timestamp: FormatTimestamp(r.Timestamp),
		Title:     r.Title,
		Images:    r.Images,
		Zipfile:   r.Zipfile,
		Size:      r.Size,
		Hash:      r.Hash,
		Error:     r.Error,
		Extra:     r.Extra,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var ts time.Time
	if raw.Timestamp != "" {
		parsed, err := time.Parse(TimestampFormat, raw.Timestamp)
		if err != nil {
			return err
		}
		ts = parsed
	}
	*r = Result{
		Metadata: Metadata{
			URL:       raw.URL,
			Domain:    raw.Domain,
			Timestamp: ts,
			Title:     raw.Title,
			Images:    raw.Images,
			Extra:     maps.Clone(raw.Extra),
		},
		Zipfile: raw.Zipfile,
		Size:    raw.Size,
		Hash:    raw.Hash,
		Error:   raw.Error,
	}
	return nil
}
