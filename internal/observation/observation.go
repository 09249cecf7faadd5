// Package observation defines the producer-facing queue entry: the
// open-ended JSON object a producer appends to observations.jsonl, before
// it has been validated, scored, or routed to a kind.
package observation

import "encoding/json"

// Bucket is the producer-supplied confidence prior feeding the scorer's
// defaults.
type Bucket string

const (
	BucketAmbient  Bucket = "ambient"
	BucketExplicit Bucket = "explicit"
)

// EntityRef is one element of the optional "entities" list.
type EntityRef struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Observation is one queue line, decoded into its known fields plus an
// Extras map carrying any passthrough application keys untouched.
type Observation struct {
	Timestamp    string      `json:"timestamp"`
	Bucket       Bucket      `json:"bucket"`
	Type         string      `json:"type"`
	Body         string      `json:"body"`
	Attribution  string      `json:"attribution"`
	SessionID    string      `json:"session_id"`
	Confidence   *float64    `json:"confidence,omitempty"`
	Importance   *float64    `json:"importance,omitempty"`
	Entities     []EntityRef `json:"entities,omitempty"`
	Context      string      `json:"context,omitempty"`
	SourceQuote  string      `json:"source_quote,omitempty"`
	Extras       map[string]json.RawMessage `json:"-"`
}

// knownFields lists every struct tag handled explicitly above; anything
// else in the raw JSON object lands in Extras.
var knownFields = map[string]bool{
	"timestamp": true, "bucket": true, "type": true, "body": true,
	"attribution": true, "session_id": true, "confidence": true,
	"importance": true, "entities": true, "context": true, "source_quote": true,
}

// Parse decodes one queue line into an Observation, preserving unknown
// keys in Extras.
func Parse(line []byte) (*Observation, error) {
	var obs Observation
	if err := json.Unmarshal(line, &obs); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if obs.Extras == nil {
			obs.Extras = make(map[string]json.RawMessage)
		}
		obs.Extras[k] = v
	}
	return &obs, nil
}

// SecurityScanText is the concatenation the validator's injection/
// credential scan runs against.
func (o *Observation) SecurityScanText() string {
	return o.Body + "|" + o.Context + "|" + o.SourceQuote
}
