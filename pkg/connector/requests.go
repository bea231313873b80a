package connector

import (
	"sort"

	"github.com/DBCDK/opencat-business-connector/pkg/errors"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

// Request payloads. Optional fields carry omitempty so an absent value is
// left out of the JSON body instead of being sent as null.

type validateRecordRequest struct {
	TemplateName string `json:"templateName"`
	Record       string `json:"record,omitempty"`
	TrackingID   string `json:"trackingId,omitempty"`
}

type checkTemplateRequest struct {
	Name        string `json:"name"`
	GroupID     string `json:"groupId"`
	LibraryType string `json:"libraryType"`
	TrackingID  string `json:"trackingId,omitempty"`
}

type checkTemplateBuildRequest struct {
	Name       string `json:"name"`
	TrackingID string `json:"trackingId,omitempty"`
}

type recordRequest struct {
	Record     string `json:"record,omitempty"`
	TrackingID string `json:"trackingId,omitempty"`
}

type doRecategorizationThingsRequest struct {
	CurrentRecord string `json:"currentRecord,omitempty"`
	UpdateRecord  string `json:"updateRecord,omitempty"`
	NewRecord     string `json:"newRecord,omitempty"`
	TrackingID    string `json:"trackingId,omitempty"`
}

type buildRecordRequest struct {
	TemplateName string `json:"templateName"`
	Record       string `json:"record,omitempty"`
	TrackingID   string `json:"trackingId,omitempty"`
}

type sortRecordRequest struct {
	TemplateProvider string `json:"templateProvider"`
	Record           string `json:"record,omitempty"`
	TrackingID       string `json:"trackingId,omitempty"`
}

type getValidateSchemasRequest struct {
	TemplateGroup       string   `json:"templateGroup"`
	AllowedLibraryRules []string `json:"allowedLibraryRules"`
	TrackingID          string   `json:"trackingId,omitempty"`
}

// CallOption adjusts a single connector call.
type CallOption func(*callOptions)

type callOptions struct {
	trackingID string
}

// WithTrackingID attaches a tracking id to the request payload. An empty id
// is the same as none.
func WithTrackingID(id string) CallOption {
	return func(o *callOptions) {
		o.trackingID = id
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// encodeRecord converts rec to its wire form. A nil record yields an empty
// string, which the payload omits, and never reaches the codec.
func (c *Connector) encodeRecord(rec *marc.Record) (string, error) {
	if rec == nil {
		return "", nil
	}
	s, err := c.codec.Encode(rec)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeEncoding, "failed to encode record").
			WithDetail("codec", c.codec.Name())
	}
	return s, nil
}

// decodeRecord converts a record string from a response back into a record.
func (c *Connector) decodeRecord(s string) (*marc.Record, error) {
	rec, err := c.codec.Decode(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeEncoding, "failed to decode record").
			WithDetail("codec", c.codec.Name())
	}
	return rec, nil
}

// libraryRules turns a rule set into a sorted slice so the payload is
// deterministic. A nil or empty set becomes an empty JSON array.
func libraryRules(set map[string]struct{}) []string {
	rules := make([]string, 0, len(set))
	for r := range set {
		rules = append(rules, r)
	}
	sort.Strings(rules)
	return rules
}

// RuleSet builds a library rule set from names.
func RuleSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
