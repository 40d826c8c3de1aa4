package models

import (
	"encoding/json"
	"time"
)

// WebhookPayload is the inbound call-event record as the telephony platform
// posts it. Field names follow the upstream webhook format; any keys we do not
// model explicitly are preserved in Extra so nothing is silently discarded at
// the boundary.
type WebhookPayload struct {
	CallID        string   `json:"call_id"`
	CallStartUTC  string   `json:"callStartUtc"`
	DID           string   `json:"did"`
	CallerID      string   `json:"callerId"`
	DurationSec   *int     `json:"durationSec"`
	Disposition   string   `json:"disposition"`
	CampaignName  string   `json:"campaignName"`
	CampaignID    string   `json:"campaignId"`
	Target        string   `json:"target"`
	PublisherID   string   `json:"publisherId"`
	PublisherName string   `json:"publisherName"`
	Payout        *float64 `json:"payout"`
	Revenue       *float64 `json:"revenue"`

	Extra map[string]interface{} `json:"-"`
}

var knownPayloadKeys = map[string]struct{}{
	"call_id": {}, "callStartUtc": {}, "did": {}, "callerId": {},
	"durationSec": {}, "disposition": {}, "campaignName": {}, "campaignId": {},
	"target": {}, "publisherId": {}, "publisherName": {}, "payout": {}, "revenue": {},
}

// UnmarshalJSON decodes the known fields and collects everything else into
// Extra.
func (p *WebhookPayload) UnmarshalJSON(data []byte) error {
	type alias WebhookPayload
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range knownPayloadKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}

	*p = WebhookPayload(a)
	return nil
}

// Campaign returns the campaign name, falling back to the campaign ID when the
// platform omits the name.
func (p *WebhookPayload) Campaign() string {
	if p.CampaignName != "" {
		return p.CampaignName
	}
	return p.CampaignID
}

// Call is the normalized internal representation of an accepted call event.
type Call struct {
	ID            string    `json:"id"`
	StartUTC      time.Time `json:"start_utc"`
	DIDRaw        string    `json:"did_raw"`
	DID           string    `json:"did"`
	CallerID      string    `json:"caller_id"`
	DurationSec   *int      `json:"duration_sec,omitempty"`
	Disposition   string    `json:"disposition"`
	Campaign      string    `json:"campaign"`
	Target        string    `json:"target"`
	PublisherID   string    `json:"publisher_id"`
	PublisherName string    `json:"publisher_name"`
	Payout        *float64  `json:"payout,omitempty"`
	Revenue       *float64  `json:"revenue,omitempty"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// RawTableHeaders is the column order of the raw call log table.
var RawTableHeaders = []string{
	"call_id", "call_start_utc", "did_raw", "did_canon", "caller_id",
	"duration_sec", "disposition", "campaign", "target",
	"publisher_id", "publisher_name",
	"payout", "revenue", "_ingested_at",
}

// Row renders the call as a raw-table row in RawTableHeaders order.
func (c *Call) Row() []interface{} {
	var duration interface{}
	if c.DurationSec != nil {
		duration = *c.DurationSec
	} else {
		duration = ""
	}
	var payout interface{}
	if c.Payout != nil {
		payout = *c.Payout
	} else {
		payout = ""
	}
	var revenue interface{}
	if c.Revenue != nil {
		revenue = *c.Revenue
	} else {
		revenue = ""
	}

	return []interface{}{
		c.ID,
		c.StartUTC.UTC().Format(time.RFC3339),
		c.DIDRaw,
		c.DID,
		c.CallerID,
		duration,
		c.Disposition,
		c.Campaign,
		c.Target,
		c.PublisherID,
		c.PublisherName,
		payout,
		revenue,
		c.IngestedAt.UTC().Format(time.RFC3339),
	}
}

// ParseCallTime parses an upstream call_start_utc value. The platform sends
// RFC3339 but older payloads drop the zone suffix.
func ParseCallTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
