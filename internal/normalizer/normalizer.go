// Package normalizer validates and canonicalizes inbound call events before
// they touch any shared state. Normalization is pure: same payload in, same
// call out.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/callrelay-systems/callrelay/internal/models"
)

var (
	// ErrInvalid marks payloads that cannot be normalized (missing or short
	// destination number). Not retriable.
	ErrInvalid = errors.New("invalid call event")

	// ErrFiltered marks events whose campaign is not on the configured
	// allow-list.
	ErrFiltered = errors.New("campaign filtered")
)

// didDigits is the canonical DID length: the last 10 digits of the raw number.
const didDigits = 10

// NormalizeDID strips every non-digit character and keeps the last 10 digits.
// Fewer than 10 digits is a validation failure. Already-normalized input maps
// to itself.
func NormalizeDID(raw string) (string, error) {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) < didDigits {
		return "", fmt.Errorf("%w: number has %d digits, need %d", ErrInvalid, len(digits), didDigits)
	}
	return string(digits[len(digits)-didDigits:]), nil
}

// AllowSet converts a configured campaign list into a lookup set. Empty and
// blank entries are dropped; an empty result disables filtering.
func AllowSet(campaigns []string) map[string]struct{} {
	set := make(map[string]struct{}, len(campaigns))
	for _, c := range campaigns {
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// Normalize turns a webhook payload into a Call or fails with ErrInvalid or
// ErrFiltered. When the platform omits call_id, a stable key is synthesized
// from the canonical number, a minute-bucketed start time, and the campaign so
// that redeliveries of the same logical event collapse to one key.
func Normalize(p *models.WebhookPayload, allow map[string]struct{}) (*models.Call, error) {
	did, err := NormalizeDID(p.DID)
	if err != nil {
		return nil, err
	}

	campaign := p.Campaign()
	if len(allow) > 0 {
		if _, ok := allow[campaign]; !ok {
			return nil, fmt.Errorf("%w: %q not in allow-list", ErrFiltered, campaign)
		}
	}

	now := time.Now().UTC()
	start, ok := models.ParseCallTime(p.CallStartUTC)
	if !ok {
		start = now
	}

	id := p.CallID
	if id == "" {
		id = synthesizeKey(did, start, campaign)
	}

	return &models.Call{
		ID:            id,
		StartUTC:      start,
		DIDRaw:        p.DID,
		DID:           did,
		CallerID:      p.CallerID,
		DurationSec:   p.DurationSec,
		Disposition:   p.Disposition,
		Campaign:      campaign,
		Target:        p.Target,
		PublisherID:   p.PublisherID,
		PublisherName: p.PublisherName,
		Payout:        p.Payout,
		Revenue:       p.Revenue,
		IngestedAt:    now,
	}, nil
}

func synthesizeKey(did string, start time.Time, campaign string) string {
	bucket := start.Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(did + "|" + bucket + "|" + campaign))
	return "synth-" + hex.EncodeToString(sum[:12])
}
