// Package metadata serializes donation details into the single string value
// that payment providers accept as mandate metadata, trimming optional fields
// until it fits the provider's length ceiling.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf16"

	"payhook/internal/constants"
	"payhook/pkg/errors"
	"payhook/pkg/metrics"
)

var ErrBudgetExceeded = errors.NewError("METADATA_BUDGET_EXCEEDED", "metadata exceeds the provider size limit", http.StatusBadRequest)

// Details is the donation context carried from the donation form to the
// payment webhooks. Core fields are always serialized.
type Details struct {
	Currency  string `json:"currency"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Amount    string `json:"amount"`
	Frequency string `json:"frequency"`
	Campaign  string `json:"campaign,omitempty"`

	UTMSource           string `json:"utmSource,omitempty"`
	UTMMedium           string `json:"utmMedium,omitempty"`
	UTMCampaign         string `json:"utmCampaign,omitempty"`
	InspirationDetails  string `json:"inspirationDetails,omitempty"`
	InspirationQuestion string `json:"inspirationQuestion,omitempty"`
}

type group struct {
	name  string
	empty func(Details) bool
	drop  func(*Details)
}

// trimOrder lists the optional groups from first to last removed.
var trimOrder = []group{
	{
		name:  "utm",
		empty: func(d Details) bool { return d.UTMSource == "" && d.UTMMedium == "" && d.UTMCampaign == "" },
		drop:  func(d *Details) { d.UTMSource, d.UTMMedium, d.UTMCampaign = "", "", "" },
	},
	{
		name:  "inspirationDetails",
		empty: func(d Details) bool { return d.InspirationDetails == "" },
		drop:  func(d *Details) { d.InspirationDetails = "" },
	},
	{
		name:  "inspirationQuestion",
		empty: func(d Details) bool { return d.InspirationQuestion == "" },
		drop:  func(d *Details) { d.InspirationQuestion = "" },
	},
}

// Encode serializes d without HTML escaping so that the measured length
// matches what the provider stores.
func Encode(d Details) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("failed to encode metadata details: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func Decode(s string) (Details, error) {
	var d Details
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Details{}, fmt.Errorf("failed to decode metadata details: %w", err)
	}
	return d, nil
}

// FromMetadata reads Details from a provider metadata map. ok is false when
// the key is missing or holds something other than Details JSON.
func FromMetadata(md map[string]string) (Details, bool) {
	raw, found := md[constants.MetadataDetailsKey]
	if !found || raw == "" {
		return Details{}, false
	}
	d, err := Decode(raw)
	if err != nil {
		return Details{}, false
	}
	return d, true
}

// Length counts UTF-16 code units, the unit GoCardless applies its metadata
// ceiling in. Characters outside the BMP, such as emoji, count twice.
func Length(s string) int {
	n := 0
	for _, r := range s {
		if size := utf16.RuneLen(r); size > 0 {
			n += size
		} else {
			n++
		}
	}
	return n
}

// Budget returns the serialization of d that fits within ceiling characters,
// dropping optional groups in trimOrder until it does. The input is never
// modified. A ceiling of zero or less means the default ceiling.
func Budget(d Details, ceiling int) (Details, string, error) {
	if ceiling <= 0 {
		ceiling = constants.DefaultMetadataCeiling
	}

	current := d
	encoded, err := Encode(current)
	if err != nil {
		return Details{}, "", err
	}

	for _, g := range trimOrder {
		if Length(encoded) <= ceiling {
			return current, encoded, nil
		}
		if g.empty(current) {
			continue
		}
		g.drop(&current)
		metrics.IncMetadataTrim(g.name)

		encoded, err = Encode(current)
		if err != nil {
			return Details{}, "", err
		}
	}

	if n := Length(encoded); n > ceiling {
		return Details{}, "", ErrBudgetExceeded.
			WithMessage(fmt.Sprintf("metadata is %d characters after trimming, limit is %d", n, ceiling)).
			WithDetail("length", n).
			WithDetail("limit", ceiling)
	}

	return current, encoded, nil
}
