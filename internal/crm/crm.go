// Package crm is the adapter for the donor CRM that payment events are
// reconciled into.
package crm

import (
	"context"
	"net/http"

	"payhook/pkg/errors"
)

var ErrMissingID = errors.NewError("CRM_MISSING_ID", "CRM response did not include an id", http.StatusBadGateway)

type Client interface {
	DuplicateCheck(ctx context.Context, person Person) ([]Candidate, error)
	CreateConstituent(ctx context.Context, person Person) (string, error)
	UpdateConstituent(ctx context.Context, id string, person Person) error
	GetPreferences(ctx context.Context, constituentID string) (*Preferences, error)
	UpdatePreferences(ctx context.Context, constituentID string, prefs Preferences) error
	AddActivity(ctx context.Context, activity Activity) (string, error)
	AddActiveTags(ctx context.Context, constituentID string, tags []string) error
	RemoveTag(ctx context.Context, constituentID, tag string) error
	CreateTransaction(ctx context.Context, tx Transaction) (string, error)
	DeleteConstituent(ctx context.Context, constituentID string) error
	DeleteTransaction(ctx context.Context, transactionID string) error
}

type Person struct {
	Title        string `json:"Title,omitempty"`
	FirstName    string `json:"FirstName,omitempty"`
	LastName     string `json:"LastName,omitempty"`
	Email        string `json:"EmailAddress,omitempty"`
	AddressLine1 string `json:"AddressLine1,omitempty"`
	Town         string `json:"Town,omitempty"`
	PostalCode   string `json:"PostalCode,omitempty"`
	Country      string `json:"Country,omitempty"`
	Phone        string `json:"Phone1,omitempty"`
	Type         string `json:"ConstituentType,omitempty"`
}

type Candidate struct {
	ConstituentID string `json:"ConstituentId"`
	Score         int    `json:"Score"`
	Email         string `json:"EmailAddress"`
}

// BestMatch returns the highest scoring candidate at or above threshold.
func BestMatch(candidates []Candidate, threshold int) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.ConstituentID == "" || c.Score < threshold {
			continue
		}
		if !found || c.Score > best.Score {
			best, found = c, true
		}
	}
	return best, found
}

type Preference struct {
	Type    string `json:"PreferenceType"`
	Name    string `json:"PreferenceName"`
	Allowed bool   `json:"PreferenceAllowed"`
}

type Preferences struct {
	Items []Preference `json:"PreferencesList"`
}

// Allowed reports the consent recorded for channel, and whether one exists.
func (p *Preferences) Allowed(channel string) (allowed, ok bool) {
	if p == nil {
		return false, false
	}
	for _, item := range p.Items {
		if item.Name == channel {
			return item.Allowed, true
		}
	}
	return false, false
}

type Activity struct {
	ConstituentID string `json:"ExistingConstituentId"`
	Type          string `json:"ActivityType"`
	Date          string `json:"ActivityDate,omitempty"`
	Campaign      string `json:"Campaign,omitempty"`
	Notes         string `json:"Notes,omitempty"`
	Code1         string `json:"Code1,omitempty"`
	Code2         string `json:"Code2,omitempty"`
	Number1       string `json:"Number1,omitempty"`
}

type Transaction struct {
	ConstituentID string  `json:"ExistingConstituentId"`
	Amount        float64 `json:"Amount"`
	Campaign      string  `json:"Campaign"`
	PaymentMethod string  `json:"PaymentMethod"`
	Product       string  `json:"Product,omitempty"`
	Channel       string  `json:"Channel,omitempty"`
	DatePaid      string  `json:"DatePaid,omitempty"`
	Fund          string  `json:"Fund,omitempty"`
	UTMSource     string  `json:"UtmSource,omitempty"`
	UTMMedium     string  `json:"UtmMedium,omitempty"`
	UTMCampaign   string  `json:"UtmCampaign,omitempty"`
}
