package handlers

import (
	"context"
	"strings"

	"payhook/internal/constants"
	"payhook/internal/crm"
	"payhook/internal/metadata"
	"payhook/internal/orchestrator"
	"payhook/internal/provider"
)

func personFromCustomer(c *provider.Customer) crm.Person {
	if c == nil {
		return crm.Person{}
	}
	return crm.Person{
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Email:        c.Email,
		AddressLine1: c.AddressLine1,
		Town:         c.City,
		PostalCode:   c.PostalCode,
		Country:      c.CountryCode,
		Type:         "Individual",
	}
}

func linkedConstituent(c *provider.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Metadata[constants.ConstituentIDKey])
}

// findOrCreateConstituent returns the constituent linked to the customer,
// else the best duplicate-check match, else a newly created constituent.
// A matched constituent gets the customer's current address. The result is
// recorded on run.IDs.
func findOrCreateConstituent(ctx context.Context, run *orchestrator.Run, client crm.Client, linkedID string, person crm.Person) (string, error) {
	if linkedID != "" {
		run.IDs.ConstituentID = linkedID
		return linkedID, nil
	}

	if person.Email != "" {
		candidates, err := orchestrator.Do(ctx, run, "duplicate check", func(ctx context.Context) ([]crm.Candidate, error) {
			return client.DuplicateCheck(ctx, person)
		})
		if err != nil {
			return "", err
		}
		if match, ok := crm.BestMatch(candidates, constants.DuplicateMatchScore); ok {
			run.IDs.ConstituentID = match.ConstituentID
			if update, ok := addressUpdate(person); ok {
				err := run.Step(ctx, "update constituent", func(ctx context.Context) error {
					return client.UpdateConstituent(ctx, match.ConstituentID, update)
				})
				if err != nil {
					return "", err
				}
			}
			return match.ConstituentID, nil
		}
	}

	id, err := orchestrator.Do(ctx, run, "create constituent", func(ctx context.Context) (string, error) {
		return client.CreateConstituent(ctx, person)
	})
	if err != nil {
		return "", err
	}
	run.IDs.ConstituentID = id
	return id, nil
}

// addressUpdate keeps only the postal fields of person. ok is false when the
// customer carries no address.
func addressUpdate(person crm.Person) (crm.Person, bool) {
	update := crm.Person{
		AddressLine1: person.AddressLine1,
		Town:         person.Town,
		PostalCode:   person.PostalCode,
		Country:      person.Country,
	}
	return update, update.AddressLine1 != "" || update.PostalCode != ""
}

// campaignFor reads the campaign from the details payload, then a bare
// campaign key, across each metadata map in order.
func campaignFor(fallback string, sources ...map[string]string) string {
	for _, md := range sources {
		if d, ok := metadata.FromMetadata(md); ok && d.Campaign != "" {
			return d.Campaign
		}
		if c := strings.TrimSpace(md["campaign"]); c != "" {
			return c
		}
	}
	return fallback
}

func detailsFrom(sources ...map[string]string) metadata.Details {
	for _, md := range sources {
		if d, ok := metadata.FromMetadata(md); ok {
			return d
		}
	}
	return metadata.Details{}
}

func withUTM(tx crm.Transaction, d metadata.Details) crm.Transaction {
	tx.UTMSource = d.UTMSource
	tx.UTMMedium = d.UTMMedium
	tx.UTMCampaign = d.UTMCampaign
	return tx
}

// syncEmailConsent records an email opt-in unless the constituent already
// has an email preference. A slow preference lookup counts as "none
// recorded".
func syncEmailConsent(ctx context.Context, run *orchestrator.Run, deps Deps, constituentID string, md map[string]string) error {
	if !strings.EqualFold(md[constants.EmailOptInKey], "true") {
		return nil
	}

	prefs, err := orchestrator.Do(ctx, run, "get preferences", func(ctx context.Context) (*crm.Preferences, error) {
		return crm.LookupPreferences(ctx, deps.Clients.CRM, constituentID, deps.PreferenceTimeout)
	})
	if err != nil {
		return err
	}
	if _, recorded := prefs.Allowed(constants.PreferenceEmail); recorded {
		return nil
	}

	return run.Step(ctx, "update preferences", func(ctx context.Context) error {
		return deps.Clients.CRM.UpdatePreferences(ctx, constituentID, crm.Preferences{
			Items: []crm.Preference{{
				Type:    constants.PreferenceTypeChannel,
				Name:    constants.PreferenceEmail,
				Allowed: true,
			}},
		})
	})
}
