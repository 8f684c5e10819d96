package handlers

import (
	"context"
	"fmt"
	"strings"

	"payhook/internal/constants"
	"payhook/internal/crm"
	"payhook/internal/events"
	"payhook/internal/ledger"
	"payhook/internal/orchestrator"
	"payhook/internal/provider"
	"payhook/internal/regions"
)

func requireGoCardless(deps Deps) (provider.GoCardless, error) {
	if deps.Clients.GoCardless == nil || deps.Clients.CRM == nil {
		return nil, regions.ErrMissingCredentials.
			WithMessage(fmt.Sprintf("region %s has no GoCardless account configured", deps.Clients.Region)).
			WithDetail("region", deps.Clients.Region)
	}
	return deps.Clients.GoCardless, nil
}

// mandateConstituent walks mandate -> customer -> constituent.
func mandateConstituent(ctx context.Context, run *orchestrator.Run, deps Deps, gc provider.GoCardless, mandateID string) (*provider.Mandate, *provider.Customer, string, error) {
	mandate, err := orchestrator.Do(ctx, run, "retrieve mandate", func(ctx context.Context) (*provider.Mandate, error) {
		return gc.GetMandate(ctx, mandateID)
	})
	if err != nil {
		return nil, nil, "", err
	}

	customerID := mandate.Links.Customer
	run.IDs.GatewayCustomerID = customerID
	customer, err := orchestrator.Do(ctx, run, "retrieve customer", func(ctx context.Context) (*provider.Customer, error) {
		return gc.GetCustomer(ctx, customerID)
	})
	if err != nil {
		return nil, nil, "", err
	}

	id, err := findOrCreateConstituent(ctx, run, deps.Clients.CRM, linkedConstituent(customer), personFromCustomer(customer))
	if err != nil {
		return nil, nil, "", err
	}
	return mandate, customer, id, nil
}

func HandlePayment(ctx context.Context, deps Deps, evt events.Event) (Outcome, error) {
	run := orchestrator.New("payment", evt.ID, deps.log())

	if evt.GoCardless == nil {
		return Outcome{}, malformed(evt, "GoCardless event")
	}
	gcEvent := evt.GoCardless

	var activity string
	switch gcEvent.Action {
	case events.ActionConfirmed:
		activity = constants.ActivityDirectDebitPayment
	case events.ActionPaidOut:
		activity = constants.ActivityDirectDebitPaidOut
	case events.ActionFailed:
		activity = constants.ActivityDirectDebitFailed
	default:
		return ignored(run, fmt.Sprintf("payment action %s is not handled", gcEvent.Action)), nil
	}

	if gcEvent.Links.Payment == "" {
		return Outcome{}, malformed(evt, "payment link")
	}

	gc, err := requireGoCardless(deps)
	if err != nil {
		return Outcome{}, err
	}

	payment, err := orchestrator.Do(ctx, run, "retrieve payment", func(ctx context.Context) (*provider.Payment, error) {
		return gc.GetPayment(ctx, gcEvent.Links.Payment)
	})
	if err != nil {
		return Outcome{}, err
	}
	run.IDs.SubscriptionID = payment.Links.Subscription

	// Outside production every payment is processed.
	if payment.Links.Subscription == "" && deps.Production {
		return done(run, ledger.StatusSkipped, EventNA, fmt.Sprintf("payment %s is not part of a subscription", payment.ID)), nil
	}

	mandateID := payment.Links.Mandate
	if mandateID == "" {
		mandateID = gcEvent.Links.Mandate
	}
	mandate, _, constituentID, err := mandateConstituent(ctx, run, deps, gc, mandateID)
	if err != nil {
		return Outcome{}, err
	}

	campaign := campaignFor(deps.campaignDefault(), payment.Metadata, mandate.Metadata)

	if gcEvent.Action == events.ActionConfirmed {
		txID, err := orchestrator.Do(ctx, run, "create transaction", func(ctx context.Context) (string, error) {
			return deps.Clients.CRM.CreateTransaction(ctx, withUTM(crm.Transaction{
				ConstituentID: constituentID,
				Amount:        majorUnits(payment.Amount),
				Campaign:      campaign,
				PaymentMethod: constants.PaymentMethodGoCardless,
				DatePaid:      payment.ChargeDate,
			}, detailsFrom(payment.Metadata, mandate.Metadata)))
		})
		if err != nil {
			return Outcome{}, err
		}
		run.IDs.TransactionID = txID
	}

	notes := fmt.Sprintf("Payment %s %s", payment.ID, gcEvent.Action)
	if cause := strings.TrimSpace(gcEvent.Details.Description); cause != "" {
		notes += ": " + cause
	}

	if err := run.Step(ctx, "add activity", func(ctx context.Context) error {
		_, err := deps.Clients.CRM.AddActivity(ctx, crm.Activity{
			ConstituentID: constituentID,
			Type:          activity,
			Date:          payment.ChargeDate,
			Campaign:      campaign,
			Notes:         notes,
			Code1:         gcEvent.Details.Cause,
			Number1:       fmt.Sprintf("%.2f", majorUnits(payment.Amount)),
		})
		return err
	}); err != nil {
		return Outcome{}, err
	}

	return processed(run, fmt.Sprintf("payment %s %s recorded", payment.ID, gcEvent.Action)), nil
}

func HandleMandate(ctx context.Context, deps Deps, evt events.Event) (Outcome, error) {
	run := orchestrator.New("mandate", evt.ID, deps.log())

	if evt.GoCardless == nil {
		return Outcome{}, malformed(evt, "GoCardless event")
	}
	gcEvent := evt.GoCardless

	setUp := false
	switch gcEvent.Action {
	case events.ActionCreated:
		setUp = true
	case events.ActionCancelled, events.ActionFailed, events.ActionExpired:
	default:
		return ignored(run, fmt.Sprintf("mandate action %s is not handled", gcEvent.Action)), nil
	}

	if gcEvent.Links.Mandate == "" {
		return Outcome{}, malformed(evt, "mandate link")
	}

	gc, err := requireGoCardless(deps)
	if err != nil {
		return Outcome{}, err
	}

	mandate, customer, constituentID, err := mandateConstituent(ctx, run, deps, gc, gcEvent.Links.Mandate)
	if err != nil {
		return Outcome{}, err
	}

	activity := constants.ActivityMandateCancelled
	if setUp {
		activity = constants.ActivityMandateSetUp
		if err := run.Step(ctx, "add tags", func(ctx context.Context) error {
			return deps.Clients.CRM.AddActiveTags(ctx, constituentID, []string{constants.TagDirectDebit})
		}); err != nil {
			return Outcome{}, err
		}
	} else {
		if err := run.Step(ctx, "remove tag", func(ctx context.Context) error {
			return deps.Clients.CRM.RemoveTag(ctx, constituentID, constants.TagDirectDebit)
		}); err != nil {
			return Outcome{}, err
		}
	}

	notes := fmt.Sprintf("Mandate %s %s", mandate.ID, gcEvent.Action)
	if cause := strings.TrimSpace(gcEvent.Details.Description); cause != "" {
		notes += ": " + cause
	}

	if err := run.Step(ctx, "add activity", func(ctx context.Context) error {
		_, err := deps.Clients.CRM.AddActivity(ctx, crm.Activity{
			ConstituentID: constituentID,
			Type:          activity,
			Campaign:      campaignFor(deps.campaignDefault(), mandate.Metadata),
			Notes:         notes,
			Code1:         mandate.Scheme,
			Code2:         gcEvent.Details.Cause,
		})
		return err
	}); err != nil {
		return Outcome{}, err
	}

	if setUp {
		if err := linkCustomer(ctx, run, customer, constituentID, gc.UpdateCustomerMetadata); err != nil {
			return Outcome{}, err
		}
	}

	return processed(run, fmt.Sprintf("mandate %s %s recorded", mandate.ID, gcEvent.Action)), nil
}
