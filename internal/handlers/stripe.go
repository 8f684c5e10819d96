package handlers

import (
	"context"
	"fmt"

	"payhook/internal/constants"
	"payhook/internal/crm"
	"payhook/internal/events"
	"payhook/internal/orchestrator"
	"payhook/internal/provider"
	"payhook/internal/regions"
)

func requireStripe(deps Deps) (provider.Stripe, error) {
	if deps.Clients.Stripe == nil || deps.Clients.CRM == nil {
		return nil, regions.ErrMissingCredentials.
			WithMessage(fmt.Sprintf("region %s has no Stripe account configured", deps.Clients.Region)).
			WithDetail("region", deps.Clients.Region)
	}
	return deps.Clients.Stripe, nil
}

// stripeConstituent retrieves the Stripe customer, when there is one, and
// resolves its constituent. Customer-less payloads fall back to fallback.
func stripeConstituent(ctx context.Context, run *orchestrator.Run, deps Deps, customerID string, fallback crm.Person) (*provider.Customer, string, error) {
	var customer *provider.Customer
	person := fallback

	if customerID != "" {
		run.IDs.GatewayCustomerID = customerID
		c, err := orchestrator.Do(ctx, run, "retrieve customer", func(ctx context.Context) (*provider.Customer, error) {
			return deps.Clients.Stripe.GetCustomer(ctx, customerID)
		})
		if err != nil {
			return nil, "", err
		}
		customer = c
		person = mergePerson(personFromCustomer(c), fallback)
	}

	id, err := findOrCreateConstituent(ctx, run, deps.Clients.CRM, linkedConstituent(customer), person)
	if err != nil {
		return nil, "", err
	}
	return customer, id, nil
}

func mergePerson(primary, fallback crm.Person) crm.Person {
	if primary.Email == "" {
		primary.Email = fallback.Email
	}
	if primary.FirstName == "" && primary.LastName == "" {
		primary.FirstName, primary.LastName = fallback.FirstName, fallback.LastName
	}
	if primary.AddressLine1 == "" {
		primary.AddressLine1 = fallback.AddressLine1
		primary.Town = fallback.Town
		primary.PostalCode = fallback.PostalCode
		primary.Country = fallback.Country
	}
	if primary.Type == "" {
		primary.Type = fallback.Type
	}
	return primary
}

// linkCustomer stores the constituent id on a customer that lacks it.
func linkCustomer(ctx context.Context, run *orchestrator.Run, customer *provider.Customer, constituentID string, update func(ctx context.Context, id string, md map[string]string) error) error {
	if customer == nil || linkedConstituent(customer) != "" {
		return nil
	}
	return run.Step(ctx, "update customer metadata", func(ctx context.Context) error {
		return update(ctx, customer.ID, map[string]string{constants.ConstituentIDKey: constituentID})
	})
}

func HandleCheckout(ctx context.Context, deps Deps, evt events.Event) (Outcome, error) {
	run := orchestrator.New("checkout", evt.ID, deps.log())

	if evt.Stripe == nil || evt.Stripe.Checkout == nil {
		return Outcome{}, malformed(evt, "checkout session")
	}
	session := evt.Stripe.Checkout

	if session.PaymentStatus != "paid" && session.PaymentStatus != "no_payment_required" {
		return skipped(run, fmt.Sprintf("checkout session %s is %s", session.ID, session.PaymentStatus)), nil
	}

	stripeClient, err := requireStripe(deps)
	if err != nil {
		return Outcome{}, err
	}

	amount := session.AmountTotal
	md := session.Metadata
	if session.Mode == "payment" && session.PaymentIntent != "" {
		pi, err := orchestrator.Do(ctx, run, "retrieve payment intent", func(ctx context.Context) (*provider.PaymentIntent, error) {
			return stripeClient.GetPaymentIntent(ctx, session.PaymentIntent.String())
		})
		if err != nil {
			return Outcome{}, err
		}
		if pi.Amount > 0 {
			amount = pi.Amount
		}
		if len(md) == 0 {
			md = pi.Metadata
		}
	}

	first, last := provider.SplitName(session.CustomerDetails.Name)
	fallback := crm.Person{
		FirstName:    first,
		LastName:     last,
		Email:        session.Email(),
		AddressLine1: session.CustomerDetails.Address.Line1,
		Town:         session.CustomerDetails.Address.City,
		PostalCode:   session.CustomerDetails.Address.PostalCode,
		Country:      session.CustomerDetails.Address.Country,
		Type:         "Individual",
	}

	customer, constituentID, err := stripeConstituent(ctx, run, deps, session.Customer.String(), fallback)
	if err != nil {
		return Outcome{}, err
	}
	if err := linkCustomer(ctx, run, customer, constituentID, stripeClient.UpdateCustomerMetadata); err != nil {
		return Outcome{}, err
	}
	if err := syncEmailConsent(ctx, run, deps, constituentID, md); err != nil {
		return Outcome{}, err
	}

	campaign := campaignFor(deps.campaignDefault(), md)
	tag := constants.TagOneOffDonor
	notes := fmt.Sprintf("Checkout session %s", session.ID)

	if session.Mode == "subscription" {
		tag = constants.TagRegularDonor
		run.IDs.SubscriptionID = session.Subscription.String()
		notes = fmt.Sprintf("Regular gift checkout %s", session.ID)
	} else {
		txID, err := orchestrator.Do(ctx, run, "create transaction", func(ctx context.Context) (string, error) {
			return deps.Clients.CRM.CreateTransaction(ctx, withUTM(crm.Transaction{
				ConstituentID: constituentID,
				Amount:        majorUnits(amount),
				Campaign:      campaign,
				PaymentMethod: constants.PaymentMethodStripe,
				DatePaid:      dateFromUnix(session.Created),
			}, detailsFrom(md)))
		})
		if err != nil {
			return Outcome{}, err
		}
		run.IDs.TransactionID = txID
	}

	if err := run.Step(ctx, "add tags", func(ctx context.Context) error {
		return deps.Clients.CRM.AddActiveTags(ctx, constituentID, []string{tag})
	}); err != nil {
		return Outcome{}, err
	}

	if err := run.Step(ctx, "add activity", func(ctx context.Context) error {
		_, err := deps.Clients.CRM.AddActivity(ctx, crm.Activity{
			ConstituentID: constituentID,
			Type:          constants.ActivityOnlineDonation,
			Date:          dateFromUnix(session.Created),
			Campaign:      campaign,
			Notes:         notes,
			Number1:       fmt.Sprintf("%.2f", majorUnits(amount)),
		})
		return err
	}); err != nil {
		return Outcome{}, err
	}

	return completed(run, fmt.Sprintf("checkout session %s recorded", session.ID)), nil
}

func HandleSubscription(ctx context.Context, deps Deps, evt events.Event) (Outcome, error) {
	run := orchestrator.New("subscription", evt.ID, deps.log())

	if evt.Stripe == nil || evt.Stripe.Subscription == nil {
		return Outcome{}, malformed(evt, "subscription")
	}
	sub := evt.Stripe.Subscription
	run.IDs.SubscriptionID = sub.ID

	var activity string
	switch evt.Type {
	case events.StripeSubscriptionCreated:
		activity = constants.ActivityRegularGiftSetUp
	case events.StripeSubscriptionUpdated:
		if evt.Stripe.PreviousStatus == "" || evt.Stripe.PreviousStatus == sub.Status {
			return skipped(run, fmt.Sprintf("subscription %s status unchanged", sub.ID)), nil
		}
		activity = constants.ActivityRegularGiftUpdated
	case events.StripeSubscriptionDeleted:
		activity = constants.ActivityRegularGiftCancelled
	default:
		return ignored(run, fmt.Sprintf("unhandled subscription event %s", evt.Type)), nil
	}

	if _, err := requireStripe(deps); err != nil {
		return Outcome{}, err
	}

	_, constituentID, err := stripeConstituent(ctx, run, deps, sub.Customer.String(), crm.Person{Type: "Individual"})
	if err != nil {
		return Outcome{}, err
	}

	switch evt.Type {
	case events.StripeSubscriptionCreated:
		err = run.Step(ctx, "add tags", func(ctx context.Context) error {
			return deps.Clients.CRM.AddActiveTags(ctx, constituentID, []string{constants.TagRegularDonor})
		})
	case events.StripeSubscriptionDeleted:
		err = run.Step(ctx, "remove tag", func(ctx context.Context) error {
			return deps.Clients.CRM.RemoveTag(ctx, constituentID, constants.TagRegularDonor)
		})
	}
	if err != nil {
		return Outcome{}, err
	}

	notes := fmt.Sprintf("Subscription %s %s", sub.ID, sub.Status)
	if evt.Type == events.StripeSubscriptionUpdated {
		notes = fmt.Sprintf("Subscription %s changed from %s to %s", sub.ID, evt.Stripe.PreviousStatus, sub.Status)
	}

	if err := run.Step(ctx, "add activity", func(ctx context.Context) error {
		_, err := deps.Clients.CRM.AddActivity(ctx, crm.Activity{
			ConstituentID: constituentID,
			Type:          activity,
			Date:          dateFromUnix(sub.Created),
			Campaign:      campaignFor(deps.campaignDefault(), sub.Metadata),
			Notes:         notes,
			Code1:         sub.Interval(),
			Number1:       fmt.Sprintf("%.2f", majorUnits(sub.Amount())),
		})
		return err
	}); err != nil {
		return Outcome{}, err
	}

	return processed(run, fmt.Sprintf("subscription %s recorded", sub.ID)), nil
}

func HandleInvoice(ctx context.Context, deps Deps, evt events.Event) (Outcome, error) {
	run := orchestrator.New("invoice", evt.ID, deps.log())

	if evt.Type == events.StripeInvoicePaymentSucceeded {
		return ignored(run, "duplicate of invoice.paid"), nil
	}
	if evt.Stripe == nil || evt.Stripe.Invoice == nil {
		return Outcome{}, malformed(evt, "invoice")
	}
	inv := evt.Stripe.Invoice
	run.IDs.SubscriptionID = inv.SubscriptionID()

	if evt.Type == events.StripeInvoicePaid && inv.AmountPaid <= 0 {
		return skipped(run, fmt.Sprintf("invoice %s has nothing paid", inv.ID)), nil
	}
	if evt.Type != events.StripeInvoicePaid && evt.Type != events.StripeInvoicePaymentFailed {
		return ignored(run, fmt.Sprintf("unhandled invoice event %s", evt.Type)), nil
	}

	stripeClient, err := requireStripe(deps)
	if err != nil {
		return Outcome{}, err
	}

	first, last := provider.SplitName(inv.CustomerName)
	_, constituentID, err := stripeConstituent(ctx, run, deps, inv.Customer.String(), crm.Person{
		FirstName: first,
		LastName:  last,
		Email:     inv.CustomerEmail,
		Type:      "Individual",
	})
	if err != nil {
		return Outcome{}, err
	}

	if evt.Type == events.StripeInvoicePaymentFailed {
		if err := run.Step(ctx, "add activity", func(ctx context.Context) error {
			_, err := deps.Clients.CRM.AddActivity(ctx, crm.Activity{
				ConstituentID: constituentID,
				Type:          constants.ActivityRegularGiftFailed,
				Date:          dateFromUnix(inv.Created),
				Notes:         fmt.Sprintf("Invoice %s payment failed", inv.ID),
				Number1:       fmt.Sprintf("%.2f", majorUnits(inv.AmountDue)),
			})
			return err
		}); err != nil {
			return Outcome{}, err
		}
		return processed(run, fmt.Sprintf("invoice %s failure recorded", inv.ID)), nil
	}

	subMetadata := map[string]string{}
	if subID := inv.SubscriptionID(); subID != "" {
		sub, err := orchestrator.Do(ctx, run, "retrieve subscription", func(ctx context.Context) (*provider.Subscription, error) {
			return stripeClient.GetSubscription(ctx, subID)
		})
		if err != nil {
			return Outcome{}, err
		}
		subMetadata = sub.Metadata
	}

	campaign := campaignFor(deps.campaignDefault(), inv.Metadata, subMetadata)
	txID, err := orchestrator.Do(ctx, run, "create transaction", func(ctx context.Context) (string, error) {
		return deps.Clients.CRM.CreateTransaction(ctx, withUTM(crm.Transaction{
			ConstituentID: constituentID,
			Amount:        majorUnits(inv.AmountPaid),
			Campaign:      campaign,
			PaymentMethod: constants.PaymentMethodStripe,
			DatePaid:      dateFromUnix(inv.Created),
		}, detailsFrom(inv.Metadata, subMetadata)))
	})
	if err != nil {
		return Outcome{}, err
	}
	run.IDs.TransactionID = txID

	if err := run.Step(ctx, "add activity", func(ctx context.Context) error {
		_, err := deps.Clients.CRM.AddActivity(ctx, crm.Activity{
			ConstituentID: constituentID,
			Type:          constants.ActivityRegularGiftPayment,
			Date:          dateFromUnix(inv.Created),
			Campaign:      campaign,
			Notes:         fmt.Sprintf("Invoice %s paid", inv.ID),
			Number1:       fmt.Sprintf("%.2f", majorUnits(inv.AmountPaid)),
		})
		return err
	}); err != nil {
		return Outcome{}, err
	}

	return processed(run, fmt.Sprintf("invoice %s recorded", inv.ID)), nil
}
