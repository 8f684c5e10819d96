package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout      = 10 * time.Second
	PreferenceLookupTimeout = 2 * time.Second
	DefaultMaxBodyBytes     = 1 << 20
)

const (
	LockKeyPrefix         = "payhook:lock:"
	DefaultLockTTLSeconds = 300
)

const (
	DefaultAlertsTopic = "payhook.alerts"
	DefaultReplayTopic = "payhook.replay"
	// NotifyTimeout bounds one alert publish including its retries.
	NotifyTimeout = 15 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	// DefaultCampaign is recorded on CRM transactions whose payment carries no campaign.
	DefaultCampaign        = "General Fund"
	DefaultMetadataCeiling = 500
	MetadataDetailsKey     = "details"
	DuplicateMatchScore    = 15
)

const (
	PaymentMethodStripe     = "Stripe"
	PaymentMethodGoCardless = "GoCardless Direct Debit"
)

// CRM tags.
const (
	TagOneOffDonor  = "Donation_OneOff"
	TagRegularDonor = "Donation_Regular"
	TagDirectDebit  = "Donation_DirectDebit"
)

// CRM activity types.
const (
	ActivityOnlineDonation       = "Online Donation"
	ActivityRegularGiftSetUp     = "Regular Gift Set Up"
	ActivityRegularGiftUpdated   = "Regular Gift Updated"
	ActivityRegularGiftCancelled = "Regular Gift Cancelled"
	ActivityRegularGiftPayment   = "Regular Gift Payment"
	ActivityRegularGiftFailed    = "Regular Gift Payment Failed"
	ActivityDirectDebitPayment   = "Direct Debit Payment"
	ActivityDirectDebitPaidOut   = "Direct Debit Paid Out"
	ActivityDirectDebitFailed    = "Direct Debit Payment Failed"
	ActivityMandateSetUp         = "Direct Debit Mandate Set Up"
	ActivityMandateCancelled     = "Direct Debit Mandate Cancelled"
)

const (
	// ConstituentIDKey is the provider customer metadata key linking a
	// customer to its CRM constituent.
	ConstituentIDKey      = "constituentId"
	EmailOptInKey         = "emailOptIn"
	PreferenceEmail       = "Email"
	PreferenceTypeChannel = "Channel"
)

const (
	ServiceName = "payhook-service"
)
