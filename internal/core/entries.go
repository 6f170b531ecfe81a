package core

import (
	"fmt"
	"strings"
	"time"
)

// attribute names shared by both tables
const (
	AttrPK        = "pk"
	AttrState     = "state"
	AttrVersion   = "version"
	AttrUpdatedAt = "updated_at"
	AttrRevision  = "revision"
)

// platform states attributes
const (
	AttrConsumerEService          = "consumer_eservice"
	AttrAgreementTimestamp        = "agreement_timestamp"
	AttrAgreementDescriptorID     = "agreement_descriptor_id"
	AttrDescriptorAudience        = "descriptor_audience"
	AttrDescriptorVoucherLifespan = "descriptor_voucher_lifespan"
	AttrClientKind                = "client_kind"
	AttrClientConsumerID          = "client_consumer_id"
	AttrClientPurposesIDs         = "client_purposes_ids"
	AttrClientKeys                = "client_keys"
	AttrPurposeVersionID          = "purpose_version_id"
	AttrPurposeEServiceID         = "purpose_eservice_id"
	AttrPurposeConsumerID         = "purpose_consumer_id"
)

// token generation states attributes
const (
	AttrConsumerID            = "consumer_id"
	AttrPublicKey             = "public_key"
	AttrGSIClient             = "gsi_client"
	AttrGSIKid                = "gsi_kid"
	AttrGSIClientPurpose      = "gsi_client_purpose"
	AttrGSIConsumerEService   = "gsi_consumer_eservice"
	AttrGSIEServiceDescriptor = "gsi_eservice_descriptor"
	AttrGSIPurpose            = "gsi_purpose"
	AttrAgreementID           = "agreement_id"
	AttrAgreementState        = "agreement_state"
	AttrDescriptorState       = "descriptor_state"
	AttrPurposeState          = "purpose_state"
)

// TimestampLayout is fixed-width so that stored timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// PlatformStatesEntry holds the attributes common to every tracked aggregate.
type PlatformStatesEntry struct {
	PK        string    `mapstructure:"pk"`
	State     ItemState `mapstructure:"state"`
	Version   int64     `mapstructure:"version"`
	UpdatedAt time.Time `mapstructure:"updated_at"`

	// Revision counts the conditional writes of the row. It is maintained by
	// the table and never encoded by ToItem.
	Revision int64 `mapstructure:"revision"`
}

// ToItem encodes only the common attributes.
func (e PlatformStatesEntry) ToItem() Item {
	return Item{
		AttrPK:        e.PK,
		AttrState:     string(e.State),
		AttrVersion:   e.Version,
		AttrUpdatedAt: FormatTimestamp(e.UpdatedAt),
	}
}

func (e PlatformStatesEntry) Validate() error {
	if e.PK == "" {
		return fmt.Errorf("missing %s", AttrPK)
	}
	if !e.State.IsValid() {
		return fmt.Errorf("invalid %s '%s'", AttrState, e.State)
	}
	if e.Version < 0 {
		return fmt.Errorf("negative %s %d", AttrVersion, e.Version)
	}
	return nil
}

// AgreementEntry is the platform state of one agreement.
type AgreementEntry struct {
	PlatformStatesEntry `mapstructure:",squash"`

	// ConsumerEService is the partition key of the agreement-by-consumer-eservice index.
	ConsumerEService string `mapstructure:"consumer_eservice"`

	// AgreementTimestamp is the sort key of that index, see FormatTimestamp.
	AgreementTimestamp string `mapstructure:"agreement_timestamp"`

	DescriptorID string `mapstructure:"agreement_descriptor_id"`
}

func (e AgreementEntry) ToItem() Item {
	item := e.PlatformStatesEntry.ToItem()
	item[AttrConsumerEService] = e.ConsumerEService
	item[AttrAgreementTimestamp] = e.AgreementTimestamp
	item[AttrAgreementDescriptorID] = e.DescriptorID
	return item
}

func (e AgreementEntry) Validate() error {
	if err := e.PlatformStatesEntry.Validate(); err != nil {
		return err
	}
	if e.ConsumerEService == "" || e.DescriptorID == "" {
		return fmt.Errorf("agreement entry without consumer/e-service or descriptor")
	}
	return nil
}

// CatalogEntry is the platform state of one e-service descriptor.
type CatalogEntry struct {
	PlatformStatesEntry `mapstructure:",squash"`

	DescriptorAudience        []string `mapstructure:"descriptor_audience"`
	DescriptorVoucherLifespan int64    `mapstructure:"descriptor_voucher_lifespan"`
}

func (e CatalogEntry) ToItem() Item {
	item := e.PlatformStatesEntry.ToItem()
	item[AttrDescriptorAudience] = stringsOrEmpty(e.DescriptorAudience)
	item[AttrDescriptorVoucherLifespan] = e.DescriptorVoucherLifespan
	return item
}

func (e CatalogEntry) Validate() error {
	return e.PlatformStatesEntry.Validate()
}

// ClientEntry is the platform state of one authorization client.
type ClientEntry struct {
	PlatformStatesEntry `mapstructure:",squash"`

	ClientKind  ClientKind `mapstructure:"client_kind"`
	ConsumerID  string     `mapstructure:"client_consumer_id"`
	PurposesIDs []string   `mapstructure:"client_purposes_ids"`

	// Keys is the key set of the last applied event, the source the token
	// generation rows of the client are rebuilt from.
	Keys []ClientKeyEntry `mapstructure:"client_keys"`
}

// ClientKeyEntry is one public key of a client.
type ClientKeyEntry struct {
	Kid       string `mapstructure:"kid"`
	PublicKey string `mapstructure:"public_key"`
}

func (e ClientEntry) ToItem() Item {
	item := e.PlatformStatesEntry.ToItem()
	item[AttrClientKind] = string(e.ClientKind)
	item[AttrClientConsumerID] = e.ConsumerID
	item[AttrClientPurposesIDs] = stringsOrEmpty(e.PurposesIDs)
	keys := make([]any, 0, len(e.Keys))
	for _, k := range e.Keys {
		keys = append(keys, map[string]any{"kid": k.Kid, AttrPublicKey: k.PublicKey})
	}
	item[AttrClientKeys] = keys
	return item
}

func (e ClientEntry) Validate() error {
	if err := e.PlatformStatesEntry.Validate(); err != nil {
		return err
	}
	if !e.ClientKind.IsValid() {
		return fmt.Errorf("invalid %s '%s'", AttrClientKind, e.ClientKind)
	}
	return nil
}

// PurposeEntry is the platform state of one purpose.
type PurposeEntry struct {
	PlatformStatesEntry `mapstructure:",squash"`

	VersionID  string `mapstructure:"purpose_version_id"`
	EServiceID string `mapstructure:"purpose_eservice_id"`
	ConsumerID string `mapstructure:"purpose_consumer_id"`
}

func (e PurposeEntry) ToItem() Item {
	item := e.PlatformStatesEntry.ToItem()
	item[AttrPurposeVersionID] = e.VersionID
	item[AttrPurposeEServiceID] = e.EServiceID
	item[AttrPurposeConsumerID] = e.ConsumerID
	return item
}

func (e PurposeEntry) Validate() error {
	if err := e.PlatformStatesEntry.Validate(); err != nil {
		return err
	}
	if e.EServiceID == "" || e.ConsumerID == "" {
		return fmt.Errorf("purpose entry without e-service or consumer")
	}
	return nil
}

// TokenGenerationEntry denormalizes everything needed to validate a token request
// for one client key, optionally bound to one purpose.
// Empty strings mean the attribute was never written.
type TokenGenerationEntry struct {
	PK        string    `mapstructure:"pk"`
	UpdatedAt time.Time `mapstructure:"updated_at"`

	ConsumerID string     `mapstructure:"consumer_id"`
	ClientKind ClientKind `mapstructure:"client_kind"`
	PublicKey  string     `mapstructure:"public_key"`

	GSIClient             string `mapstructure:"gsi_client"`
	GSIKid                string `mapstructure:"gsi_kid"`
	GSIClientPurpose      string `mapstructure:"gsi_client_purpose"`
	GSIConsumerEService   string `mapstructure:"gsi_consumer_eservice"`
	GSIEServiceDescriptor string `mapstructure:"gsi_eservice_descriptor"`
	GSIPurpose            string `mapstructure:"gsi_purpose"`

	AgreementID               string    `mapstructure:"agreement_id"`
	AgreementState            ItemState `mapstructure:"agreement_state"`
	DescriptorState           ItemState `mapstructure:"descriptor_state"`
	DescriptorAudience        []string  `mapstructure:"descriptor_audience"`
	DescriptorVoucherLifespan int64     `mapstructure:"descriptor_voucher_lifespan"`
	PurposeVersionID          string    `mapstructure:"purpose_version_id"`
	PurposeState              ItemState `mapstructure:"purpose_state"`
}

// ToItem encodes the entry, leaving out attributes that were never set so that
// sparse secondary indexes stay sparse.
func (e TokenGenerationEntry) ToItem() Item {
	item := Item{
		AttrPK:        e.PK,
		AttrUpdatedAt: FormatTimestamp(e.UpdatedAt),
	}
	putString := func(attr, v string) {
		if v != "" {
			item[attr] = v
		}
	}
	putString(AttrConsumerID, e.ConsumerID)
	putString(AttrClientKind, string(e.ClientKind))
	putString(AttrPublicKey, e.PublicKey)
	putString(AttrGSIClient, e.GSIClient)
	putString(AttrGSIKid, e.GSIKid)
	putString(AttrGSIClientPurpose, e.GSIClientPurpose)
	putString(AttrGSIConsumerEService, e.GSIConsumerEService)
	putString(AttrGSIEServiceDescriptor, e.GSIEServiceDescriptor)
	putString(AttrGSIPurpose, e.GSIPurpose)
	putString(AttrAgreementID, e.AgreementID)
	putString(AttrAgreementState, string(e.AgreementState))
	putString(AttrDescriptorState, string(e.DescriptorState))
	putString(AttrPurposeVersionID, e.PurposeVersionID)
	putString(AttrPurposeState, string(e.PurposeState))
	if len(e.DescriptorAudience) > 0 {
		item[AttrDescriptorAudience] = e.DescriptorAudience
	}
	if e.DescriptorVoucherLifespan > 0 {
		item[AttrDescriptorVoucherLifespan] = e.DescriptorVoucherLifespan
	}
	return item
}

func (e TokenGenerationEntry) Validate() error {
	if e.PK == "" {
		return fmt.Errorf("missing %s", AttrPK)
	}
	if _, err := ParseTokenGenerationPK(e.PK); err != nil {
		return err
	}
	if !e.ClientKind.IsValid() {
		return fmt.Errorf("invalid %s '%s'", AttrClientKind, e.ClientKind)
	}
	for attr, s := range map[string]ItemState{
		AttrAgreementState:  e.AgreementState,
		AttrDescriptorState: e.DescriptorState,
		AttrPurposeState:    e.PurposeState,
	} {
		if s != "" && !s.IsValid() {
			return fmt.Errorf("invalid %s '%s'", attr, s)
		}
	}
	return nil
}

// Key returns the decomposed primary key.
func (e TokenGenerationEntry) Key() TokenGenerationKey {
	k, _ := ParseTokenGenerationPK(e.PK)
	return k
}

// AgreementIDFromPK strips the AGREEMENT prefix.
func AgreementIDFromPK(pk string) string {
	return strings.TrimPrefix(pk, PrefixAgreement+keySeparator)
}

// HasDescriptorInfo reports whether descriptor attributes were ever propagated.
func (e TokenGenerationEntry) HasDescriptorInfo() bool {
	return e.GSIEServiceDescriptor != "" && e.DescriptorState != ""
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
