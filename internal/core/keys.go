package core

import (
	"fmt"
	"strings"
)

const keySeparator = "#"

// primary key prefixes
const (
	PrefixAgreement          = "AGREEMENT"
	PrefixEServiceDescriptor = "ESERVICEDESCRIPTOR"
	PrefixClient             = "CLIENT"
	PrefixPurpose            = "PURPOSE"
	PrefixClientKid          = "CLIENTKID"
	PrefixClientKidPurpose   = "CLIENTKIDPURPOSE"
)

func joinKey(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

func AgreementPK(agreementID string) string {
	return joinKey(PrefixAgreement, agreementID)
}

func EServiceDescriptorPK(eserviceID, descriptorID string) string {
	return joinKey(PrefixEServiceDescriptor, eserviceID, descriptorID)
}

func ClientPK(clientID string) string {
	return joinKey(PrefixClient, clientID)
}

func PurposePK(purposeID string) string {
	return joinKey(PrefixPurpose, purposeID)
}

func ClientKidPK(clientID, kid string) string {
	return joinKey(PrefixClientKid, clientID, kid)
}

func ClientKidPurposePK(clientID, kid, purposeID string) string {
	return joinKey(PrefixClientKidPurpose, clientID, kid, purposeID)
}

// TokenGenerationPK picks the purpose-bound key shape when a purpose is given.
func TokenGenerationPK(clientID, kid, purposeID string) string {
	if purposeID == "" {
		return ClientKidPK(clientID, kid)
	}
	return ClientKidPurposePK(clientID, kid, purposeID)
}

// secondary index keys

func ConsumerEServiceKey(consumerID, eserviceID string) string {
	return joinKey(consumerID, eserviceID)
}

func EServiceDescriptorKey(eserviceID, descriptorID string) string {
	return joinKey(eserviceID, descriptorID)
}

func ClientPurposeKey(clientID, purposeID string) string {
	return joinKey(clientID, purposeID)
}

// TokenGenerationKey is the decomposed primary key of a token generation entry.
type TokenGenerationKey struct {
	ClientID  string
	Kid       string
	PurposeID string
}

// IsPurposeBound reports whether the key was a CLIENTKIDPURPOSE key.
func (k TokenGenerationKey) IsPurposeBound() bool {
	return k.PurposeID != ""
}

func (k TokenGenerationKey) String() string {
	return TokenGenerationPK(k.ClientID, k.Kid, k.PurposeID)
}

// ParseTokenGenerationPK splits a CLIENTKID or CLIENTKIDPURPOSE key.
func ParseTokenGenerationPK(pk string) (TokenGenerationKey, error) {
	parts := strings.Split(pk, keySeparator)
	switch {
	case len(parts) == 3 && parts[0] == PrefixClientKid:
		return TokenGenerationKey{ClientID: parts[1], Kid: parts[2]}, nil
	case len(parts) == 4 && parts[0] == PrefixClientKidPurpose:
		return TokenGenerationKey{ClientID: parts[1], Kid: parts[2], PurposeID: parts[3]}, nil
	default:
		return TokenGenerationKey{}, fmt.Errorf("%w: malformed token generation key '%s'", ErrCorruptRecord, pk)
	}
}

// ParseEServiceDescriptorPK returns the e-service and descriptor ids of a catalog key.
func ParseEServiceDescriptorPK(pk string) (eserviceID, descriptorID string, err error) {
	parts := strings.Split(pk, keySeparator)
	if len(parts) != 3 || parts[0] != PrefixEServiceDescriptor {
		return "", "", fmt.Errorf("%w: malformed e-service descriptor key '%s'", ErrCorruptRecord, pk)
	}
	return parts[1], parts[2], nil
}

// SplitEServiceDescriptorKey splits a gsi_eservice_descriptor value.
func SplitEServiceDescriptorKey(key string) (eserviceID, descriptorID string, ok bool) {
	eserviceID, descriptorID, ok = strings.Cut(key, keySeparator)
	return eserviceID, descriptorID, ok && eserviceID != "" && descriptorID != ""
}

// SplitConsumerEServiceKey splits a consumer/e-service index value.
func SplitConsumerEServiceKey(key string) (consumerID, eserviceID string, ok bool) {
	consumerID, eserviceID, ok = strings.Cut(key, keySeparator)
	return consumerID, eserviceID, ok && consumerID != "" && eserviceID != ""
}
