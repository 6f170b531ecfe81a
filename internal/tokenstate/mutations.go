package tokenstate

import "github.com/pagopa/interop-platform-state/internal/core"

// SetAgreementState propagates a new agreement state.
func SetAgreementState(state core.ItemState) Mutation {
	return func(core.TokenGenerationEntry) core.Item {
		return core.Item{core.AttrAgreementState: string(state)}
	}
}

// AgreementInfo is the agreement side of a token row.
type AgreementInfo struct {
	AgreementID  string
	State        core.ItemState
	EServiceID   string
	DescriptorID string
}

// SetAgreementAndDescriptor propagates the agreement together with the
// descriptor it currently points to. catalog may be nil when the descriptor
// is not (yet) tracked; the descriptor state attributes are then left as they are.
func SetAgreementAndDescriptor(agreement AgreementInfo, catalog *core.CatalogEntry) Mutation {
	return func(core.TokenGenerationEntry) core.Item {
		attrs := core.Item{
			core.AttrAgreementID:           agreement.AgreementID,
			core.AttrAgreementState:        string(agreement.State),
			core.AttrGSIEServiceDescriptor: core.EServiceDescriptorKey(agreement.EServiceID, agreement.DescriptorID),
		}
		if catalog != nil {
			for k, v := range descriptorAttrs(catalog.State, catalog.DescriptorAudience, catalog.DescriptorVoucherLifespan) {
				attrs[k] = v
			}
		}
		return attrs
	}
}

// SetDescriptorState propagates a new descriptor state only.
func SetDescriptorState(state core.ItemState) Mutation {
	return func(core.TokenGenerationEntry) core.Item {
		return core.Item{core.AttrDescriptorState: string(state)}
	}
}

// SetDescriptorInfo propagates state, audience and voucher lifespan of a descriptor.
func SetDescriptorInfo(catalog core.CatalogEntry) Mutation {
	return func(core.TokenGenerationEntry) core.Item {
		return descriptorAttrs(catalog.State, catalog.DescriptorAudience, catalog.DescriptorVoucherLifespan)
	}
}

// SetPurposeState propagates a purpose state and its current version.
// An empty versionID leaves the stored version as it is.
func SetPurposeState(state core.ItemState, versionID string) Mutation {
	return func(core.TokenGenerationEntry) core.Item {
		attrs := core.Item{core.AttrPurposeState: string(state)}
		if versionID != "" {
			attrs[core.AttrPurposeVersionID] = versionID
		}
		return attrs
	}
}

// SetPurposeInfo propagates a purpose's state and version together with the
// consumer/e-service pair it belongs to, so that agreement fan-outs reach the row.
func SetPurposeInfo(purpose core.PurposeEntry) Mutation {
	return func(core.TokenGenerationEntry) core.Item {
		return core.Item{
			core.AttrPurposeState:        string(purpose.State),
			core.AttrPurposeVersionID:    purpose.VersionID,
			core.AttrGSIConsumerEService: core.ConsumerEServiceKey(purpose.ConsumerID, purpose.EServiceID),
		}
	}
}

func descriptorAttrs(state core.ItemState, audience []string, lifespan int64) core.Item {
	if audience == nil {
		audience = []string{}
	}
	return core.Item{
		core.AttrDescriptorState:           string(state),
		core.AttrDescriptorAudience:        audience,
		core.AttrDescriptorVoucherLifespan: lifespan,
	}
}
