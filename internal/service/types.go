package service

import (
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

type IssueRequest = validation.Request

type IssueResponse struct {
	// Artifact is the issued token artifact.
	Artifact *core.TokenArtifact

	// Key is the verified key the token was issued for.
	Key validation.KeyDescriptor
}
