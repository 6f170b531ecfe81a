package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/about"

	IssueTokenRoute  = "/v1/token"
	DiagnosticsRoute = "/v1/token/diagnostics"

	AdminParent         = "/v1/admin"
	PlatformStateRoute  = "/platform-states/{pk}"
	TokenStateRoute     = "/token-states/{pk}"
	ConsumersRoute      = "/consumers"
	ConsumerFailures    = "/consumers/{domain}/failures"
	ListAuditsRoute     = "/audit"
	AdminPlatformStates = AdminParent + "/platform-states/"
	AdminTokenStates    = AdminParent + "/token-states/"
	AdminConsumers      = AdminParent + ConsumersRoute
	AdminAudits         = AdminParent + ListAuditsRoute
)
