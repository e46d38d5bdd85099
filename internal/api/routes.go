package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/icanhazusher"

	AppTicketRoute     = "/v1/ticket/app"
	RsvpTicketRoute    = "/v1/ticket/rsvp"
	ReissueTicketRoute = "/v1/ticket/reissue"

	RsvpRoute      = "/v1/rsvp"
	AnonymousRoute = "/v1/anonymous"

	AdminParent            = "/v1/admin/"
	AdminApplicationsRoute = AdminParent + "applications"
	AdminApplicationRoute  = AdminParent + "applications/{id}"
	AdminGrantScopesRoute  = AdminParent + "grants/{id}/scopes"

	TaskParent       = AdminParent + "tasks/"
	ListTasksRoute   = TaskParent
	TriggerTaskRoute = TaskParent + "{name}/trigger"
)
