// Package handler implements the fleetwall HTTP API.
//
// # Endpoints
//
// Definitions are read-only over HTTP except through the import endpoints,
// which replace the stored state as a whole. A group's commands can be
// previewed at /api/groups/{id}/commands before POSTing to its deploy
// endpoint. Deployment reports are returned as JSON, YAML or text
// depending on ?format=.
//
// # Errors
//
// Errors are JSON {error, details}. Unknown groups, devices and reports
// give 404, a deployment already running for the group gives 409, and
// transport failures while inspecting a device give 502.
//
// # Middleware
//
// Chain composes Recover, CORS, Logger and the optional APIKeyAuth.
package handler
