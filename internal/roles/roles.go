// Package roles declares the role identifiers the broker backend issues in
// access tokens. The lifecycle engine treats them as opaque; blueprints bind
// them to states.
package roles

import "brokergate/internal/lifecycle"

const (
	// Admin is the superuser role. Terminal states grant it alone.
	Admin lifecycle.RoleID = "admin"
	// Broker manages client-facing records: drafts claims, prepares policies.
	Broker lifecycle.RoleID = "broker"
	// ClaimsAnalyst reviews, returns, and settles claims.
	ClaimsAnalyst lifecycle.RoleID = "claims_analyst"
)
