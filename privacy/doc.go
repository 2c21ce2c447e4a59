// Package privacy decides whether a request may run before it reaches the
// database.
//
// A Policy is an ordered list of rules. Each rule returns one of three
// decisions:
//
//   - Allow: the request runs and evaluation stops
//   - Deny: the request is rejected and evaluation stops
//   - Skip (or nil): the next rule is evaluated
//
// A policy whose rules all skip allows the request. A read-only service
// denies every mutation:
//
//	policy := privacy.Policy{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.DenyMutationRule(),
//	}
//	svc := dynamic.NewService(client, reg, dynamic.WithPolicy(policy))
//
// Rules that depend on the caller read the Viewer attached to the context
// with WithViewer. DecisionContext short-circuits evaluation, for example
// for internal jobs.
package privacy
