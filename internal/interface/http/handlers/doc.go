// Package handlers holds the building blocks shared by the HTTP routes:
// the JSON envelope, gin middleware, health aggregation and push webhook
// parsing.
//
// Checks registered on a CompositeHealthChecker run in parallel, each with
// its own timeout. /ready turns any failure into a 503:
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("database", handlers.NewDatabaseCheck(pool))
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//
// RespondError maps domain error kinds onto status codes. Unauthorized is
// 401, NotFound is 404, MalformedInput is 400 and everything else is 500.
package handlers
