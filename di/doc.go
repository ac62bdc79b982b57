// Package di provides a small, statically typed dependency injection
// container.
//
// Services are addressed by typed identifiers, so resolution needs no
// reflection and no type assertions at call sites:
//
//	var Providers = di.NewID[*session.Providers]("pipeline_providers")
//
//	c := di.New()
//	di.Provide(c, Providers, func(c *di.Container) (*session.Providers, error) {
//	    log, err := di.Get(c, Logger)
//	    ...
//	})
//	providers, err := di.Get(c, Providers)
//
// Lazy providers run once, on first Get. Groups collect several values under
// one identifier in registration order.
package di
