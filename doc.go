// Package eventset discovers event handlers grouped under a namespace and
// drives their lifecycle as a batch.
//
// An event handler is any type with a Register and an Unregister method.
// Register subscribes its side effects (usually to a host event bus) and
// Unregister reverses them. Handlers are made known to a Registry through
// zero-argument factories, usually from an init function, and a plugin asks
// the registry for every handler in its namespace when it starts.
//
// Basic example:
//
//	const Events eventset.Namespace = "myplugin.events"
//
//	type Greeter struct {
//	    sub *hostbus.Subscription
//	}
//
//	func (g *Greeter) Register() (err error) {
//	    g.sub, err = hostbus.On(hostbus.Default(), "player.joined", g.onJoined)
//	    return err
//	}
//
//	func (g *Greeter) Unregister() error {
//	    return g.sub.Close()
//	}
//
//	func init() {
//	    eventset.MustProvide[Greeter](eventset.Default(), Events)
//	}
//
//	// In the plugin enable hook
//	events, err := eventset.Discover(ctx, Events)
//	if err != nil {
//	    return err
//	}
//	if err := events.RegisterAll(ctx); err != nil {
//	    return err
//	}
//
//	// In the plugin disable hook
//	events.UnregisterAll(ctx)
//
// Registration:
//   - Add: register a typed Factory under a namespace and name.
//   - Provide: register a type whose pointer implements Event; the zero value
//     is the instance and an optional Init method runs on construction.
//   - AddCandidate: register a constructor of any pointer type; types that
//     do not implement Event are skipped at discovery without being built.
//
// Discovery:
// Discover builds one instance per factory registered under the namespace,
// in registration order. Namespaces are matched exactly. If any factory fails
// or panics the whole call fails with an *InstantiationError and no
// collection is returned. An unknown namespace yields an empty collection.
//
// Lifecycle:
// RegisterAll and UnregisterAll walk the collection in stored order and call
// each handler exactly once. The first failure stops the walk and is returned
// as a *LifecycleError; handlers already registered stay registered. Calling
// RegisterAll twice registers every handler twice.
//
// Options:
//   - WithLogger: set the logger. Default is slog.Default() tagged "eventset".
//   - WithTracing: enable/disable OpenTelemetry spans. Default is true.
//   - WithMetrics: enable/disable OpenTelemetry counters. Default is true.
//   - WithRecovery: convert panics in Register/Unregister into errors. Default is true.
package eventset
