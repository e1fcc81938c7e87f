// Package bus provides in-process topic fan-out for events.
//
// Subscriptions are static: declared once at construction, each with an
// allow-list of event types. Publishing an event hands an independent
// copy to every matching subscription asynchronously; the publisher
// returns as soon as dispatch has been initiated.
//
// # Delivery
//
// Delivery is at-least-once. Each subscription runs its deliveries under
// a bounded in-flight ceiling; a failed delivery is retried with backoff
// up to the subscription's attempt budget, then dropped with an error
// log. Subscriptions that need durable retry semantics should hand the
// event to a work queue from their DeliverFunc rather than process it
// inline.
//
//	b, err := bus.New(logger,
//	    bus.Subscription{
//	        Name:       "grading-router",
//	        EventTypes: []string{"grading_request"},
//	        Deliver:    routeToGraderQueue,
//	    },
//	)
//	b.Publish(ctx, evt)
package bus
