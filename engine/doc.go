// Package engine wires all Chalk subsystems together and provides the
// primary application-level API for appending events, enqueuing
// messages, and running consumers.
//
// The engine package exists to break a fundamental import cycle: the
// root chalk package defines Entity and Config (imported by eventlog,
// queue, cron, etc.) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	cfg := chalk.ConfigFromEnv()
//	eng, err := engine.New(memory.New(), cfg,
//	    engine.WithExtension(myExtension),
//	    engine.WithQueueLimits(queue.Limits{
//	        Name:      chalk.QueueGradingPython,
//	        RateLimit: 10,
//	    }),
//	)
//
// # Registering Consumers
//
// The topology declares consumer slots (queue, in-flight ceiling,
// timeout); the application injects the business logic:
//
//	eng.RegisterConsumer("grading-python", func(ctx context.Context, msg *queue.Message) error {
//	    return grader.Run(ctx, msg.Body)
//	})
//
// # Producing
//
//	eventID, err := eng.AppendEvent(ctx, evt)        // durable write + fan-out
//	eng.PublishEvent(ctx, evt)                        // fan-out only
//	msg, err := eng.Enqueue(ctx, queueName, body)     // direct enqueue
//
// # Topology
//
// DefaultTopology encodes the LMS messaging layout in one inspectable
// place: six work queues with paired dead-letter queues, the event
// subscriptions (log writer, grading router, review notifiers), the
// routing table, the consumer slots, and the two cron cadences.
package engine
