// Package notifier delivers alarm messages to chats.
//
// Notify only enqueues. A small worker pool drains the queue through the
// transport adapter under a token-bucket limiter, retrying failed sends with
// exponential backoff and jitter. A send that still fails is logged and
// published as "notifier.failed"; it never feeds back into scheduling.
package notifier
