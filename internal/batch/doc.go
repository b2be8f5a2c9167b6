// Package batch runs many independent itinerary scrapes as one batch.
//
// A batch is a slice of Task values plus a Policy. The Scheduler dispatches
// tasks either sequentially with jittered pacing (Policy.Jobs == 1) or with
// bounded parallelism behind a weighted semaphore (Policy.Jobs > 1). Each task
// is handed to the Executor, which wraps the external Scraper with a hard
// timeout, a single classified retry for transient failures, and captcha
// detection. A captcha sets the batch's Signal; tasks that have not been
// admitted yet are then reported as cancelled instead of being scraped.
//
// Every task yields exactly one Record and the Scheduler returns them in input
// order. Aggregate flattens the records into column maps and orders them by
// price relativity for export. Runner ties pre-flight validation, scheduling,
// aggregation and the optional sink, store and notification steps together.
package batch
