// Package eventbus provides the in-process publish/subscribe bus modules
// use to exchange InfoPacks.
//
// Each subscription owns an ordered queue feeding its own watermill topic,
// so Publish never waits on handlers, a slow or failing subscriber never
// delays another, and every subscriber sees a type's events in publish
// order. Handler failures are recorded as CloudEvents envelopes for replay.
package eventbus
