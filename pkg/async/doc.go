// Package async provides a small generic Future used to hand results of
// queued work back to the code that submitted it.
//
// NewPromise returns a pending future together with a one-shot Resolve
// function for the code that completes it (the caller package resolves a
// promise when the actor has processed an event).
//
//	f, resolve := async.NewPromise[int]()
//	go func() { resolve(42, nil) }()
//	v, err := f.AwaitWithTimeout(time.Second)
//
// Waiting is available as Await, AwaitContext, AwaitWithTimeout or through
// the Done channel; WaitAll collects several futures in order.
package async
