// Package stream serves encoded camera frames as multipart/x-mixed-replace
// streams.
//
// A Sequence is any pull-based source of chunks, typically a camera
// pipeline. Publisher.Run drains one Sequence and fans every chunk out to
// the clients currently subscribed. Each subscriber holds only the newest
// unread chunk: a slow client skips frames instead of queueing them, and it
// never sees an older frame after a newer one.
//
// The package does not depend on the HTTP framework. Handlers call
// Subscribe and write chunks with WriteChunk.
package stream
