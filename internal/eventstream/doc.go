// Package eventstream replays recorded data-characteristic notifications.
//
// A capture is text with one notification per line, hex encoded. Bytes may
// be separated by spaces or colons; blank lines and lines starting with '#'
// are ignored. Format writes the same representation, so a capture can be
// produced by tapping a live NotifyFunc.
package eventstream
