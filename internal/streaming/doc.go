/*
Package streaming delivers segment files to viewers with stall protection.

A viewer that stops reading would otherwise hold a handler goroutine and an
open file until the TCP stack gives up. Writer bounds every chunk write with
WriteTimeout and cancels the whole delivery when no chunk completes within
IdleTimeout. The request context ends it early when the viewer disconnects.

# Usage

	w.Header().Set("Content-Type", "video/mp2t")
	n, err := streaming.ServeSegment(r.Context(), w, path, streaming.DefaultConfig())
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("segment delivery stopped after %d bytes: %v", n, err)
	}

ServeSegment sets Content-Length and writes the status line itself, so any
error it returns after opening the file can only be logged.

# Metrics

Bytes delivered are added to media_forensics_segment_bytes_served_total and
aborted deliveries are counted by reason (timeout, client_gone, error) in
media_forensics_segment_delivery_aborted_total.
*/
package streaming
