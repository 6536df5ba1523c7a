// ABOUTME: Peak wire protocol package
// ABOUTME: Defines request lines, the binary peak response and the client
// Package protocol implements the peak wire protocol.
//
// Requests are single text lines:
//
//	read_peaks "<path>" <fpp> <start> <end> [channel]
//	get_info "<path>"
//
// A read_peaks response is binary and little-endian: an int32 channel
// count, then for each channel an int32 peak count followed by that many
// (min, max) float32 pairs. get_info answers "length=<frames> channels=<n>".
// A request the server could not satisfy is answered with "error: <reason>";
// a request it could not parse gets no answer at all.
//
// The same requests can be carried over a WebSocket, one text message per
// request and one message per response.
//
// Example:
//
//	client, err := protocol.Dial(ctx, "localhost:8930")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	info, err := client.GetInfo("/sessions/take1.wav")
//	peaks, err := client.ReadPeaks("/sessions/take1.wav", 512, 0, info.Frames)
package protocol
