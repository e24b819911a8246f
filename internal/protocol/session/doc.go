// Package session owns client<->server transport policy shared by defectd
// and defectctl.
//
// Ownership boundary:
// - timeouts, heartbeat and reconnect backoff
// - pending request tracking for replies that may never arrive
// - transport security policy and tls.Config construction
package session
