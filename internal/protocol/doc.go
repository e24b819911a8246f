// Package protocol owns the session wire contract.
//
// Ownership boundary:
// - message and data model types shared by client and server
// - encoding to frame + tlv payloads
// - strict decoding against the schema package
package protocol
