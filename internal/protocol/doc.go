// Package protocol owns the canonical command vocabulary shared by the master,
// the execution nodes and every ingress adapter.
//
// Ownership boundary:
// - line tokenizer producing a tagged Message variant
// - canonical (colon-delimited) encoding
// - reply vocabulary (ACK, ERR, PONG, STATE)
//
// Wire format: one command per newline-terminated line, at most MaxLineLen bytes.
// Fields are separated by ':' on the wire; the tokenizer also accepts whitespace so
// operators can type "BLOCK 5 UP". Verbs are case-insensitive; encoding is always
// upper-case and colon-delimited:
//
//	BLOCK:<id>:<UP|DOWN|STOP>[:<durationMs>]
//	ALL:<UP|DOWN|STOP>
//	RING:<OUTER|INNER>:<UP|DOWN|STOP>
//	PING | PONG[:<detail>] | STATUS | ESTOP
//	ACK:<command>
//	ERR:<CODE>:<n> | ERR:BLOCK:<id>:<TIMEOUT|FAULT>
package protocol
