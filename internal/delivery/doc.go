// Package delivery drives stored items through the alert protocol.
//
// Every run makes two passes over the source's table:
//
//	pass 1: UNSENT      -> SENT | FAILED_ONCE
//	pass 2: FAILED_ONCE -> SENT | FAILED_FINAL
//
// Items that fail in pass 1 are retried in pass 2 of the same run. SENT and
// FAILED_FINAL are terminal and never read again. A fixed delay follows
// every attempt, successful or not.
//
// Send failures are recorded in the table and never abort the run; store
// errors do.
package delivery
