package sslcert

import "time"

// Adaptive certificate recheck cadence: the closer a certificate is to
// expiry, the more often it is fetched fresh. The windows only ever tighten
// a target's configured interval; shared by the executor's cache decision
// and the due-target query.
const (
	RecheckSoonWindowDays = 7
	RecheckSoonInterval   = 240 * time.Minute

	RecheckNearWindowDays = 30
	RecheckNearInterval   = 720 * time.Minute
)
