package state

import "time"

const (
	// INF is the cost of an unreachable destination.
	INF = ^(uint16)(0)
	// NoHop is the next hop of a destination that has no route.
	NoHop = RouterId(^(uint16)(0))

	MaxRouters = 30

	// CounterDead marks a row that has been expired and is no longer aged.
	CounterDead = -1
	// CounterMax is the number of missed rounds tolerated before a route is expired.
	CounterMax = 3
)

var (
	DefaultRoundInterval = time.Second * 5
	UnknownSenderLogTTL  = time.Second * 30
	SlowDispatch         = time.Millisecond * 4
	SendTimeout          = time.Second * 1

	// log file rotation
	LogMaxAge       = time.Hour * 24
	LogRotationTime = time.Hour

	// used to discover the outbound address of this host
	AddrProbeTarget = "8.8.4.4:53"
)
