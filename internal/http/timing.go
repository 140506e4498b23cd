package http

import "time"

// TimingInfo breaks one request down into its network phases.
type TimingInfo struct {
	StartTime           time.Time
	DNSLookupTime       time.Duration
	TCPConnectTime      time.Duration
	TLSHandshakeTime    time.Duration
	TimeToFirstByte     time.Duration
	ContentTransferTime time.Duration
	TotalTime           time.Duration
}
