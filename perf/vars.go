package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency        = metric.NewHistogram("1m1s")
	RoundLatency           = metric.NewHistogram("1m1s")
	AdvertisementsSent     = metric.NewCounter("10s1s")
	AdvertisementsReceived = metric.NewCounter("10s1s")
	AdvertisementsDropped  = metric.NewCounter("10s1s")
	SendErrors             = metric.NewCounter("10s1s")
	SentBytesPerSecond     = metric.NewCounter("10s1s")
	RecvBytesPerSecond     = metric.NewCounter("10s1s")
	RouteChanges           = metric.NewCounter("1m10s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dvr:AdvSent/s", AdvertisementsSent)
	expvar.Publish("dvr:AdvRecv/s", AdvertisementsReceived)
	expvar.Publish("dvr:AdvDropped/s", AdvertisementsDropped)
	expvar.Publish("dvr:SendErrors/s", SendErrors)
	expvar.Publish("dvr:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("dvr:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("dvr:RouteChanges", RouteChanges)
	expvar.Publish("dvr:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("dvr:RoundLatency (µs)", RoundLatency)
}
