package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JLsquare/voxplace/internal/broadcast"
	"github.com/JLsquare/voxplace/internal/persistence/r2s3"
	"github.com/JLsquare/voxplace/internal/persistence/writebehind"
)

// Sources are read on every scrape. Nil entries are skipped.
type Sources struct {
	Hub             func() broadcast.Stats
	WriteBehind     func() writebehind.Stats
	Mirror          func() r2s3.Stats
	Places          func() int
	PaintLogDropped func() uint64
}

// Collector exports runtime stats of the canvas engine on demand.
type Collector struct {
	src Sources

	places         *prometheus.Desc
	viewers        *prometheus.Desc
	framesSent     *prometheus.Desc
	viewersEvicted *prometheus.Desc
	sendFailures   *prometheus.Desc
	eventsRecorded *prometheus.Desc
	eventsDropped  *prometheus.Desc
	eventsFlushed  *prometheus.Desc
	batchFailures  *prometheus.Desc
	gridsFlushed   *prometheus.Desc
	gridFailures   *prometheus.Desc
	mirrorQueue    *prometheus.Desc
	mirrorUploads  *prometheus.Desc
	mirrorFailures *prometheus.Desc
	mirrorDropped  *prometheus.Desc
	auditDropped   *prometheus.Desc
}

func desc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(namespace+"_"+name, help, nil, nil)
}

func NewCollector(src Sources) *Collector {
	return &Collector{
		src:            src,
		places:         desc("places_online", "Number of online places."),
		viewers:        desc("viewers", "Connected place stream viewers."),
		framesSent:     desc("frames_sent_total", "Update frames delivered to viewers."),
		viewersEvicted: desc("viewers_evicted_total", "Viewers evicted for a full outbound queue."),
		sendFailures:   desc("viewer_send_failures_total", "Viewer sends that failed."),
		eventsRecorded: desc("paint_events_recorded_total", "Paint events queued for storage."),
		eventsDropped:  desc("paint_events_dropped_total", "Paint events dropped before queueing."),
		eventsFlushed:  desc("paint_events_flushed_total", "Paint events written to storage."),
		batchFailures:  desc("paint_batch_failures_total", "Paint batches discarded after a storage error."),
		gridsFlushed:   desc("grid_snapshots_total", "Canvas snapshots written to storage."),
		gridFailures:   desc("grid_snapshot_failures_total", "Canvas snapshots discarded after a storage error."),
		mirrorQueue:    desc("mirror_queue_depth", "Files waiting for upload."),
		mirrorUploads:  desc("mirror_uploads_total", "Files uploaded to the mirror bucket."),
		mirrorFailures: desc("mirror_upload_failures_total", "Files that failed every upload attempt."),
		mirrorDropped:  desc("mirror_dropped_total", "Files dropped because the upload queue was full."),
		auditDropped:   desc("audit_dropped_total", "Paint audit lines dropped because the writer fell behind."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.places, c.viewers, c.framesSent, c.viewersEvicted, c.sendFailures,
		c.eventsRecorded, c.eventsDropped, c.eventsFlushed, c.batchFailures,
		c.gridsFlushed, c.gridFailures,
		c.mirrorQueue, c.mirrorUploads, c.mirrorFailures, c.mirrorDropped,
		c.auditDropped,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	if c.src.Places != nil {
		gauge(c.places, float64(c.src.Places()))
	}
	if c.src.Hub != nil {
		st := c.src.Hub()
		gauge(c.viewers, float64(st.Subscribers))
		counter(c.framesSent, st.Delivered)
		counter(c.viewersEvicted, st.Evicted)
		counter(c.sendFailures, st.SendFailures)
	}
	if c.src.WriteBehind != nil {
		st := c.src.WriteBehind()
		counter(c.eventsRecorded, st.RecordedEvents)
		counter(c.eventsDropped, st.DroppedEvents)
		counter(c.eventsFlushed, st.FlushedEvents)
		counter(c.batchFailures, st.FailedBatches)
		counter(c.gridsFlushed, st.FlushedGrids)
		counter(c.gridFailures, st.FailedSnapshots)
	}
	if c.src.Mirror != nil {
		st := c.src.Mirror()
		gauge(c.mirrorQueue, float64(st.QueueDepth))
		counter(c.mirrorUploads, st.Uploaded)
		counter(c.mirrorFailures, st.Failed)
		counter(c.mirrorDropped, st.Dropped)
	}
	if c.src.PaintLogDropped != nil {
		counter(c.auditDropped, c.src.PaintLogDropped())
	}
}
