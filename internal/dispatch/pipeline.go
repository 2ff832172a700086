package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/technosupport/airfield-guard/internal/access"
	"github.com/technosupport/airfield-guard/internal/coords"
	"github.com/technosupport/airfield-guard/internal/dedupe"
	"github.com/technosupport/airfield-guard/internal/detectbuf"
	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/framebus"
	"github.com/technosupport/airfield-guard/internal/metrics"
	"github.com/technosupport/airfield-guard/internal/model"
	"github.com/technosupport/airfield-guard/internal/platform/paths"
	"github.com/technosupport/airfield-guard/internal/repo"
	"github.com/technosupport/airfield-guard/internal/zones"
)

// eventQueueSize is the pipeline's single detection-event channel
// capacity from spec.md §5 ("Bounded capacity 1024").
const eventQueueSize = 1024

// objectEvent is one object_detected occurrence queued for the pipeline
// worker.
type objectEvent struct {
	cameraID   string
	frameID    int64
	detections []model.Detection
}

// Pipeline is the single worker that drains the detection-event channel
// and runs each tick through coord-transform -> access-control ->
// zone-state -> first-detection persistence -> fan-out, in that order (so
// ME_RA/RB precedes ME_OD precedes ME_FD for the same tick, per spec.md
// §5's ordering guarantees).
type Pipeline struct {
	frames    *framebus.Bus
	detbuf    *detectbuf.Buffer
	transform *coords.Transformer
	authCache *access.Cache
	zoneEng   *zones.Engine
	alerted   *dedupe.AlertedSet
	repository *repo.Repository
	hub       *fanout.Hub
	detailCache *DetailCache

	areaNames map[int]string

	events chan objectEvent
	done   chan struct{}
}

// New wires the pipeline over its already-constructed collaborators.
// areaNames maps area-id to display name for wire encoding. detailCache
// is shared with ControllerServer so MC_OD lookups can skip the
// full-table scan for objects this pipeline has already first-detected.
func New(frames *framebus.Bus, detbuf *detectbuf.Buffer, transform *coords.Transformer,
	authCache *access.Cache, zoneEng *zones.Engine, alerted *dedupe.AlertedSet,
	repository *repo.Repository, hub *fanout.Hub, detailCache *DetailCache, areaNames map[int]string) *Pipeline {

	return &Pipeline{
		frames:      frames,
		detbuf:      detbuf,
		transform:   transform,
		authCache:   authCache,
		zoneEng:     zoneEng,
		alerted:     alerted,
		repository:  repository,
		hub:         hub,
		detailCache: detailCache,
		areaNames:   areaNames,
		events:      make(chan objectEvent, eventQueueSize),
		done:        make(chan struct{}),
	}
}

// Submit enqueues an object_detected tick. Called from the inference
// channel's reader goroutine; never blocks the reader for long since the
// channel is generously buffered, but will apply backpressure if the
// pipeline worker falls far behind.
func (p *Pipeline) Submit(cameraID string, frameID int64, detections []model.Detection) {
	p.events <- objectEvent{cameraID: cameraID, frameID: frameID, detections: detections}
}

// Run drains the event channel until Stop is called. Intended to run on
// its own goroutine.
func (p *Pipeline) Run() {
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.events:
			p.process(ev)
		}
	}
}

// Stop signals Run to exit after the current tick.
func (p *Pipeline) Stop() { close(p.done) }

func (p *Pipeline) process(ev objectEvent) {
	start := time.Now()
	defer func() {
		metrics.ObservePipelineLatency("tick", float64(time.Since(start).Milliseconds()))
	}()

	frame, haveFrame := p.frames.Get(ev.cameraID, ev.frameID)
	width, height := 1920, 1080
	if haveFrame {
		if frame.Width > 0 {
			width, height = frame.Width, frame.Height
		}
	}

	for i := range ev.detections {
		p.transform.Transform(&ev.detections[i], width, height)
	}

	p.detbuf.Put(ev.cameraID, ev.frameID, ev.detections)

	qualifying := access.Evaluate(ev.detections, p.authCache)
	if len(qualifying) == 0 {
		return
	}

	// Zone transitions fire before ME_OD/ME_FD for this tick, per the
	// ordering guarantee in spec.md §5.
	for _, d := range qualifying {
		if d.HasArea() {
			p.zoneEng.Observe(d.AreaID)
		}
		metrics.RecordDetection(string(d.Class), fmt.Sprint(d.EventType))
	}

	p.hub.BroadcastControllersAndMirror(fanout.EncodeObjectDetected(qualifying, p.areaNames))

	for _, d := range qualifying {
		if p.alerted.Contains(d.ObjectID) {
			continue
		}
		p.emitFirstDetection(d, frame, haveFrame)
	}
}

func (p *Pipeline) emitFirstDetection(d model.Detection, frame model.Frame, haveFrame bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !p.alerted.Add(ctx, d.ObjectID) {
		return // another tick already claimed this object-id
	}

	var imagePath string
	var cropBytes []byte
	if haveFrame {
		crop, err := fanout.CropDetection(frame.JPEG, d)
		if err != nil {
			log.Printf("[dispatch] first-detection crop failed for object %d: %v", d.ObjectID, err)
		} else {
			name := fmt.Sprintf("img_%d_%s.jpg", d.ObjectID, time.Now().Format("20060102150405"))
			full, pathErr := paths.SafeJoin(paths.ResolveImageDir(), name)
			if pathErr != nil {
				log.Printf("[dispatch] first-detection image path failed for object %d: %v", d.ObjectID, pathErr)
			} else if writeErr := os.WriteFile(full, crop, 0640); writeErr != nil {
				log.Printf("[dispatch] first-detection image write failed for object %d: %v", d.ObjectID, writeErr)
			} else {
				cropBytes = crop
				imagePath = name
			}
		}
	}

	rec := model.FirstDetectionRecord{
		ObjectID:    d.ObjectID,
		CameraID:    d.CameraID,
		EventType:   d.EventType,
		Class:       d.Class,
		AreaID:      d.AreaID,
		MapX:        d.MapX,
		MapY:        d.MapY,
		Timestamp:   time.Now(),
		ImagePath:   imagePath,
		RescueLevel: d.RescueLevel,
	}

	if err := p.repository.SaveFirstDetection(ctx, rec); err != nil {
		log.Printf("[dispatch] first-detection persistence failed for object %d: %v", d.ObjectID, err)
		return
	}
	p.detailCache.Put(rec)

	if rec.RescueLevel > 0 {
		if err := p.repository.LogInteraction(ctx, rec.ObjectID, rec.RescueLevel, rec.Timestamp); err != nil {
			log.Printf("[dispatch] interaction log failed for object %d: %v", d.ObjectID, err)
		}
	}

	metrics.RecordFirstDetection()

	// spec.md §7: on image crop/encode failure the record is still
	// persisted with an empty path, but ME_FD emission is skipped
	// entirely rather than sent with a zero-byte image.
	if len(cropBytes) == 0 {
		return
	}
	p.hub.BroadcastControllersAndMirror(fanout.EncodeFirstDetection(rec, p.areaNames[d.AreaID], cropBytes))
}
