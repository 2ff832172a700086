// Package lifecycle implements the Supervisor: startup ordering, socket
// binding, and graceful shutdown for the Main Server, per spec.md §4.10.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/airfield-guard/internal/access"
	"github.com/technosupport/airfield-guard/internal/arealoader"
	"github.com/technosupport/airfield-guard/internal/bus"
	"github.com/technosupport/airfield-guard/internal/config"
	"github.com/technosupport/airfield-guard/internal/coords"
	"github.com/technosupport/airfield-guard/internal/dedupe"
	"github.com/technosupport/airfield-guard/internal/detectbuf"
	"github.com/technosupport/airfield-guard/internal/dispatch"
	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/framebus"
	"github.com/technosupport/airfield-guard/internal/opsapi"
	"github.com/technosupport/airfield-guard/internal/opsauth"
	"github.com/technosupport/airfield-guard/internal/relay"
	"github.com/technosupport/airfield-guard/internal/repo"
	"github.com/technosupport/airfield-guard/internal/zones"
)

// drainDeadline is spec.md §4.10's "drain outbound queues for up to 2s"
// on shutdown.
const drainDeadline = 2 * time.Second

// Supervisor owns every long-lived component and the six listening
// sockets. At startup Run loads the area table and access conditions and
// starts the zone engine and pipeline first, and only then binds the
// sockets, each of which starts accepting as soon as it is bound; no
// socket is bound before the load. On shutdown it stops accepting,
// drains, and closes.
type Supervisor struct {
	cfg        config.Config
	areasPath  string

	repository *repo.Repository
	spool      *repo.Spool
	transform  *coords.Transformer
	authCache  *access.Cache
	zoneEng    *zones.Engine
	alerted    *dedupe.AlertedSet
	frames     *framebus.Bus
	detbuf     *detectbuf.Buffer
	hub        *fanout.Hub
	mirror     *bus.Publisher
	loader     *arealoader.Loader
	relayer    *relay.Relay
	ops        *opsapi.Server
	opsHTTP    *http.Server

	lifecycleState *dispatch.InferenceLifecycle
	pipeline       *dispatch.Pipeline
	detailCache    *dispatch.DetailCache
	runwayArea     map[string]int

	listeners []net.Listener
	udpConns  []*net.UDPConn
	relayStop chan struct{}
}

// New builds a Supervisor from cfg, with an area loader for areasPath.
// Nothing is loaded, bound or started yet; call Run to do that.
func New(cfg config.Config, areasPath string) (*Supervisor, error) {
	spool := repo.NewSpool("./spool", 64<<20)
	repository, err := repo.New(cfg.DB.ConnString(), spool)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: open repository: %w", err)
	}

	transform := coords.New(cfg.Geometry.MapWidth, cfg.Geometry.MapHeight,
		float64(cfg.Geometry.RealMapWidth), float64(cfg.Geometry.RealMapHeight))
	loader := arealoader.New(areasPath, repository, transform)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	alerted := dedupe.New(rdb)

	frames := framebus.New(cfg.Timing.FrameBufferSize, time.Duration(cfg.Timing.FrameAgeCapMs)*time.Millisecond)
	detbuf := detectbuf.New(time.Duration(cfg.Timing.DetectionBufferWindowMs) * time.Millisecond)
	hub := fanout.NewHub()

	mirror, err := bus.Connect(cfg.NATS.URL, "events.fanout", 3)
	if err != nil {
		log.Printf("lifecycle: NATS mirror unavailable, falling back to in-process only: %v", err)
		mirror, _ = bus.Connect("", "events.fanout", 3)
	}
	hub.SetMirror(mirror)

	s := &Supervisor{
		cfg:            cfg,
		areasPath:      areasPath,
		repository:     repository,
		spool:          spool,
		transform:      transform,
		authCache:      access.NewCache(),
		alerted:        alerted,
		frames:         frames,
		detbuf:         detbuf,
		hub:            hub,
		mirror:         mirror,
		loader:         loader,
		lifecycleState: dispatch.NewInferenceLifecycle(),
		relayStop:      make(chan struct{}),
	}

	s.ops = opsapi.New(opsapi.Config{
		Auth:                 opsauth.NewManager(cfg.Ops.JWTSigningKey),
		Blacklist:            opsauth.NewBlacklist(rdb),
		Limiter:              opsauth.NewLoginLimiter(rdb),
		OperatorPasswordHash: cfg.Ops.OperatorPasswordHash,
		Reload:               s.reloadAreas,
		StateFunc:            s.opsState,
	})
	hub.SetDebugTap(s.ops.Tap())

	return s, nil
}

// reloadAreas re-reads the area table and calibration seed file without a
// process restart, for POST /admin/reload.
func (s *Supervisor) reloadAreas() error {
	return s.loader.Load(context.Background())
}

func (s *Supervisor) opsState() opsapi.State {
	cameraA, cameraB := s.hub.CameraDemand()
	areas, err := s.repository.GetAreaList(context.Background())
	areaNames := make(map[int]string, len(areas))
	if err == nil {
		for _, a := range areas {
			areaNames[a.ID] = a.Name
		}
	}
	return opsapi.State{
		ConnectedControllers: s.hub.ControllerCount(),
		ConnectedPilots:      s.hub.PilotCount(),
		CameraADemand:        cameraA,
		CameraBDemand:        cameraB,
		AreaNames:            areaNames,
	}
}

// runwayAreaIDsFromNames finds the area ids whose display name marks them
// as runway A/B, the convention config/areas.yaml is expected to follow.
func runwayAreaIDsFromNames(areaNames map[int]string) map[string]int {
	out := make(map[string]int, 2)
	for id, name := range areaNames {
		switch name {
		case "RWY_A":
			out["A"] = id
		case "RWY_B":
			out["B"] = id
		}
	}
	return out
}

// Run executes spec.md §4.10's startup order, then blocks until ctx is
// cancelled, then drains and closes everything.
func (s *Supervisor) Run(ctx context.Context) error {
	// 1. Load access conditions + area table, before any socket accepts a
	// connection that could race against an empty AccessCache/area set.
	if err := s.loader.Load(ctx); err != nil {
		log.Printf("lifecycle: initial area load failed, starting with zero areas: %v", err)
	}
	areaNames, err := s.loader.AreaNames()
	if err != nil {
		log.Printf("lifecycle: could not read area names, falling back to empty: %v", err)
		areaNames = map[int]string{}
	}
	s.runwayArea = runwayAreaIDsFromNames(areaNames)
	s.loader.Watch(ctx)

	levels, err := s.repository.LoadAccessConditions(ctx)
	if err != nil {
		log.Printf("lifecycle: initial access-condition load failed, AccessCache starts empty: %v", err)
	} else {
		s.authCache.Set(levels)
	}

	if err := s.alerted.Seed(ctx); err != nil {
		log.Printf("lifecycle: AlertedSet seed failed, starting empty: %v", err)
	}

	s.zoneEng = zones.New(time.Duration(s.cfg.Timing.HazardClearMs)*time.Millisecond, areaNames)
	s.zoneEng.Start()
	go s.relayZoneTransitions()

	s.detailCache = dispatch.NewDetailCache()
	s.pipeline = dispatch.New(s.frames, s.detbuf, s.transform, s.authCache, s.zoneEng,
		s.alerted, s.repository, s.hub, s.detailCache, areaNames)
	go s.pipeline.Run()

	s.spool.StartReplayer(ctx, s.repository)

	// 2. Bind all six sockets.
	if err := s.bindSockets(areaNames); err != nil {
		return err
	}

	relayAddr := fmt.Sprintf(":%d", s.cfg.Ports.VideoRelayUDP)
	relayer, err := relay.New(relayAddr, s.frames, s.hub)
	if err != nil {
		return fmt.Errorf("lifecycle: bind video relay: %w", err)
	}
	s.relayer = relayer
	go s.relayer.Run(s.relayStop)

	s.opsHTTP = &http.Server{Addr: s.cfg.Ops.HTTPAddr, Handler: s.ops.Handler()}
	go func() {
		if err := s.opsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("lifecycle: ops HTTP server error: %v", err)
		}
	}()

	// 3. Accept connections (each listener already runs its own accept
	// loop, started from bindSockets).
	<-ctx.Done()
	s.shutdown()
	return nil
}

// relayZoneTransitions fans out every zone-status change as ME_RA/ME_RB,
// per spec.md §4.6. Only areas matching the runway naming convention
// produce a wire message; other areas' hazard/clear transitions are not
// part of the controller/pilot protocol.
func (s *Supervisor) relayZoneTransitions() {
	for t := range s.zoneEng.Transitions() {
		switch t.AreaID {
		case s.runwayArea["A"]:
			s.hub.BroadcastAll(fanout.EncodeZoneStatus("A", t.Status))
		case s.runwayArea["B"]:
			s.hub.BroadcastAll(fanout.EncodeZoneStatus("B", t.Status))
		}
	}
}

func (s *Supervisor) bindSockets(areaNames map[int]string) error {
	frameAddr := fmt.Sprintf(":%d", s.cfg.Ports.FrameIngestUDP)
	conn, err := framebus.ListenUDP(frameAddr, s.frames)
	if err != nil {
		return fmt.Errorf("lifecycle: bind frame ingest: %w", err)
	}
	s.udpConns = append(s.udpConns, conn)

	inferenceServer := dispatch.NewInferenceServer(s.lifecycleState, s.transform, s.pipeline, s.hub)
	if err := s.acceptLoop(s.cfg.Ports.InferenceTCP, inferenceServer.HandleConn); err != nil {
		return err
	}

	controllerServer := dispatch.NewControllerServer(s.hub, s.authCache, s.repository, s.detailCache, areaNames)
	if err := s.acceptLoop(s.cfg.Ports.ControllerTCP, controllerServer.HandleConn); err != nil {
		return err
	}

	pilotServer := dispatch.NewPilotServer(s.hub, s.zoneEng, s.repository, s.runwayArea)
	if err := s.acceptLoop(s.cfg.Ports.PilotTCP, pilotServer.HandleConn); err != nil {
		return err
	}

	birdRiskServer := dispatch.NewBirdRiskServer(s.hub, s.repository)
	if err := s.acceptLoop(s.cfg.Ports.BirdRiskTCP, birdRiskServer.HandleConn); err != nil {
		return err
	}

	return nil
}

func (s *Supervisor) acceptLoop(port int, handle func(net.Conn)) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return fmt.Errorf("lifecycle: listen :%d: %w", port, err)
	}
	s.listeners = append(s.listeners, ln)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return // listener closed during shutdown
			}
			go handle(conn)
		}
	}()
	return nil
}

// shutdown stops accepting new work, gives in-flight outbound queues up
// to drainDeadline to flush, then closes everything. Any socket error on
// one client session only affects that session (spec.md §4.10); shutdown
// itself does not attempt per-session error handling, it simply closes.
func (s *Supervisor) shutdown() {
	var wg sync.WaitGroup
	for _, ln := range s.listeners {
		wg.Add(1)
		go func(l net.Listener) { defer wg.Done(); l.Close() }(ln)
	}
	for _, c := range s.udpConns {
		wg.Add(1)
		go func(c *net.UDPConn) { defer wg.Done(); c.Close() }(c)
	}
	if s.opsHTTP != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), drainDeadline)
			defer cancel()
			s.opsHTTP.Shutdown(ctx)
		}()
	}
	wg.Wait()

	time.Sleep(drainDeadline)

	close(s.relayStop)
	if s.relayer != nil {
		s.relayer.Close()
	}
	s.pipeline.Stop()
	s.zoneEng.Stop()
	s.mirror.Close()
}
