package dispatch

import (
	"bufio"
	"context"
	"net"

	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/model"
	"github.com/technosupport/airfield-guard/internal/repo"
	"github.com/technosupport/airfield-guard/internal/zones"
)

// PilotServer owns the pilot TCP channel: JSON query_information commands
// resolved against in-memory zone/bird-risk state.
type PilotServer struct {
	hub        *fanout.Hub
	zoneEng    *zones.Engine
	repository *repo.Repository
	runwayArea map[string]int // "A" -> area-id, "B" -> area-id
}

// NewPilotServer wires a PilotServer. runwayArea maps the RWY_A/RWY_B
// wire letters to their Area ids.
func NewPilotServer(hub *fanout.Hub, zoneEng *zones.Engine, repository *repo.Repository, runwayArea map[string]int) *PilotServer {
	return &PilotServer{hub: hub, zoneEng: zoneEng, repository: repository, runwayArea: runwayArea}
}

// HandleConn runs the read loop for one accepted pilot connection.
func (p *PilotServer) HandleConn(conn net.Conn) {
	sess := fanout.NewSession(conn.RemoteAddr().String(), model.RolePilot, conn)
	p.hub.Register(sess)
	defer p.hub.Unregister(sess)
	go sess.RunWriter()
	defer sess.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 65536), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		p.handleLine(sess, line)
	}
}

func (p *PilotServer) handleLine(sess *fanout.Session, line []byte) {
	req, err := ParsePilotRequest(line)
	if err != nil {
		sess.Enqueue(EncodePilotResponse(PilotResponse{Status: "error"}))
		return
	}

	resp := PilotResponse{Status: "success", RequestCode: req.RequestCode}

	switch req.RequestCode {
	case "BR_INQ":
		level, err := p.repository.GetLatestBirdRisk(context.Background())
		if err != nil {
			resp.Status = "error"
		} else {
			resp.ResponseCode = level.WireCode()
		}

	case "RWY_A_STATUS":
		resp.ResponseCode = runwayStatusCode(p.zoneEng.Status(p.runwayArea["A"]))

	case "RWY_B_STATUS":
		resp.ResponseCode = runwayStatusCode(p.zoneEng.Status(p.runwayArea["B"]))

	case "RWY_AVAIL_IN":
		resp.ResponseCode = availableRunways(p.zoneEng.Status(p.runwayArea["A"]), p.zoneEng.Status(p.runwayArea["B"]))

	default:
		resp.Status = "error"
	}

	sess.Enqueue(EncodePilotResponse(resp))
}

func runwayStatusCode(status model.ZoneStatus) string {
	if status == model.ZoneHazard {
		return "BLOCKED"
	}
	return "CLEAR"
}

func availableRunways(a, b model.ZoneStatus) string {
	aClear := a == model.ZoneNormal
	bClear := b == model.ZoneNormal
	switch {
	case aClear && bClear:
		return "ALL"
	case aClear:
		return "A_ONLY"
	case bClear:
		return "B_ONLY"
	default:
		return "NONE"
	}
}
