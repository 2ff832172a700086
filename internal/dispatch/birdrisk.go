package dispatch

import (
	"bufio"
	"context"
	"log"
	"net"
	"time"

	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/model"
	"github.com/technosupport/airfield-guard/internal/repo"
)

// BirdRiskServer owns the bird-risk TCP channel: a single external
// estimator posting BR_CHANGED events, appended to the log and
// rebroadcast to controller + pilot clients on change.
type BirdRiskServer struct {
	hub        *fanout.Hub
	repository *repo.Repository
}

// NewBirdRiskServer wires a BirdRiskServer.
func NewBirdRiskServer(hub *fanout.Hub, repository *repo.Repository) *BirdRiskServer {
	return &BirdRiskServer{hub: hub, repository: repository}
}

// HandleConn runs the read loop for the (single, long-lived) bird-risk
// estimator connection.
func (b *BirdRiskServer) HandleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		ev, err := ParseBirdRiskEvent(scanner.Bytes())
		if err != nil {
			continue // malformed line: drop, keep session, per spec.md §7
		}

		level, ok := model.ParseBirdRiskLevel(ev.Result)
		if !ok {
			continue
		}
		b.handleLevel(level)
	}
}

func (b *BirdRiskServer) handleLevel(curr model.BirdRiskLevel) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	prev, err := b.repository.GetLatestBirdRisk(ctx)
	if err != nil {
		prev = 0 // no prior observation this process has recorded
	}
	if prev == curr {
		return
	}

	if err := b.repository.AppendBirdRisk(ctx, prev, curr, time.Now()); err != nil {
		log.Printf("[dispatch] append bird risk failed: %v", err)
	}

	b.hub.BroadcastAll(fanout.EncodeBirdRisk(curr))
}
