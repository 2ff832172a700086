package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/technosupport/airfield-guard/internal/access"
	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/model"
	"github.com/technosupport/airfield-guard/internal/platform/paths"
	"github.com/technosupport/airfield-guard/internal/repo"
)

// commandTimeout is the implicit per-command handling deadline from
// spec.md §5.
const commandTimeout = 5 * time.Second

// ControllerServer owns the controller TCP channel: subscription commands
// (MC_CA/MC_CB/MC_MP), detail fetch (MC_OD), and authority-level
// read/write (AC_AC/AC_UA).
type ControllerServer struct {
	hub         *fanout.Hub
	authCache   *access.Cache
	repository  *repo.Repository
	detailCache *DetailCache
	areaNames   map[int]string
}

// NewControllerServer wires a ControllerServer over its collaborators.
// detailCache is the same instance handed to the Pipeline so MC_OD can
// serve recently first-detected objects without a full history scan.
func NewControllerServer(hub *fanout.Hub, authCache *access.Cache, repository *repo.Repository, detailCache *DetailCache, areaNames map[int]string) *ControllerServer {
	return &ControllerServer{hub: hub, authCache: authCache, repository: repository, detailCache: detailCache, areaNames: areaNames}
}

// HandleConn runs the read loop for one accepted controller connection
// until it disconnects or a write fails.
func (c *ControllerServer) HandleConn(conn net.Conn) {
	sess := fanout.NewSession(conn.RemoteAddr().String(), model.RoleController, conn)
	c.hub.Register(sess)
	defer c.hub.Unregister(sess)
	go sess.RunWriter()
	defer sess.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 65536), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := c.handleLine(sess, line)
		if reply != nil {
			sess.Enqueue(reply)
		}
	}
}

func (c *ControllerServer) handleLine(sess *fanout.Session, line string) []byte {
	cmd, arg, _ := strings.Cut(line, ":")

	switch cmd {
	case "MC_CA":
		c.hub.UpdateSubscription(sess, true, false)
		return []byte("MR_CA:OK\n")

	case "MC_CB":
		c.hub.UpdateSubscription(sess, false, true)
		return []byte("MR_CB:OK\n")

	case "MC_MP":
		return []byte("MR_MP:OK\n")

	case "MC_OD":
		return c.handleDetail(arg)

	case "AC_AC":
		return c.handleReadAuth()

	case "AC_UA":
		return c.handleWriteAuth(arg)

	default:
		return []byte("AH_UA:ERROR\n")
	}
}

func (c *ControllerServer) handleReadAuth() []byte {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	levels, err := c.repository.LoadAccessConditions(ctx)
	if err != nil {
		return []byte("AH_AC:ERROR\n")
	}

	parts := make([]string, 8)
	for i := 1; i <= 8; i++ {
		level, ok := levels[i]
		if !ok {
			level = model.AuthorityAuthOnly
		}
		parts[i-1] = strconv.Itoa(int(level))
	}
	return []byte("AH_AC:" + strings.Join(parts, ",") + "\n")
}

func (c *ControllerServer) handleWriteAuth(arg string) []byte {
	fields := strings.Split(arg, ",")
	if len(fields) != 8 {
		return []byte("AH_UA:ERROR\n")
	}

	levels := make(map[int]model.AuthorityLevel, 8)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 1 || n > 3 {
			return []byte("AH_UA:ERROR\n")
		}
		levels[i+1] = model.AuthorityLevel(n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := c.repository.UpdateAccessConditions(ctx, levels); err != nil {
		return []byte("AH_UA:ERROR\n")
	}

	// Cache is only swapped in after the DB commit succeeds, so the two
	// never diverge after an acknowledged AC_UA, per spec.md §7.
	c.authCache.Set(levels)
	return []byte("AH_UA:OK\n")
}

func (c *ControllerServer) handleDetail(arg string) []byte {
	oid, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return []byte("MR_OD:ERR,bad_id\n")
	}

	if rec, ok := c.detailCache.Get(oid); ok {
		return encodeDetail(rec, c.areaNames[rec.AreaID])
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	recs, err := c.repository.QueryHistory(ctx, repo.HistoryFilter{
		From: time.Unix(0, 0),
		To:   time.Now(),
	})
	if err != nil {
		return []byte("MR_OD:ERR,lookup_failed\n")
	}

	for _, rec := range recs {
		if rec.ObjectID != oid {
			continue
		}
		return encodeDetail(rec, c.areaNames[rec.AreaID])
	}

	return []byte("MR_OD:ERR,not_found\n")
}

// encodeDetail renders one MR_OD:OK reply, reading the crop off disk if
// one was saved for rec.
func encodeDetail(rec model.FirstDetectionRecord, areaName string) []byte {
	ts := rec.Timestamp.UTC().Format(time.RFC3339)

	var image []byte
	if rec.ImagePath != "" {
		if full, pathErr := paths.SafeJoin(paths.ResolveImageDir(), rec.ImagePath); pathErr == nil {
			if data, readErr := os.ReadFile(full); readErr == nil {
				image = data
			}
		}
	}

	header := fmt.Sprintf("MR_OD:OK,%d,%s,%s,%s,%d", rec.ObjectID, rec.Class, areaName, ts, len(image))
	out := make([]byte, 0, len(header)+2+len(image))
	out = append(out, header...)
	out = append(out, "$$"...)
	out = append(out, image...)
	out = append(out, '\n')
	return out
}
