package server

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/proto"
	"github.com/dls-controls/fa-archiver/query"
)

// handleStatus answers a batched "C" status request (spec §4.6): one reply
// line per requested command, in request order.
func (s *Server) handleStatus(conn io.Writer, rest string) {
	cmds, err := proto.ParseStatusRequest(rest)
	if err != nil {
		io.WriteString(conn, err.Error()+"\n")
		return
	}

	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(s.statusLine(c))
		b.WriteByte('\n')
	}
	io.WriteString(conn, b.String())
}

func (s *Server) statusLine(c proto.StatusCommand) string {
	switch c {
	case proto.StatusFrameRate:
		rate := 0.0
		if s.src != nil {
			rate = s.src.Status().FrameRate
		}
		return fmt.Sprintf("%.6f", rate)
	case proto.StatusFirstDecimation:
		return strconv.FormatUint(uint64(uint32(1)<<s.ctx.Layout.FirstDecimationLog2), 10)
	case proto.StatusSecondDecimation:
		return strconv.FormatUint(uint64(uint32(1)<<s.ctx.Layout.SecondDecimationLog2), 10)
	case proto.StatusEarliestTime:
		ts, err := query.EarliestTimestamp(s.ctx)
		if err != nil {
			return err.Error()
		}
		return strconv.FormatUint(ts, 10)
	case proto.StatusVersion:
		return proto.Version{Major: format.ServerMajor, Minor: format.ServerMinor}.String()
	case proto.StatusArchiveMask:
		return proto.FormatRawMask(s.ctx.Layout.ArchiveIDs, s.faEntryCount)
	case proto.StatusLiveDecimation:
		return strconv.Itoa(s.liveDecimation)
	case proto.StatusSnifferStatus:
		if s.src == nil {
			return "0"
		}
		if s.src.Status().Connected {
			return "1"
		}
		return "0"
	case proto.StatusClientList:
		return s.clientList()
	default:
		return ""
	}
}

// clientList formats every connected subscriber as "id mask", joined with
// single spaces into one reply line.
func (s *Server) clientList() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0, len(s.clients))
	for id, info := range s.clients {
		lines = append(lines, fmt.Sprintf("%d %s", id, proto.FormatRawMask(info.mask, s.faEntryCount)))
	}
	return strings.Join(lines, " ")
}

// clientInfo records a subscribed client's mask for the "I" status command.
type clientInfo struct {
	mask []int
}
