package live

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ListenConfig bundles the UDP listen addresses the runner binds, one
// pose socket and one per camera cloud stream, matching
// nad_nav/live.go:startUDPListener's single-goroutine-per-socket shape.
type ListenConfig struct {
	PoseAddr   string
	CloudAddrs []string
	ReadBuffer int
}

// Runner owns the UDP listener goroutines feeding a Store.
type Runner struct {
	store *Store
	log   *zap.SugaredLogger
	conns []*net.UDPConn
}

// Start binds every configured socket and spawns its listener goroutine.
// Binding errors across multiple cloud sockets are combined with
// multierr, grounded on viamrobotics-rdk/logging's direct use of
// go.uber.org/multierr to aggregate independent per-component errors.
func Start(cfg ListenConfig, store *Store, log *zap.SugaredLogger) (*Runner, error) {
	r := &Runner{store: store, log: log}

	bufSize := cfg.ReadBuffer
	if bufSize <= 0 {
		bufSize = 1 << 16
	}

	poseConn, err := listenUDP(cfg.PoseAddr, bufSize)
	if err != nil {
		return nil, fmt.Errorf("live: pose listener: %w", err)
	}
	r.conns = append(r.conns, poseConn)
	go r.runPoseLoop(poseConn, bufSize)

	var errs error
	for i, addr := range cfg.CloudAddrs {
		conn, err := listenUDP(addr, bufSize)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("live: cloud listener %d (%s): %w", i, addr, err))
			continue
		}
		r.conns = append(r.conns, conn)
		go r.runCloudLoop(conn, i, bufSize)
	}
	if errs != nil {
		return nil, errs
	}
	return r, nil
}

// Close releases every listener socket.
func (r *Runner) Close() error {
	var errs error
	for _, c := range r.conns {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

func listenUDP(addr string, bufSize int) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadBuffer(bufSize); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (r *Runner) runPoseLoop(conn *net.UDPConn, bufSize int) {
	buf := make([]byte, bufSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		pkt, err := ParsePosePacket(buf[:n])
		if err != nil {
			if r.log != nil {
				r.log.Debugw("live: dropped malformed pose packet", "err", err)
			}
			continue
		}
		r.store.StagePose(pkt, time.Now())
	}
}

func (r *Runner) runCloudLoop(conn *net.UDPConn, camIdx int, bufSize int) {
	buf := make([]byte, bufSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		cloud, err := ParseCloudPacket(buf[:n])
		if err != nil {
			if r.log != nil {
				r.log.Debugw("live: dropped malformed cloud packet", "camera", camIdx, "err", err)
			}
			continue
		}
		r.store.StageCloud(camIdx, cloud)
	}
}
