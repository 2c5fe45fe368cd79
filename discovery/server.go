// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/livelink"
	"github.com/destiny/livelink/internal/telemetry"
	"github.com/destiny/livelink/wire"
)

// Server advertises one livelink server instance.
type Server struct {
	cfg  Config
	ad   advertisement
	log  *livelink.Logger
	ep   *endpoint

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// NewServer prepares an advertisement for data reachable at tcp and udp.
// Unspecified addresses tell clients to use the packet's source address.
func NewServer(cfg Config, data wire.ServerData, tcp, udp netip.AddrPort) (*Server, error) {
	cfg.setDefaults()
	if data.ID() == uuid.Nil {
		return nil, fmt.Errorf("discovery: server data without identifier")
	}
	if cfg.Product != "" && data.ProductName() != cfg.Product {
		return nil, fmt.Errorf("discovery: server product %q does not match %q", data.ProductName(), cfg.Product)
	}

	ad := advertisement{Server: data}
	var err error
	if ad.TCP, err = endpointData(tcp); err != nil {
		return nil, err
	}
	if ad.UDP, err = endpointData(udp); err != nil {
		return nil, err
	}
	return &Server{
		cfg:  cfg,
		ad:   ad,
		log:  cfg.Logger.Named("discovery").With("server", data.ID().String()),
	}, nil
}

// Advertise builds a server for node, using the node's identifier and
// its bound addresses.
func Advertise(cfg Config, n *livelink.Node, instance string) (*Server, error) {
	data, err := wire.NewServerData(cfg.Product, instance, n.ID(), n.Version())
	if err != nil {
		return nil, err
	}
	return NewServer(cfg, data, n.AddrPort(), n.UDPAddrPort())
}

func endpointData(ap netip.AddrPort) (wire.EndPointData, error) {
	if !ap.IsValid() {
		return wire.EndPointData{}, nil
	}
	return wire.NewEndPointData(ap)
}

// Data returns the advertised server description.
func (s *Server) Data() wire.ServerData { return s.ad.Server }

// Start binds the discovery port, announces the server and keeps
// announcing it every interval until Close.
func (s *Server) Start(ctx context.Context) error {
	ep, err := openEndpoint(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.ep = ep

	s.announce()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.group, s.ctx = errgroup.WithContext(loopCtx)
	s.cancel = cancel
	s.group.Go(s.announceLoop)
	s.group.Go(s.listenLoop)
	s.log.Info("advertising %q on %v", s.ad.Server.InstanceName(), ep.conn.LocalAddr())
	return nil
}

func (s *Server) announce() {
	if err := s.ep.send(kindAdvertisement, s.ad); err != nil {
		s.log.Warn("could not announce: %+v", err)
	}
}

func (s *Server) announceLoop() error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.announce()
		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *Server) listenLoop() error {
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := s.ep.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Debug("read failed: %+v", err)
			continue
		}

		k, payload, err := parsePacket(buf[:n])
		if err != nil {
			s.log.Trace("ignoring packet from %v: %+v", from, err)
			continue
		}
		telemetry.DiscoveryPackets.WithLabelValues("in", k.String()).Inc()
		if k != kindRequest {
			continue
		}

		var req wire.RequestData
		if err := req.UnmarshalBinary(payload); err != nil {
			s.log.Trace("bad request from %v: %+v", from, err)
			continue
		}
		if req.ProductName() == s.ad.Server.ProductName() {
			s.log.Debug("request from %v", from)
			s.announce()
		}
	}
}

// Close announces the shutdown and stops the server. Clients evict it
// without waiting for expiry.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.ep == nil {
			return
		}
		s.cancel()

		shutdown, err := wire.NewShutdownData(s.ad.Server.ID())
		if err == nil {
			err = s.ep.send(kindShutdown, shutdown)
		}
		if err != nil {
			s.log.Warn("could not announce shutdown: %+v", err)
		}

		s.closeErr = s.ep.close()
		if err := s.group.Wait(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
