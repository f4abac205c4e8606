// internal/rpcserver/server.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package rpcserver implements the command surface of the core: a
// net/rpc-over-TCP service exposing one method per inbound command plus
// status and plan queries. It stands in for the DDS transport, which is an
// external collaborator outside the core.
package rpcserver

import (
	"context"
	"net"
	"net/rpc"

	"github.com/kjeon/wcs-core/internal/cancel"
	"github.com/kjeon/wcs-core/internal/coordinator"
	"github.com/kjeon/wcs-core/internal/events"
	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/mineplan"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// AssignWeaponArgs carries one weapon-to-tube assignment request.
type AssignWeaponArgs struct {
	TubeNo               int
	Kind                 wcstypes.WeaponKind
	SystemTargetID       uint32
	DirectTargetPosition geo.Point
	HasDirectTarget      bool
	DropPlanList         int
	DropPlanNo           int
}

// ControlWeaponArgs carries one external state-change request.
type ControlWeaponArgs struct {
	TubeNo      int
	TargetState wcstypes.ControlState
}

// UpdateWaypointsArgs carries a waypoint edit for one tube.
type UpdateWaypointsArgs struct {
	TubeNo    int
	Waypoints []geo.Point
}

// MineDropPlanArgs addresses one plan in the store.
type MineDropPlanArgs struct {
	ListNo int
	PlanNo int
}

// EditedPlanListArgs carries an externally edited plan list to upsert.
type EditedPlanListArgs struct {
	ListNo int
	Plans  []wcstypes.MinePlan
}

// StatusReply is the aggregated all-tube snapshot.
type StatusReply struct {
	Tubes []wcstypes.LaunchTubeStatus
}

// Dispatcher is the net/rpc receiver. Blocking commands (ControlWeapon,
// which may wait out a POC delay or launch sequence) run under a
// fixed-size worker semaphore so one slow tube never starves the rest of
// the command surface.
type Dispatcher struct {
	coord   *coordinator.Coordinator
	plans   *mineplan.Store
	sub     *events.Subscription
	lg      *log.Logger
	workers chan struct{}
}

// NewDispatcher builds a Dispatcher with commandWorkers slots for blocking
// commands (minimum 1). stream may be nil to disable the PollEvents
// report channel.
func NewDispatcher(coord *coordinator.Coordinator, plans *mineplan.Store, stream *events.Stream, commandWorkers int, lg *log.Logger) *Dispatcher {
	if commandWorkers < 1 {
		commandWorkers = 1
	}
	if lg == nil {
		lg = log.NewNop()
	}
	d := &Dispatcher{
		coord:   coord,
		plans:   plans,
		lg:      lg,
		workers: make(chan struct{}, commandWorkers),
	}
	if stream != nil {
		d.sub = stream.Subscribe()
	}
	return d
}

func (d *Dispatcher) AssignWeapon(args *AssignWeaponArgs, _ *struct{}) error {
	return d.coord.Assign(coordinator.AssignRequest{
		TubeNo:               args.TubeNo,
		Kind:                 args.Kind,
		SystemTargetID:       args.SystemTargetID,
		DirectTargetPosition: args.DirectTargetPosition,
		HasDirectTarget:      args.HasDirectTarget,
		DropPlanList:         args.DropPlanList,
		DropPlanNo:           args.DropPlanNo,
	})
}

func (d *Dispatcher) UnassignWeapon(tubeNo *int, _ *struct{}) error {
	return d.coord.Unassign(*tubeNo)
}

func (d *Dispatcher) ControlWeapon(args *ControlWeaponArgs, _ *struct{}) error {
	d.workers <- struct{}{}
	defer func() { <-d.workers }()
	return d.coord.Control(args.TubeNo, args.TargetState, cancel.New())
}

func (d *Dispatcher) EmergencyStop(_ *struct{}, _ *struct{}) error {
	return d.coord.EmergencyStop()
}

func (d *Dispatcher) UpdateWaypoints(args *UpdateWaypointsArgs, _ *struct{}) error {
	return d.coord.UpdateWaypoints(args.TubeNo, args.Waypoints)
}

func (d *Dispatcher) UpdateOwnShipNav(nav *geo.Nav, _ *struct{}) error {
	d.coord.UpdateOwnShip(*nav)
	return nil
}

func (d *Dispatcher) UpdateTargetTrack(track *wcstypes.TargetTrack, _ *struct{}) error {
	d.coord.UpdateTarget(*track)
	return nil
}

func (d *Dispatcher) SetAxisCenter(p *geo.Point, _ *struct{}) error {
	d.coord.SetAxisCenter(*p)
	return nil
}

func (d *Dispatcher) Status(_ *struct{}, reply *StatusReply) error {
	reply.Tubes = d.coord.Snapshot()
	return nil
}

func (d *Dispatcher) GetEngagementPlan(tubeNo *int, reply *wcstypes.EngagementPlanResult) error {
	plan, err := d.coord.EngagementPlan(*tubeNo)
	if err != nil {
		return err
	}
	*reply = plan
	return nil
}

func (d *Dispatcher) MineDropPlanRequest(args *MineDropPlanArgs, reply *wcstypes.MinePlan) error {
	plan, err := d.plans.GetPlan(args.ListNo, args.PlanNo)
	if err != nil {
		return err
	}
	*reply = plan
	return nil
}

func (d *Dispatcher) GetPlanList(listNo *int, reply *[]wcstypes.MinePlan) error {
	plans, err := d.plans.GetList(*listNo)
	if err != nil {
		return err
	}
	*reply = plans
	return nil
}

func (d *Dispatcher) AvailablePlanLists(_ *struct{}, reply *[]int) error {
	*reply = d.plans.AvailableListNumbers()
	return nil
}

func (d *Dispatcher) EditedPlanList(args *EditedPlanListArgs, _ *struct{}) error {
	return d.coord.HandleEditedPlanList(args.ListNo, args.Plans)
}

// SelectedPlan resolves a plan selection against the store, the
// validation step before a mine assignment references it.
func (d *Dispatcher) SelectedPlan(args *MineDropPlanArgs, reply *wcstypes.MinePlan) error {
	plan, err := d.plans.GetPlan(args.ListNo, args.PlanNo)
	if err != nil {
		return err
	}
	if err := mineplan.ValidatePlan(plan); err != nil {
		return err
	}
	*reply = plan
	return nil
}

// PollEvents drains the outward report stream: every state change, launch
// status change, plan update, and assignment change posted since the last
// poll, in commit order.
func (d *Dispatcher) PollEvents(_ *struct{}, reply *[]events.Event) error {
	if d.sub == nil {
		*reply = nil
		return nil
	}
	*reply = d.sub.Get()
	return nil
}

// Server accepts connections on a TCP listener and serves the Dispatcher
// over net/rpc's gob codec, one goroutine per connection.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
	lg       *log.Logger
}

// ServiceName is the name the Dispatcher is registered under; clients call
// "WCS.<Method>".
const ServiceName = "WCS"

// New builds a Server listening on addr.
func New(addr string, d *Dispatcher, lg *log.Logger) (*Server, error) {
	if lg == nil {
		lg = log.NewNop()
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, d); err != nil {
		l.Close()
		return nil, err
	}

	return &Server{listener: l, rpc: srv, lg: lg}, nil
}

// Addr returns the bound listen address (useful when addr was ":0").
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.lg.Info("command server listening", "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		s.lg.Debug("new command connection", "remote", conn.RemoteAddr().String())
		go s.rpc.ServeConn(conn)
	}
}
