// internal/rpcserver/client.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rpcserver

import (
	"net/rpc"
	"strings"
	"time"

	"github.com/kjeon/wcs-core/internal/events"
	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// Client is a typed wrapper over a net/rpc connection to a Server. Errors
// that crossed the wire as plain strings are decoded back into the closed
// taxonomy so callers can match on wcserrors.KindOf.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a Server at addr.
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

// Close tears down the connection.
func (c *Client) Close() error { return c.rpc.Close() }

// decodeError maps a wire-transmitted "Kind: message" string back to a
// *wcserrors.CodedError when the kind is recognized; anything else passes
// through unchanged.
func decodeError(err error) error {
	if err == nil {
		return nil
	}
	s := err.Error()
	name, msg, found := strings.Cut(s, ":")
	if !found {
		name, msg = s, ""
	}
	if kind, ok := wcserrors.TryDecodeKind(strings.TrimSpace(name)); ok {
		return wcserrors.New(kind, strings.TrimSpace(msg))
	}
	return err
}

func (c *Client) call(method string, args, reply any) error {
	return decodeError(c.rpc.Call(ServiceName+"."+method, args, reply))
}

// CallWithTimeout issues method asynchronously and gives up after timeout,
// for callers that cannot block indefinitely on a wedged transport.
func (c *Client) CallWithTimeout(method string, args, reply any, timeout time.Duration) error {
	call := c.rpc.Go(ServiceName+"."+method, args, reply, nil)
	select {
	case <-call.Done:
		return decodeError(call.Error)
	case <-time.After(timeout):
		return wcserrors.New(wcserrors.KindIoError, method+" timed out")
	}
}

func (c *Client) AssignWeapon(args AssignWeaponArgs) error {
	return c.call("AssignWeapon", &args, &struct{}{})
}

func (c *Client) UnassignWeapon(tubeNo int) error {
	return c.call("UnassignWeapon", &tubeNo, &struct{}{})
}

func (c *Client) ControlWeapon(tubeNo int, target wcstypes.ControlState) error {
	return c.call("ControlWeapon", &ControlWeaponArgs{TubeNo: tubeNo, TargetState: target}, &struct{}{})
}

func (c *Client) EmergencyStop() error {
	return c.call("EmergencyStop", &struct{}{}, &struct{}{})
}

func (c *Client) UpdateWaypoints(tubeNo int, waypoints []geo.Point) error {
	return c.call("UpdateWaypoints", &UpdateWaypointsArgs{TubeNo: tubeNo, Waypoints: waypoints}, &struct{}{})
}

func (c *Client) UpdateOwnShipNav(nav geo.Nav) error {
	return c.call("UpdateOwnShipNav", &nav, &struct{}{})
}

func (c *Client) UpdateTargetTrack(track wcstypes.TargetTrack) error {
	return c.call("UpdateTargetTrack", &track, &struct{}{})
}

func (c *Client) SetAxisCenter(p geo.Point) error {
	return c.call("SetAxisCenter", &p, &struct{}{})
}

func (c *Client) Status() ([]wcstypes.LaunchTubeStatus, error) {
	var reply StatusReply
	if err := c.call("Status", &struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply.Tubes, nil
}

func (c *Client) GetEngagementPlan(tubeNo int) (wcstypes.EngagementPlanResult, error) {
	var reply wcstypes.EngagementPlanResult
	err := c.call("GetEngagementPlan", &tubeNo, &reply)
	return reply, err
}

func (c *Client) MineDropPlanRequest(listNo, planNo int) (wcstypes.MinePlan, error) {
	var reply wcstypes.MinePlan
	err := c.call("MineDropPlanRequest", &MineDropPlanArgs{ListNo: listNo, PlanNo: planNo}, &reply)
	return reply, err
}

func (c *Client) GetPlanList(listNo int) ([]wcstypes.MinePlan, error) {
	var reply []wcstypes.MinePlan
	err := c.call("GetPlanList", &listNo, &reply)
	return reply, err
}

func (c *Client) AvailablePlanLists() ([]int, error) {
	var reply []int
	err := c.call("AvailablePlanLists", &struct{}{}, &reply)
	return reply, err
}

func (c *Client) EditedPlanList(listNo int, plans []wcstypes.MinePlan) error {
	return c.call("EditedPlanList", &EditedPlanListArgs{ListNo: listNo, Plans: plans}, &struct{}{})
}

func (c *Client) SelectedPlan(listNo, planNo int) (wcstypes.MinePlan, error) {
	var reply wcstypes.MinePlan
	err := c.call("SelectedPlan", &MineDropPlanArgs{ListNo: listNo, PlanNo: planNo}, &reply)
	return reply, err
}

func (c *Client) PollEvents() ([]events.Event, error) {
	var reply []events.Event
	err := c.call("PollEvents", &struct{}{}, &reply)
	return reply, err
}
