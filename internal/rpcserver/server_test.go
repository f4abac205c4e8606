// internal/rpcserver/server_test.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/kjeon/wcs-core/internal/coordinator"
	"github.com/kjeon/wcs-core/internal/engagement"
	"github.com/kjeon/wcs-core/internal/events"
	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/mineplan"
	"github.com/kjeon/wcs-core/internal/targetreg"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
	"github.com/kjeon/wcs-core/internal/weapon"
)

func startTestServer(t *testing.T) *Client {
	t.Helper()

	plans := mineplan.New(t.TempDir(), 15, 15, nil)
	if err := plans.LoadAll(); err != nil {
		t.Fatal(err)
	}

	factory := weapon.NewDefaultFactory(weapon.Params{
		OnDelay: 50 * time.Millisecond,
		LaunchSteps: []wcstypes.LaunchStep{
			{Description: "Power On Check", DurationS: 0.05},
		},
		Calculator: engagement.DefaultCalculator{MineSpeedMps: 5},
	})

	stream := events.New(log.NewNop())
	t.Cleanup(stream.Destroy)

	coord := coordinator.New(6, factory, plans, targetreg.New(time.Minute), stream, nil, nil)
	if err := coord.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { coord.Shutdown() })

	d := NewDispatcher(coord, plans, stream, 4, nil)
	srv, err := New("127.0.0.1:0", d, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancelServe := context.WithCancel(context.Background())
	t.Cleanup(cancelServe)
	go srv.Serve(ctx)

	client, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCommandRoundTrip(t *testing.T) {
	c := startTestServer(t)

	if err := c.UpdateOwnShipNav(geo.Nav{Position: geo.Point{Lat: 37.0, Lon: 126.5}}); err != nil {
		t.Fatalf("UpdateOwnShipNav: %v", err)
	}

	if err := c.AssignWeapon(AssignWeaponArgs{
		TubeNo:               1,
		Kind:                 wcstypes.KindALM,
		DirectTargetPosition: geo.Point{Lat: 37.5, Lon: 127.0},
		HasDirectTarget:      true,
	}); err != nil {
		t.Fatalf("AssignWeapon: %v", err)
	}

	tubes, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(tubes) != 6 {
		t.Fatalf("status covers %d tubes", len(tubes))
	}
	if !tubes[0].HasWeapon || tubes[0].ControlState != wcstypes.StateOff {
		t.Errorf("tube 1 status %+v", tubes[0])
	}

	if err := c.ControlWeapon(1, wcstypes.StateOn); err != nil {
		t.Fatalf("ControlWeapon: %v", err)
	}
	tubes, err = c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if tubes[0].ControlState != wcstypes.StateOn {
		t.Errorf("tube 1 state %s after ON", tubes[0].ControlState)
	}

	if err := c.UnassignWeapon(1); err != nil {
		t.Fatalf("UnassignWeapon: %v", err)
	}
}

func TestErrorKindsSurviveTheWire(t *testing.T) {
	c := startTestServer(t)

	err := c.UnassignWeapon(1)
	if wcserrors.KindOf(err) != wcserrors.KindNotAssigned {
		t.Errorf("UnassignWeapon of empty tube gave %v, expected NotAssigned across the wire", err)
	}

	err = c.AssignWeapon(AssignWeaponArgs{TubeNo: 99, Kind: wcstypes.KindALM, HasDirectTarget: true})
	if wcserrors.KindOf(err) != wcserrors.KindInvalidTube {
		t.Errorf("AssignWeapon to tube 99 gave %v, expected InvalidTube", err)
	}

	_, err = c.MineDropPlanRequest(2, 9)
	if wcserrors.KindOf(err) != wcserrors.KindInvalidPlan {
		t.Errorf("MineDropPlanRequest of absent plan gave %v, expected InvalidPlan", err)
	}
}

func TestMinePlanRPC(t *testing.T) {
	c := startTestServer(t)

	plan := wcstypes.MinePlan{
		PlanNo:    7,
		LaunchPos: geo.Point{Lat: 35, Lon: 129},
		DropPos:   geo.Point{Lat: 35.1, Lon: 129.1},
		Waypoints: []geo.Point{{Lat: 35.05, Lon: 129.05}},
	}
	if err := c.EditedPlanList(3, []wcstypes.MinePlan{plan}); err != nil {
		t.Fatalf("EditedPlanList: %v", err)
	}

	got, err := c.MineDropPlanRequest(3, 7)
	if err != nil {
		t.Fatalf("MineDropPlanRequest: %v", err)
	}
	if got.PlanNo != 7 || got.DropPos != plan.DropPos {
		t.Errorf("plan round trip gave %+v", got)
	}

	sel, err := c.SelectedPlan(3, 7)
	if err != nil {
		t.Fatalf("SelectedPlan: %v", err)
	}
	if sel.PlanNo != 7 {
		t.Errorf("SelectedPlan gave %+v", sel)
	}

	lists, err := c.AvailablePlanLists()
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 15 {
		t.Errorf("AvailablePlanLists gave %d lists", len(lists))
	}
}

func TestPollEvents(t *testing.T) {
	c := startTestServer(t)

	if err := c.AssignWeapon(AssignWeaponArgs{
		TubeNo:               2,
		Kind:                 wcstypes.KindASM,
		DirectTargetPosition: geo.Point{Lat: 37.5, Lon: 127.0},
		HasDirectTarget:      true,
	}); err != nil {
		t.Fatal(err)
	}

	evs, err := c.PollEvents()
	if err != nil {
		t.Fatalf("PollEvents: %v", err)
	}
	found := false
	for _, ev := range evs {
		if ev.Type == events.AssignmentChangedEvent && ev.TubeNo == 2 && ev.Assigned {
			found = true
		}
	}
	if !found {
		t.Errorf("assignment event not delivered; got %+v", evs)
	}
}
