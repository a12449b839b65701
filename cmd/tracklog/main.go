package main

import (
	"context"
	"runtime"
	"time"

	"tracklog-go/board"
	"tracklog-go/bus"
	"tracklog-go/gps"
	"tracklog-go/services/config"
	"tracklog-go/services/heartbeat"
	"tracklog-go/services/tracker"
)

const deviceID = "pico"

func main() {
	// Let the GPS module and the USB console come up before we talk.
	time.Sleep(3 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	println("[main] bootstrapping bus ...")
	b := bus.NewBus(8)

	println("[main] opening board ...")
	per := board.Open()
	driver := gps.New(per.GPS, per.Clock, false)

	println("[main] starting services ...")
	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	_ = tracker.New(driver, per).Start(ctx, b.NewConnection("tracker"))

	// Monitor the tracker's retained state for the console.
	monConn := b.NewConnection("monitor")
	mon := monConn.Subscribe(bus.T("tracker", "#"))
	for m := range mon.Channel() {
		println("[monitor] <-", m.Topic.String())
		printMem()
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"heapSys:", uint32(ms.HeapSys),
	)
}
