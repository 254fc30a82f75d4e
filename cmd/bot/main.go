package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxelsync.gg/internal/protocol"
	"voxelsync.gg/internal/sim/chunk"
	"voxelsync.gg/internal/sim/reconcile"
	"voxelsync.gg/internal/transport/ws"
)

// The bot is a headless client: it reconciles server state like a real
// client would, streams chunks around itself, wanders, and chats.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8088/v1/ws", "ws url")
		rateHz = flag.Int("rate_hz", 30, "client tick rate")
		radius = flag.Int("view_distance", 6, "chunk view distance")
		seed   = flag.Uint64("seed", 1337, "world seed (must match the server)")
		noisy  = flag.Bool("chat", true, "send periodic chat messages")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	client, err := ws.Dial(*url)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer client.Close()
	logger.Printf("connected as client %d", client.ClientID())

	engine := reconcile.NewEngine(client, logger, nil)
	chunks := chunk.NewManager(chunk.Config{
		ViewDistance: *radius,
		Generator:    chunk.HashGen{Seed: int64(*seed)},
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(time.Second / time.Duration(*rateHz))
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !client.IsConnected() {
			logger.Printf("disconnected")
			return
		}

		tick++
		wander(engine, rng, tick)
		if *noisy && tick%600 == 0 {
			engine.QueueChat(fmt.Sprintf("tick=%d players=%d chunks=%d", tick, engine.Players(), chunks.Resident()))
		}
		engine.Tick()

		if self := engine.SelfEntity(); !self.IsZero() {
			if t, ok := engine.Transform(self); ok {
				chunks.Tick(t.Translation)
			}
		}
		for _, ev := range chunks.TakeReady() {
			_ = ev // a rendering client would mesh the chunk here
		}

		if from, text := engine.LastChat(); text != "" && tick%300 == 0 {
			logger.Printf("chat <%d> %s", from, text)
		}
	}
}

// wander walks a slow circle around the spawn point.
func wander(engine *reconcile.Engine, rng *rand.Rand, tick uint64) {
	self := engine.SelfEntity()
	if self.IsZero() {
		return
	}
	t, ok := engine.Transform(self)
	if !ok {
		return
	}
	angle := float64(tick) / 120
	t.Translation.X += float32(math.Cos(angle)) * 0.3
	t.Translation.Z += float32(math.Sin(angle)) * 0.3
	t.Rotation = yawQuat(float32(angle))
	engine.SetSelfTransform(t)

	if tick%900 == 0 && rng.Intn(2) == 0 {
		engine.QueueCommand(protocol.PlayerCommand{Kind: protocol.CommandInteract})
	}
}

func yawQuat(angle float32) protocol.Quat {
	half := float64(angle) / 2
	return protocol.Quat{Y: float32(math.Sin(half)), W: float32(math.Cos(half))}
}
