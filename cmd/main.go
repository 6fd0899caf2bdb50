package main

import (
  "fmt"
  "os"
  "os/signal"
  "syscall"

  "github.com/brightfeed/brightfeed-backend/internal/app"
)

func main() {
  a, err := app.New()
  if err != nil {
    fmt.Printf("Failed to init app: %v\n", err)
    os.Exit(1)
  }
  defer a.Close()

  if err := a.Start(); err != nil {
    a.Log.Error("Could not start background workers", "error", err)
    os.Exit(1)
  }

  go func() {
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    a.Log.Info("Shutdown signal received")
    a.Close()
    os.Exit(0)
  }()

  fmt.Printf("Server listening on %s\n", a.Cfg.HTTPAddr)
  if err := a.Run(); err != nil {
    a.Log.Warn("Server failed", "error", err)
  }
}
