package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	anchorcmd "github.com/ophelios-studio/codequill-contracts/internal/cmd/anchor"
)

func main() {
	cfg, err := anchorcmd.ParseConfig(flag.CommandLine, os.Args[1:], func(key string) (string, bool) {
		value, ok := os.LookupEnv(key)
		return value, ok
	})
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ANCHOR] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := anchorcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
