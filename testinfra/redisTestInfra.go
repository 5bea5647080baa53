package testinfra

import (
	"log"

	"schoolhub/client/rediscache"

	"github.com/alicebob/miniredis/v2"
)

type TestRedis struct {
	Server *miniredis.Miniredis
	Client *rediscache.Client
}

// StartMiniredis runs an in-process redis for cache tests.
func StartMiniredis() *TestRedis {
	server, err := miniredis.Run()
	if err != nil {
		log.Fatalf("failed to start miniredis %v\n", err)
	}
	return &TestRedis{Server: server, Client: rediscache.NewClient(server.Addr(), "", 0)}
}

func StopMiniredis(r *TestRedis) {
	if r == nil {
		return
	}
	if r.Client != nil {
		_ = r.Client.Close()
	}
	if r.Server != nil {
		r.Server.Close()
	}
}
