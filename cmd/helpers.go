package cmd

import (
	"time"

	"github.com/dayuer/botlink-go/internal/config"
	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/frame"
	"github.com/dayuer/botlink-go/internal/presence"
	"github.com/dayuer/botlink-go/internal/router"
)

// buildRouter wires a Router from the loaded config and an optional targets
// table, including the presence hook when Redis is configured.
func buildRouter(cfg config.Config, targets []config.Target) *router.Router {
	var resolver router.TargetResolver
	if len(targets) > 0 {
		byKey := config.TargetMap(targets)
		resolver = func(key frame.RoutingKey) (conn.Config, bool) {
			t, ok := byKey[key]
			if !ok {
				return conn.Config{}, false
			}
			return conn.Config{
				URL:               t.URL,
				Token:             t.Token,
				QueueSize:         cfg.Transport.QueueSize,
				ReconnectAttempts: cfg.Transport.ReconnectAttempts,
				ConnectTimeout:    time.Duration(cfg.Transport.ConnectTimeout) * time.Second,
			}, true
		}
	}

	rt := router.New(router.Config{
		Targets:         resolver,
		MaxForwardDepth: cfg.Transport.MaxForwardDepth,
		ConnectTimeout:  time.Duration(cfg.Transport.ConnectTimeout) * time.Second,
		DrainTimeout:    time.Duration(cfg.Transport.DrainTimeout) * time.Second,
	})

	if presence.Init(presence.Config{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}) {
		rt.OnConnectionState(presence.StateHook())
	}

	return rt
}
