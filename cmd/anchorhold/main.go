// Command anchorhold is a CLI interface to anchorhold stores.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold/compress"
	"github.com/anchorhold/anchorhold/engine"
	"github.com/anchorhold/anchorhold/remote/gcs"
	"github.com/anchorhold/anchorhold/store"
	_ "github.com/anchorhold/anchorhold/store/file"
	_ "github.com/anchorhold/anchorhold/store/logging"
	_ "github.com/anchorhold/anchorhold/store/lru"
	_ "github.com/anchorhold/anchorhold/store/mem"
	_ "github.com/anchorhold/anchorhold/store/pg"
	_ "github.com/anchorhold/anchorhold/store/sqlite3"
)

type maincmd struct {
	e *engine.Engine
}

func main() {
	configPath := flag.String("config", "anchorhold.json", "path to config file")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("Config value not set")
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	typ, ok := conf.Store["type"].(string)
	if !ok {
		log.Fatalf("Config file %s missing store `type` parameter", *configPath)
	}

	ctx := context.Background()

	local, err := store.Create(ctx, typ, conf.Store)
	if err != nil {
		log.Fatalf("Creating %s-type store: %s", typ, err)
	}

	var cfg engine.Config

	if conf.Remote != nil {
		cfg.Remote, err = gcs.FromConfig(ctx, conf.Remote)
		if err != nil {
			log.Fatalf("Creating remote store: %s", err)
		}
	}

	switch conf.Strategy {
	case "", "manual":
		cfg.Strategy = engine.SyncManual
	case "onsave":
		cfg.Strategy = engine.SyncOnSave
	default:
		log.Fatalf("Unknown sync strategy %q", conf.Strategy)
	}

	cfg.Level, err = compress.ParseLevel(conf.Compression)
	if err != nil {
		log.Fatalf("Parsing compression level: %s", err)
	}

	err = subcmd.Run(ctx, maincmd{e: engine.New(local, cfg)}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"put-space":     c.putSpace,
		"put-anchor":    c.putAnchor,
		"ls":            c.ls,
		"anchors":       c.anchors,
		"state":         c.state,
		"diff":          c.diff,
		"history":       c.history,
		"rollback":      c.rollback,
		"delete-anchor": c.deleteAnchor,
		"delete-space":  c.deleteSpace,
		"sync":          c.sync,
		"purge":         c.purge,
		"size":          c.size,
		"clear":         c.clear,
	}
}

var layouts = []string{
	time.RFC3339Nano, time.RFC3339, time.ANSIC, time.UnixDate,
}

func parsetime(s string) (time.Time, error) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil { // sic
			return t, nil
		}
	}
	return time.Time{}, errors.New("could not parse time")
}
