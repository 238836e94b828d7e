package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"
)

func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	res, err := c.e.Sync(ctx)
	if err != nil {
		return errors.Wrap(err, "syncing")
	}
	fmt.Printf("flushed %d, uploaded %d, downloaded %d, dropped %d\n", res.Flushed, res.Uploaded, res.Downloaded, res.Dropped)
	return nil
}

func (c maincmd) purge(ctx context.Context, fs *flag.FlagSet, args []string) error {
	beforestr := fs.String("before", "", "purge anchors soft-deleted before this instant")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *beforestr == "" {
		return errors.New("must supply -before")
	}
	before, err := parsetime(*beforestr)
	if err != nil {
		return errors.Wrap(err, "parsing -before")
	}

	n, err := c.e.PurgeDeletedAnchors(ctx, before)
	if err != nil {
		return errors.Wrap(err, "purging")
	}
	fmt.Printf("purged %d\n", n)
	return nil
}

func (c maincmd) size(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	size, err := c.e.Size(ctx)
	if err != nil {
		return errors.Wrap(err, "getting size")
	}
	fmt.Println(size)
	return nil
}

func (c maincmd) clear(ctx context.Context, fs *flag.FlagSet, args []string) error {
	force := fs.Bool("force", false, "actually destroy all local records")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if !*force {
		return errors.New("clear destroys all local records; re-run with -force")
	}
	return errors.Wrap(c.e.Clear(ctx), "clearing store")
}
