package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

func (c maincmd) state(ctx context.Context, fs *flag.FlagSet, args []string) error {
	atstr := fs.String("at", "", "instant to reconstruct (default: now)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing space id")
	}

	at := time.Now()
	if *atstr != "" {
		at, err = parsetime(*atstr)
		if err != nil {
			return errors.Wrap(err, "parsing -at")
		}
	}

	spaceID := fs.Arg(0)
	anchors, err := c.e.StateAt(ctx, spaceID, at)
	if err != nil {
		return errors.Wrapf(err, "reconstructing space %s at %s", spaceID, at)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(anchors), "encoding state")
}

func (c maincmd) diff(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		fromstr = fs.String("from", "", "earlier instant")
		tostr   = fs.String("to", "", "later instant (default: now)")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing space id")
	}
	if *fromstr == "" {
		return errors.New("must supply -from")
	}

	from, err := parsetime(*fromstr)
	if err != nil {
		return errors.Wrap(err, "parsing -from")
	}
	to := time.Now()
	if *tostr != "" {
		to, err = parsetime(*tostr)
		if err != nil {
			return errors.Wrap(err, "parsing -to")
		}
	}

	spaceID := fs.Arg(0)
	d, err := c.e.Diff(ctx, spaceID, from, to)
	if err != nil {
		return errors.Wrapf(err, "diffing space %s", spaceID)
	}

	for _, a := range d.Added {
		fmt.Printf("added\t%s\n", a.ID)
	}
	for _, a := range d.Removed {
		fmt.Printf("removed\t%s\n", a.ID)
	}
	for _, m := range d.Moved {
		fmt.Printf("moved\t%s\n", m.Anchor.ID)
	}
	for _, u := range d.Updated {
		fmt.Printf("updated\t%s\n", u.Anchor.ID)
	}
	fmt.Printf("%d changed, %d unchanged\n", d.ChangeCount(), len(d.Unchanged))
	return nil
}
