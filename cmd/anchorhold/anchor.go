package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
)

func (c maincmd) putAnchor(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var a anchorhold.Anchor
	err = json.NewDecoder(os.Stdin).Decode(&a)
	if err != nil {
		return errors.Wrap(err, "decoding anchor record from stdin")
	}

	saved, err := c.e.SaveAnchor(ctx, a)
	var syncErr *anchorhold.SyncError
	if errors.As(err, &syncErr) {
		fmt.Fprintf(os.Stderr, "saved locally; upload pending retry: %s\n", syncErr.Cause)
		err = nil
	}
	if err != nil {
		return errors.Wrapf(err, "saving anchor %s", a.ID)
	}
	fmt.Printf("%s updated %s\n", saved.ID, saved.UpdatedAt)
	return nil
}

func (c maincmd) anchors(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing space id")
	}

	spaceID := fs.Arg(0)
	anchors, err := c.e.LoadAnchors(ctx, spaceID)
	if err != nil {
		return errors.Wrapf(err, "loading anchors of space %s", spaceID)
	}
	for _, a := range anchors {
		marker := ""
		if a.IsDeleted() {
			marker = "\t(deleted)"
		}
		fmt.Printf("%s\tupdated %s%s\n", a.ID, a.UpdatedAt, marker)
	}
	return nil
}

func (c maincmd) history(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing anchor id")
	}

	anchorID := fs.Arg(0)
	events, err := c.e.History(ctx, anchorID)
	if err != nil {
		return errors.Wrapf(err, "loading history of anchor %s", anchorID)
	}
	for _, ev := range events {
		fmt.Printf("v%d\t%s\t%s", ev.Version, ev.Type, ev.Timestamp)
		if ev.Actor != "" {
			fmt.Printf("\t%s", ev.Actor)
		}
		fmt.Println()
	}
	return nil
}

func (c maincmd) rollback(ctx context.Context, fs *flag.FlagSet, args []string) error {
	to := fs.Int("to", 0, "version to roll back to")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing anchor id")
	}
	if *to < 1 {
		return errors.New("must supply -to")
	}

	anchorID := fs.Arg(0)
	restored, err := c.e.Rollback(ctx, anchorID, *to)
	var syncErr *anchorhold.SyncError
	if errors.As(err, &syncErr) {
		fmt.Fprintf(os.Stderr, "rolled back locally; upload pending retry: %s\n", syncErr.Cause)
		err = nil
	}
	if err != nil {
		return errors.Wrapf(err, "rolling anchor %s back to version %d", anchorID, *to)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(restored), "encoding restored anchor")
}

func (c maincmd) deleteAnchor(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing anchor id")
	}

	anchorID := fs.Arg(0)
	deleted, err := c.e.DeleteAnchor(ctx, anchorID)
	var syncErr *anchorhold.SyncError
	if errors.As(err, &syncErr) {
		fmt.Fprintf(os.Stderr, "deleted locally; upload pending retry: %s\n", syncErr.Cause)
		err = nil
	}
	if err != nil {
		return errors.Wrapf(err, "deleting anchor %s", anchorID)
	}
	fmt.Printf("%s deleted %s\n", deleted.ID, deleted.DeletedAt)
	return nil
}
