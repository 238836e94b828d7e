package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
)

func (c maincmd) putSpace(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		id   = fs.String("id", "", "space id")
		name = fs.String("name", "", "space name")
		file = fs.String("file", "", "file with the spatial payload (default: stdin)")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *id == "" {
		return errors.New("must supply -id")
	}

	in := io.Reader(os.Stdin)
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return errors.Wrapf(err, "opening %s", *file)
		}
		defer f.Close()
		in = f
	}
	payload, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, "reading payload")
	}

	sp, err := c.e.SaveSpace(ctx, anchorhold.Space{ID: *id, Name: *name, Payload: payload})
	var syncErr *anchorhold.SyncError
	if errors.As(err, &syncErr) {
		fmt.Fprintf(os.Stderr, "saved locally; upload pending retry: %s\n", syncErr.Cause)
		err = nil
	}
	if err != nil {
		return errors.Wrapf(err, "saving space %s", *id)
	}
	fmt.Printf("%s updated %s\n", sp.ID, sp.UpdatedAt)
	return nil
}

func (c maincmd) ls(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	spaces, err := c.e.LoadSpaces(ctx)
	if err != nil {
		return errors.Wrap(err, "loading spaces")
	}
	for _, sp := range spaces {
		fmt.Printf("%s\t%s\t%d bytes\tupdated %s\n", sp.ID, sp.Name, len(sp.Payload), sp.UpdatedAt)
	}
	return nil
}

func (c maincmd) deleteSpace(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing space id")
	}

	id := fs.Arg(0)
	err = c.e.DeleteSpace(ctx, id)
	var syncErr *anchorhold.SyncError
	if errors.As(err, &syncErr) {
		fmt.Fprintf(os.Stderr, "deleted locally; remote delete pending retry: %s\n", syncErr.Cause)
		return nil
	}
	return errors.Wrapf(err, "deleting space %s", id)
}
