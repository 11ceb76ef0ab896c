package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

func cmdCreate(ctx context.Context, b backend, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "subscription name")
	amount := fs.Uint64("amount", 0, "monthly amount, encrypted before it leaves this process")
	category := fs.String("category", "other", "streaming, software or other")
	description := fs.String("description", "", "free-form description")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := b.Create(ctx, coordinator.CreateRequest{
		Name:        *name,
		Amount:      *amount,
		Category:    *category,
		Description: *description,
	})
	if err != nil {
		return quietRejection(err)
	}
	fmt.Fprintln(out, id)
	return nil
}

func cmdDecrypt(ctx context.Context, b backend, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: subctl decrypt <record-id>")
	}
	id := args[0]
	res, err := b.RequestDecryption(ctx, id)
	if err != nil {
		return quietRejection(err)
	}
	if res.HasValue {
		fmt.Fprintln(out, res.Value)
		return nil
	}
	// Another actor verified it first; read the value back from the refreshed records.
	records, err := b.Refresh(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID != id {
			continue
		}
		if v, ok := r.Amount(); ok {
			fmt.Fprintln(out, v)
			return nil
		}
	}
	fmt.Fprintln(out, "verified")
	return nil
}

func cmdList(ctx context.Context, b backend, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	query := fs.String("q", "", "search name and description")
	category := fs.String("category", "all", "all, streaming, software or other")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := b.Refresh(ctx); err != nil {
		return err
	}
	records, err := b.Search(ctx, *query, *category)
	if err != nil {
		return err
	}
	return renderRecords(out, records)
}

func cmdStats(ctx context.Context, b backend, out io.Writer) error {
	if _, err := b.Refresh(ctx); err != nil {
		return err
	}
	s, err := b.Stats(ctx)
	if err != nil {
		return err
	}
	return renderStats(out, s)
}

func cmdHistory(ctx context.Context, b backend, args []string, defaultN int, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	n := fs.Int("n", defaultN, "number of entries, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	entries, err := b.History(ctx, *n)
	if err != nil {
		return err
	}
	return renderHistory(out, entries)
}

func cmdAvailable(ctx context.Context, b backend, out io.Writer) error {
	ok, err := b.CheckAvailability(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ok)
	return nil
}

// quietRejection drops a declined signature: the status line already said so.
func quietRejection(err error) error {
	if coordinator.KindOf(err) == coordinator.KindUserRejected {
		return nil
	}
	return err
}
