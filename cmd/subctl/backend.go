package main

import (
	"context"

	"github.com/abhaldrota/SubManage-FHE/internal/app"
	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

// backend is what the commands need, served either in process or by a running daemon.
type backend interface {
	Create(ctx context.Context, req coordinator.CreateRequest) (string, error)
	RequestDecryption(ctx context.Context, id string) (coordinator.DecryptResult, error)
	Refresh(ctx context.Context) ([]coordinator.Record, error)
	Search(ctx context.Context, query, category string) ([]coordinator.Record, error)
	Stats(ctx context.Context) (coordinator.Stats, error)
	History(ctx context.Context, n int) ([]coordinator.HistoryEntry, error)
	CheckAvailability(ctx context.Context) (bool, error)
}

// local runs the workflows against the ledger file directly.
type local struct {
	app *app.App
}

func (l local) Create(ctx context.Context, req coordinator.CreateRequest) (string, error) {
	id, err := l.app.Coordinator.Create(ctx, req)
	if err == nil {
		l.app.Log.Audit("record_created", map[string]interface{}{"id": id, "account": l.app.Client.Account()})
	}
	return id, err
}

func (l local) RequestDecryption(ctx context.Context, id string) (coordinator.DecryptResult, error) {
	res, err := l.app.Coordinator.RequestDecryption(ctx, id)
	if err == nil && res.Outcome == coordinator.OutcomeDecrypted {
		l.app.Log.Audit("record_decrypted", map[string]interface{}{"id": id, "account": l.app.Client.Account()})
	}
	return res, err
}

func (l local) Refresh(ctx context.Context) ([]coordinator.Record, error) {
	return l.app.Coordinator.ListAll(ctx)
}

func (l local) Search(_ context.Context, query, category string) ([]coordinator.Record, error) {
	return l.app.Coordinator.Filter(query, category), nil
}

func (l local) Stats(context.Context) (coordinator.Stats, error) {
	return l.app.Coordinator.Stats(), nil
}

func (l local) History(_ context.Context, n int) ([]coordinator.HistoryEntry, error) {
	return l.app.Coordinator.History(n), nil
}

func (l local) CheckAvailability(ctx context.Context) (bool, error) {
	return l.app.Coordinator.CheckAvailability(ctx)
}
