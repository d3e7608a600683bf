package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

type fakeHistory struct {
	page domain.HistoryPage
	err  error
}

func (f *fakeHistory) Snapshot(context.Context, string) (domain.HistoryPage, error) {
	return f.page, f.err
}

type upload struct {
	path        string
	body        []byte
	contentType string
	multipart   bool
}

type fakeWriter struct {
	uploads []upload
	err     error
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, _ := io.ReadAll(data)
	f.uploads = append(f.uploads, upload{path: path, body: b, contentType: contentType})
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if f.err != nil {
		return f.err
	}
	b, _ := io.ReadAll(data)
	f.uploads = append(f.uploads, upload{path: path, body: b, multipart: true})
	return nil
}

type fakeLister struct{ prefix string }

func (f *fakeLister) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	f.prefix = prefix
	return []domain.BlobInfo{{Path: prefix + "x.jsonl", Size: 10}}, nil
}

type fakeAudit struct {
	events []string
	detail []map[string]any
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	f.detail = append(f.detail, detail)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

const curve = "0x00000000000000000000000000000000000C0FFE"

func newExporter(h HistorySource, w domain.BlobWriter, l domain.BlobLister, a domain.AuditStore) *HistoryExporter {
	e := NewHistoryExporter(h, w, l, a, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestExportWritesJSONL(t *testing.T) {
	hist := &fakeHistory{page: domain.HistoryPage{
		Trades: []domain.TradeRecord{
			{ID: "0xb-1", TxHash: "0xb", Direction: domain.DirectionSell, EthAmount: "0.9"},
			{ID: "0xa-0", TxHash: "0xa", Direction: domain.DirectionBuy, EthAmount: "1"},
		},
		Total:     2,
		FromBlock: 100,
		ToBlock:   10100,
	}}
	w := &fakeWriter{}
	audit := &fakeAudit{}

	out, err := newExporter(hist, w, nil, audit).Export(context.Background(), curve)
	require.NoError(t, err)

	wantPath := "exports/trades/0x00000000000000000000000000000000000c0ffe/2025-01-31/1738281600.jsonl"
	assert.Equal(t, wantPath, out.Path)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, uint64(100), out.FromBlock)
	assert.Equal(t, uint64(10100), out.ToBlock)

	require.Len(t, w.uploads, 1)
	up := w.uploads[0]
	assert.Equal(t, wantPath, up.path)
	assert.Equal(t, "application/x-ndjson", up.contentType)
	assert.False(t, up.multipart)

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(up.body))
	for sc.Scan() {
		var rec domain.TradeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"0xb-1", "0xa-0"}, ids)

	require.Equal(t, []string{"history_exported"}, audit.events)
	assert.Equal(t, wantPath, audit.detail[0]["path"])
}

func TestExportLargeUsesMultipart(t *testing.T) {
	trades := make([]domain.TradeRecord, 0, 1)
	trades = append(trades, domain.TradeRecord{ID: string(bytes.Repeat([]byte("x"), multipartThreshold))})
	w := &fakeWriter{}

	_, err := newExporter(&fakeHistory{page: domain.HistoryPage{Trades: trades}}, w, nil, nil).
		Export(context.Background(), curve)
	require.NoError(t, err)
	require.Len(t, w.uploads, 1)
	assert.True(t, w.uploads[0].multipart)
}

func TestExportErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := newExporter(&fakeHistory{err: domain.ErrRPCFailure}, &fakeWriter{}, nil, nil).
		Export(context.Background(), curve)
	assert.ErrorIs(t, err, domain.ErrRPCFailure)

	audit := &fakeAudit{}
	_, err = newExporter(&fakeHistory{}, &fakeWriter{err: boom}, nil, audit).
		Export(context.Background(), curve)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, audit.events, "failed uploads are not audited")
}

func TestListExports(t *testing.T) {
	lister := &fakeLister{}
	infos, err := newExporter(&fakeHistory{}, &fakeWriter{}, lister, nil).List(context.Background(), curve)
	require.NoError(t, err)
	assert.Equal(t, "exports/trades/0x00000000000000000000000000000000000c0ffe/", lister.prefix)
	assert.Len(t, infos, 1)

	infos, err = newExporter(&fakeHistory{}, &fakeWriter{}, nil, nil).List(context.Background(), curve)
	require.NoError(t, err)
	assert.Nil(t, infos)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://127.0.0.1:9000", normaliseEndpoint("127.0.0.1:9000", false))
}
